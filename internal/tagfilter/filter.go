// Package tagfilter trims element tags on ingest. Filters only ever drop
// tags; elements themselves are always indexed so references stay valid.
package tagfilter

import (
	"github.com/wegman-software/osmindex-go/internal/element"
)

// Filter returns the tags of an element version to index.
type Filter interface {
	Filter(kind element.Kind, id element.ID, tags []element.Tag) ([]element.Tag, error)
}

type none struct{}

func (none) Filter(_ element.Kind, _ element.ID, tags []element.Tag) ([]element.Tag, error) {
	return tags, nil
}

// None keeps every tag.
var None Filter = none{}

// Chain applies filters in order.
type Chain []Filter

func (c Chain) Filter(kind element.Kind, id element.ID, tags []element.Tag) ([]element.Tag, error) {
	var err error
	for _, f := range c {
		if tags, err = f.Filter(kind, id, tags); err != nil {
			return nil, err
		}
	}
	return tags, nil
}
