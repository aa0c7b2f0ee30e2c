// Package changelog carries the per-cycle before/after record of every
// touched element to external consumers.
package changelog

import (
	"github.com/google/uuid"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// Action classifies what a cycle did to an element.
type Action string

const (
	Insert Action = "insert"
	Keep   Action = "keep"
	Erase  Action = "erase"
)

// Version is one fully resolved state of an element.
type Version struct {
	Index   spatial.Index `json:"index"`
	Element any           `json:"element"`
	Tags    []element.Tag `json:"tags,omitempty"`
	Meta    *element.Meta `json:"meta,omitempty"`
}

// Entry is the change log record of one element in one cycle.
type Entry struct {
	Cycle  string       `json:"cycle,omitempty"`
	Kind   element.Kind `json:"kind"`
	ID     element.ID   `json:"id"`
	Action Action       `json:"action"`
	Before *Version     `json:"before,omitempty"`
	After  *Version     `json:"after,omitempty"`
}

// NewCycleID returns a time-ordered id for one update cycle.
func NewCycleID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
