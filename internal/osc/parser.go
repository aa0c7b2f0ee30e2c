package osc

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmindex-go/internal/element"
)

// Parser parses OSC (OSM Change) files. Changes are emitted in file
// order, so several versions of one element keep their sequence.
type Parser struct {
	stats Stats
}

// NewParser creates a new OSC parser
func NewParser() *Parser {
	return &Parser{}
}

// Stats returns parsing statistics
func (p *Parser) Stats() Stats {
	return p.stats
}

// ParseFile parses an OSC file and streams changes to a channel
// Supports both plain XML and gzip-compressed files
func (p *Parser) ParseFile(ctx context.Context, filename string) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errChan)

		f, err := os.Open(filename)
		if err != nil {
			errChan <- fmt.Errorf("failed to open OSC file: %w", err)
			return
		}
		defer f.Close()

		var reader io.Reader = f
		if strings.HasSuffix(filename, ".gz") {
			gzReader, err := gzip.NewReader(f)
			if err != nil {
				errChan <- fmt.Errorf("failed to create gzip reader: %w", err)
				return
			}
			defer gzReader.Close()
			reader = gzReader
		}

		if err := p.parse(ctx, reader, changes); err != nil {
			errChan <- fmt.Errorf("%s: %w", filename, err)
		}
	}()

	return changes, errChan
}

// ParseReader parses OSC data from a reader
func (p *Parser) ParseReader(ctx context.Context, reader io.Reader) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errChan)

		if err := p.parse(ctx, reader, changes); err != nil {
			errChan <- err
		}
	}()

	return changes, errChan
}

// Collect drains a parse into a slice.
func Collect(changes <-chan Change, errs <-chan error) ([]Change, error) {
	var out []Change
	for c := range changes {
		out = append(out, c)
	}
	for err := range errs {
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// parse walks the action blocks and decodes each element with the osm
// package's XML bindings.
func (p *Parser) parse(ctx context.Context, reader io.Reader, changes chan<- Change) error {
	decoder := xml.NewDecoder(reader)
	var currentAction Action

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		token, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("XML parse error: %w", err)
		}

		se, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		var change Change
		switch se.Name.Local {
		case "create":
			currentAction = ActionCreate
			continue
		case "modify":
			currentAction = ActionModify
			continue
		case "delete":
			currentAction = ActionDelete
			continue
		case "node":
			n := &osm.Node{}
			if err := decoder.DecodeElement(n, &se); err != nil {
				return fmt.Errorf("decode node: %w", err)
			}
			change = Change{Kind: element.Node, Node: n}
		case "way":
			w := &osm.Way{}
			if err := decoder.DecodeElement(w, &se); err != nil {
				return fmt.Errorf("decode way: %w", err)
			}
			change = Change{Kind: element.Way, Way: w}
		case "relation":
			r := &osm.Relation{}
			if err := decoder.DecodeElement(r, &se); err != nil {
				return fmt.Errorf("decode relation: %w", err)
			}
			change = Change{Kind: element.Relation, Relation: r}
		default:
			continue
		}

		if currentAction == "" {
			return fmt.Errorf("%s outside of an action block", change.Kind)
		}
		change.Action = currentAction
		select {
		case changes <- change:
			p.stats.add(change.Action, change.Kind)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
