package osc

import (
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmindex-go/internal/element"
)

// Action represents the type of change in an OSC file
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Change represents a single OSM change from an OSC file. Exactly one of
// Node, Way and Relation is set, matching Kind.
type Change struct {
	Action   Action
	Kind     element.Kind
	Node     *osm.Node
	Way      *osm.Way
	Relation *osm.Relation
}

// Stats tracks OSC parsing statistics
type Stats struct {
	NodesCreated      int64
	NodesModified     int64
	NodesDeleted      int64
	WaysCreated       int64
	WaysModified      int64
	WaysDeleted       int64
	RelationsCreated  int64
	RelationsModified int64
	RelationsDeleted  int64
}

// Total returns total number of changes
func (s *Stats) Total() int64 {
	return s.NodesCreated + s.NodesModified + s.NodesDeleted +
		s.WaysCreated + s.WaysModified + s.WaysDeleted +
		s.RelationsCreated + s.RelationsModified + s.RelationsDeleted
}

func (s *Stats) add(action Action, kind element.Kind) {
	var counters *[3]*int64
	switch kind {
	case element.Node:
		counters = &[3]*int64{&s.NodesCreated, &s.NodesModified, &s.NodesDeleted}
	case element.Way:
		counters = &[3]*int64{&s.WaysCreated, &s.WaysModified, &s.WaysDeleted}
	case element.Relation:
		counters = &[3]*int64{&s.RelationsCreated, &s.RelationsModified, &s.RelationsDeleted}
	default:
		return
	}
	switch action {
	case ActionCreate:
		*counters[0]++
	case ActionModify:
		*counters[1]++
	case ActionDelete:
		*counters[2]++
	}
}
