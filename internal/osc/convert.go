package osc

import (
	"fmt"
	"time"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmindex-go/internal/element"
)

// Tags converts osm tags, dropping entries with an empty key.
func Tags(tags osm.Tags) []element.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]element.Tag, 0, len(tags))
	for _, t := range tags {
		if t.Key == "" {
			continue
		}
		out = append(out, element.Tag{Key: t.Key, Value: t.Value})
	}
	return out
}

func meta(version int, ts time.Time, changeset osm.ChangesetID, uid osm.UserID, user string) element.Meta {
	m := element.Meta{
		Version:   uint32(version),
		Changeset: uint64(changeset),
		UserID:    uint32(uid),
		User:      user,
	}
	if !ts.IsZero() {
		m.Timestamp = ts.Unix()
	}
	return m
}

// NodeMeta returns the metadata of n.
func NodeMeta(n *osm.Node) element.Meta {
	return meta(n.Version, n.Timestamp, n.ChangesetID, n.UserID, n.User)
}

// WayMeta returns the metadata of w.
func WayMeta(w *osm.Way) element.Meta {
	return meta(w.Version, w.Timestamp, w.ChangesetID, w.UserID, w.User)
}

// RelationMeta returns the metadata of r.
func RelationMeta(r *osm.Relation) element.Meta {
	return meta(r.Version, r.Timestamp, r.ChangesetID, r.UserID, r.User)
}

// NodeSkeleton returns the stored form of n.
func NodeSkeleton(n *osm.Node) element.NodeSkeleton {
	return element.NodeSkeleton{
		ID:  element.ID(n.ID),
		Lat: element.ScaleCoord(n.Lat),
		Lon: element.ScaleCoord(n.Lon),
	}
}

// WaySkeleton returns the stored form of w.
func WaySkeleton(w *osm.Way) element.WaySkeleton {
	nodes := make([]element.ID, len(w.Nodes))
	for i, wn := range w.Nodes {
		nodes[i] = element.ID(wn.ID)
	}
	return element.WaySkeleton{ID: element.ID(w.ID), Nodes: nodes}
}

// Members returns the member list of r with role strings.
func Members(r *osm.Relation) ([]element.RelationMember, error) {
	out := make([]element.RelationMember, len(r.Members))
	for i, m := range r.Members {
		kind, err := element.ParseKind(string(m.Type))
		if err != nil {
			return nil, fmt.Errorf("relation %d member %d: %w", r.ID, i, err)
		}
		out[i] = element.RelationMember{Ref: element.ID(m.Ref), Type: kind, Role: m.Role}
	}
	return out, nil
}
