package element

import (
	"fmt"
	"slices"
)

// ID identifies an element within its kind.
type ID uint64

// Less orders ids numerically.
func (i ID) Less(o ID) bool { return i < o }

// Kind is the OSM element type. Each kind has its own id space.
type Kind uint8

const (
	Node Kind = iota + 1
	Way
	Relation
)

func (k Kind) String() string {
	switch k {
	case Node:
		return "node"
	case Way:
		return "way"
	case Relation:
		return "relation"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind accepts both the long OSM names and the one-letter forms.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "node", "n", "N":
		return Node, nil
	case "way", "w", "W":
		return Way, nil
	case "relation", "r", "R":
		return Relation, nil
	}
	return 0, fmt.Errorf("unknown element kind %q", s)
}

// NodeSkeleton is the stored form of a node without tags.
// Coordinates are scaled integers (lat/lon × 10^7).
type NodeSkeleton struct {
	ID  ID    `json:"id"`
	Lat int32 `json:"lat"`
	Lon int32 `json:"lon"`
}

func (n NodeSkeleton) ElemID() ID                 { return n.ID }
func (n NodeSkeleton) Less(o NodeSkeleton) bool   { return n.ID < o.ID }
func (n NodeSkeleton) Equal(o NodeSkeleton) bool  { return n == o }
func (n NodeSkeleton) LatLon() (float64, float64) { return UnscaleCoord(n.Lat), UnscaleCoord(n.Lon) }

// WaySkeleton is the stored form of a way: its ordered node refs.
type WaySkeleton struct {
	ID    ID   `json:"id"`
	Nodes []ID `json:"nodes"`
}

func (w WaySkeleton) ElemID() ID               { return w.ID }
func (w WaySkeleton) Less(o WaySkeleton) bool  { return w.ID < o.ID }
func (w WaySkeleton) Equal(o WaySkeleton) bool { return w.ID == o.ID && slices.Equal(w.Nodes, o.Nodes) }

// Member is a relation member as stored: the role is an interned role id.
type Member struct {
	Ref  ID     `json:"ref"`
	Type Kind   `json:"type"`
	Role uint32 `json:"role"`
}

// RelationSkeleton is the stored form of a relation: its member list.
type RelationSkeleton struct {
	ID      ID       `json:"id"`
	Members []Member `json:"members"`
}

func (r RelationSkeleton) ElemID() ID                    { return r.ID }
func (r RelationSkeleton) Less(o RelationSkeleton) bool  { return r.ID < o.ID }
func (r RelationSkeleton) Equal(o RelationSkeleton) bool { return r.ID == o.ID && slices.Equal(r.Members, o.Members) }

// RelationMember is a member as submitted by a caller, with its role string.
type RelationMember struct {
	Ref  ID
	Type Kind
	Role string
}

// Meta is the revision metadata of one element version.
type Meta struct {
	Ref       ID     `json:"ref"`
	Version   uint32 `json:"version"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	Changeset uint64 `json:"changeset"`
	UserID    uint32 `json:"uid"`
	User      string `json:"user,omitempty"`
}

// Less orders meta by element and version.
func (m Meta) Less(o Meta) bool {
	if m.Ref != o.Ref {
		return m.Ref < o.Ref
	}
	return m.Version < o.Version
}

// ScaleCoord converts a float64 lat/lon to scaled integer (× 10^7)
func ScaleCoord(coord float64) int32 {
	if coord < 0 {
		return int32(coord*1e7 - 0.5)
	}
	return int32(coord*1e7 + 0.5)
}

// UnscaleCoord converts a scaled integer back to float64
func UnscaleCoord(scaled int32) float64 {
	return float64(scaled) / 1e7
}
