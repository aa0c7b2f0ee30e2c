package spatial

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/paulmach/orb"
)

// Index is the coarse spatial clustering key of an element.
//
// Point indices interleave the upper 16 bits of the scaled latitude and
// longitude and always fit in 31 bits. Compound indices (ways and relations
// whose members span several point indices) carry CompoundFlag, the common
// member prefix and their level in the low byte.
type Index uint32

const (
	// DeletedValue is the persisted form of "no location".
	DeletedValue Index = 0
	// AmbiguousValue is the persisted form of an unresolved multi-index
	// placement. It never appears as a final stored index.
	AmbiguousValue Index = 0xFF

	// CompoundFlag marks an index derived from several member indices.
	CompoundFlag Index = 0x80000000

	// BlockMask selects the part of an index that clusters local tags.
	BlockMask Index = 0x7fffff00

	// WideScan is the fallback index for elements whose members are spread
	// too far apart to share a compound index. Its block cannot be reached
	// by any point index.
	WideScan Index = 0xffffff00

	// MinCompoundLevel keeps every compound at least one tag block wide.
	MinCompoundLevel = 8
	// MaxCompoundLevel is the widest compound index; wider member sets are
	// ambiguous and stored at WideScan.
	MaxCompoundLevel = 22

	coordScale = 1e7
)

// FromLatLon derives the point index of a coordinate.
func FromLatLon(lat, lon float64) Index {
	ilat := uint32((lat+91.0)*coordScale + 0.5)
	ilon := uint32(int32(math.Round(lon*coordScale))) ^ 0x80000000
	return interleave(ilat>>16, ilon>>16)
}

// FromPoint derives the point index of an orb point (lon, lat order).
func FromPoint(p orb.Point) Index {
	return FromLatLon(p.Lat(), p.Lon())
}

func interleave(lat, lon uint32) Index {
	var r uint32
	for i := 0; i < 16; i++ {
		r |= ((lat >> i) & 1) << (2*i + 1)
		r |= ((lon >> i) & 1) << (2 * i)
	}
	return Index(r)
}

func deinterleave(v uint32) (lat, lon uint32) {
	for i := 0; i < 16; i++ {
		lat |= ((v >> (2*i + 1)) & 1) << i
		lon |= ((v >> (2 * i)) & 1) << i
	}
	return lat, lon
}

// Block returns the local tag block of the index.
func (i Index) Block() Index {
	return i & BlockMask
}

// IsCompound reports whether the index was derived from several members.
func (i Index) IsCompound() bool {
	return i&CompoundFlag != 0
}

// Level is the number of low bits a compound index spans; zero for points.
func (i Index) Level() int {
	if !i.IsCompound() || i == WideScan {
		return 0
	}
	return int(i & 0xff)
}

// base strips the compound flag and level marker.
func (i Index) base() uint32 {
	if i.IsCompound() {
		return uint32(i&^CompoundFlag) &^ 0xff
	}
	return uint32(i)
}

// Less orders indices numerically.
func (i Index) Less(o Index) bool {
	return i < o
}

func (i Index) String() string {
	switch {
	case i == DeletedValue:
		return "deleted"
	case i == WideScan:
		return "widescan"
	case i.IsCompound():
		return fmt.Sprintf("%08x/%d", uint32(i), i.Level())
	}
	return fmt.Sprintf("%08x", uint32(i))
}

// Bound returns the area covered by the index.
func (i Index) Bound() orb.Bound {
	if i == WideScan {
		return orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	}
	lat16, lon16 := deinterleave(i.base())
	span := uint32(1) << (i.Level() / 2)
	minLat := float64(int64(lat16)<<16)/coordScale - 91.0
	maxLat := float64(int64(lat16+span)<<16)/coordScale - 91.0
	minLon := float64(int64(lon16)<<16-0x80000000) / coordScale
	maxLon := float64(int64(lon16+span)<<16-0x80000000) / coordScale
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
}

// Combine derives the index of a composite element from the indices of its
// members. Zero member indices (unknown members) are skipped. Members that
// span more than MaxCompoundLevel bits, or that are already at WideScan,
// yield an ambiguous position; so does an empty member set.
func Combine(members []Index) Position {
	var first Index
	var diff uint32
	level := 0
	n := 0
	for _, m := range members {
		if m == DeletedValue {
			continue
		}
		if m == WideScan || m == AmbiguousValue {
			return Ambiguous()
		}
		if n == 0 {
			first = m
		} else if m != first {
			diff |= m.base() ^ first.base()
		}
		if l := m.Level(); l > level {
			level = l
		}
		n++
	}
	if n == 0 {
		return Ambiguous()
	}
	if diff == 0 && level == first.Level() {
		return At(first)
	}
	if l := bits.Len32(diff); l > level {
		level = l
	}
	if level < MinCompoundLevel {
		level = MinCompoundLevel
	}
	if level%2 == 1 {
		level++
	}
	if level > MaxCompoundLevel {
		return Ambiguous()
	}
	return At(CompoundFlag | Index(first.base()>>level<<level) | Index(level))
}

// Parents lists every index a composite element containing a member at idx
// can have: idx itself, each enclosing compound level and WideScan.
func Parents(idx Index) []Index {
	if idx == WideScan {
		return []Index{WideScan}
	}
	out := []Index{idx}
	start := idx.Level() + 2
	if start < MinCompoundLevel {
		start = MinCompoundLevel
	}
	b := idx.base()
	for level := start; level <= MaxCompoundLevel; level += 2 {
		out = append(out, CompoundFlag|Index(b>>level<<level)|Index(level))
	}
	return append(out, WideScan)
}
