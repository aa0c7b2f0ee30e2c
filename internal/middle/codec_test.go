package middle

import (
	"bytes"
	"testing"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

func TestLocalTagCodecPreservesOrder(t *testing.T) {
	a := spatial.FromLatLon(51.25, 7.15)
	keys := []element.TagLocal{
		element.LocalTag(a, "", ""),
		element.LocalTag(a, "name", ""),
		element.LocalTag(a, "name", "a"),
		element.LocalTag(a, "name", "a\x00"),
		element.LocalTag(a, "name", "a\x01"),
		element.LocalTag(a, "name", "ab"),
		element.LocalTag(a, "name\x00x", ""),
		element.LocalTag(a, "namex", ""),
		element.LocalTag(a+0x100, "amenity", "cafe"),
	}
	for i := 1; i < len(keys); i++ {
		prev, cur := keys[i-1], keys[i]
		if !prev.Less(cur) {
			t.Fatalf("test keys not ordered at %d", i)
		}
		if bytes.Compare(LocalTagCodec.Encode(prev), LocalTagCodec.Encode(cur)) >= 0 {
			t.Errorf("encoding of %q/%q does not sort before %q/%q", prev.Key, prev.Value, cur.Key, cur.Value)
		}
	}
	for _, k := range keys {
		got, err := LocalTagCodec.Decode(LocalTagCodec.Encode(k))
		if err != nil {
			t.Fatalf("decode %v: %v", k, err)
		}
		if got != k {
			t.Errorf("round trip %v = %v", k, got)
		}
	}
}

func TestBlockRangeEncodesAsByteRange(t *testing.T) {
	a := spatial.FromLatLon(51.25, 7.15)
	begin, end := element.BlockRange(a)
	lo, hi := LocalTagCodec.Encode(begin), LocalTagCodec.Encode(end)

	inside := LocalTagCodec.Encode(element.LocalTag(a, "zzz", "\xff\xff"))
	if bytes.Compare(inside, lo) < 0 || bytes.Compare(inside, hi) >= 0 {
		t.Error("tag of the block falls outside its byte range")
	}
	next := LocalTagCodec.Encode(element.LocalTag(a+0x100, "", ""))
	if bytes.Compare(next, hi) < 0 {
		t.Error("tag of the next block falls inside the byte range")
	}
}

func TestIndexCodec(t *testing.T) {
	for _, idx := range []spatial.Index{0, 1, spatial.FromLatLon(51.25, 7.15), spatial.WideScan} {
		got, err := IndexCodec.Decode(IndexCodec.Encode(idx))
		if err != nil || got != idx {
			t.Errorf("round trip %v = %v, %v", idx, got, err)
		}
	}
	if bytes.Compare(IndexCodec.Encode(5), IndexCodec.Encode(0x100)) >= 0 {
		t.Error("index encoding does not preserve order")
	}
	if _, err := IndexCodec.Decode([]byte{1, 2}); err == nil {
		t.Error("expected error for short key")
	}
}

func TestGlobalTagCodecRejectsGarbage(t *testing.T) {
	bad := [][]byte{
		{'a'},
		{'a', 0},
		{'a', 0, 7},
		append(GlobalTagCodec.Encode(element.TagGlobal{Key: "a", Value: "b"}), 'x'),
	}
	for _, b := range bad {
		if _, err := GlobalTagCodec.Decode(b); err == nil {
			t.Errorf("Decode(%v): expected error", b)
		}
	}
}

func TestAtticIdentityOrdersByUntil(t *testing.T) {
	id := atticIdentity(idIdentity)
	early := id(element.NewAttic[element.ID](7, -100))
	late := id(element.NewAttic[element.ID](7, 1000))
	if bytes.Compare(early, late) >= 0 {
		t.Error("negative until must sort first")
	}
	if bytes.Equal(metaIdentity(element.Meta{Ref: 1, Version: 2}), metaIdentity(element.Meta{Ref: 1, Version: 3})) {
		t.Error("meta versions must have distinct identities")
	}
}
