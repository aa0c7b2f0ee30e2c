package middle

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// KeyCodec maps table keys to bytea values whose byte order equals the
// key order, so range scans can run on the primary key.
type KeyCodec[K any] struct {
	Encode func(K) []byte
	Decode func([]byte) (K, error)
}

// IndexCodec encodes spatial indices as 4 big-endian bytes.
var IndexCodec = KeyCodec[spatial.Index]{
	Encode: func(idx spatial.Index) []byte {
		return binary.BigEndian.AppendUint32(nil, uint32(idx))
	},
	Decode: func(b []byte) (spatial.Index, error) {
		if len(b) != 4 {
			return 0, fmt.Errorf("index key has %d bytes", len(b))
		}
		return spatial.Index(binary.BigEndian.Uint32(b)), nil
	},
}

// LocalTagCodec encodes block, key and value.
var LocalTagCodec = KeyCodec[element.TagLocal]{
	Encode: func(t element.TagLocal) []byte {
		b := binary.BigEndian.AppendUint32(nil, uint32(t.Block))
		b = appendString(b, t.Key)
		return appendString(b, t.Value)
	},
	Decode: func(b []byte) (element.TagLocal, error) {
		if len(b) < 4 {
			return element.TagLocal{}, fmt.Errorf("local tag key has %d bytes", len(b))
		}
		t := element.TagLocal{Block: spatial.Index(binary.BigEndian.Uint32(b))}
		var err error
		rest := b[4:]
		if t.Key, rest, err = readString(rest); err != nil {
			return t, err
		}
		if t.Value, rest, err = readString(rest); err != nil {
			return t, err
		}
		if len(rest) != 0 {
			return t, fmt.Errorf("local tag key has %d trailing bytes", len(rest))
		}
		return t, nil
	},
}

// GlobalTagCodec encodes key and value.
var GlobalTagCodec = KeyCodec[element.TagGlobal]{
	Encode: func(t element.TagGlobal) []byte {
		return appendString(appendString(nil, t.Key), t.Value)
	},
	Decode: func(b []byte) (element.TagGlobal, error) {
		var t element.TagGlobal
		var err error
		if t.Key, b, err = readString(b); err != nil {
			return t, err
		}
		if t.Value, b, err = readString(b); err != nil {
			return t, err
		}
		if len(b) != 0 {
			return t, fmt.Errorf("global tag key has %d trailing bytes", len(b))
		}
		return t, nil
	},
}

// Strings are terminated by 0x00 0x01; embedded zero bytes become
// 0x00 0xff. A string sorts before every extension of itself.
func appendString(b []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			b = append(b, 0, 0xff)
			continue
		}
		b = append(b, s[i])
	}
	return append(b, 0, 1)
}

func readString(b []byte) (string, []byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(b); i++ {
		if b[i] != 0 {
			out.WriteByte(b[i])
			continue
		}
		if i+1 >= len(b) {
			return "", nil, fmt.Errorf("truncated string escape")
		}
		switch b[i+1] {
		case 1:
			return out.String(), b[i+2:], nil
		case 0xff:
			out.WriteByte(0)
			i++
		default:
			return "", nil, fmt.Errorf("bad string escape 0x00 0x%02x", b[i+1])
		}
	}
	return "", nil, fmt.Errorf("unterminated string")
}

// Record identities distinguish the records stored under one key. Two
// records with the same identity replace each other.

func idIdentity(id element.ID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

func metaIdentity(m element.Meta) []byte {
	return binary.BigEndian.AppendUint32(idIdentity(m.Ref), m.Version)
}

// atticIdentity appends the end of validity with the sign bit flipped so
// negative timestamps sort first.
func atticIdentity[T element.Lesser[T]](inner func(T) []byte) func(element.Attic[T]) []byte {
	return func(a element.Attic[T]) []byte {
		return binary.BigEndian.AppendUint64(inner(a.Elem), uint64(a.Until)^(1<<63))
	}
}
