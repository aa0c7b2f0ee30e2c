package element

import "github.com/wegman-software/osmindex-go/internal/spatial"

// Tag is a key/value pair attached to an element.
type Tag struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// TagLocal keys the spatially clustered tag index.
type TagLocal struct {
	Block spatial.Index `json:"block"`
	Key   string        `json:"k"`
	Value string        `json:"v"`
}

// LocalTag builds the local tag key of a tag stored at idx.
func LocalTag(idx spatial.Index, key, value string) TagLocal {
	return TagLocal{Block: idx.Block(), Key: key, Value: value}
}

// Less orders by block, then key, then value.
func (t TagLocal) Less(o TagLocal) bool {
	if t.Block != o.Block {
		return t.Block < o.Block
	}
	if t.Key != o.Key {
		return t.Key < o.Key
	}
	return t.Value < o.Value
}

// Global drops the spatial component.
func (t TagLocal) Global() TagGlobal {
	return TagGlobal{Key: t.Key, Value: t.Value}
}

// TagGlobal keys the dataset-wide tag index. An empty Value stands for
// "the key exists, value irrelevant".
type TagGlobal struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// Less orders by key, then value.
func (t TagGlobal) Less(o TagGlobal) bool {
	if t.Key != o.Key {
		return t.Key < o.Key
	}
	return t.Value < o.Value
}

// BlockRange is the half-open local tag key range covering one block.
func BlockRange(block spatial.Index) (TagLocal, TagLocal) {
	block = block.Block()
	return TagLocal{Block: block}, TagLocal{Block: block + 0x100}
}
