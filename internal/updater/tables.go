package updater

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

// Tables bundles the stores of one element kind.
type Tables[S element.Lesser[S]] struct {
	Skeletons store.IndexedStore[spatial.Index, S]
	Meta      store.IndexedStore[spatial.Index, element.Meta]
	Local     store.IndexedStore[element.TagLocal, element.ID]
	Global    store.IndexedStore[element.TagGlobal, element.ID]

	AtticSkeletons store.IndexedStore[spatial.Index, element.Attic[S]]
	AtticMeta      store.IndexedStore[spatial.Index, element.Attic[element.Meta]]
	AtticLocal     store.IndexedStore[element.TagLocal, element.Attic[element.ID]]
	AtticGlobal    store.IndexedStore[element.TagGlobal, element.Attic[element.ID]]

	Directory store.Directory
}

// NewMemTables creates memory-backed tables with every history table.
func NewMemTables[S element.Lesser[S]]() *Tables[S] {
	return &Tables[S]{
		Skeletons:      store.NewMemStore[spatial.Index, S](),
		Meta:           store.NewMemStore[spatial.Index, element.Meta](),
		Local:          store.NewMemStore[element.TagLocal, element.ID](),
		Global:         store.NewMemStore[element.TagGlobal, element.ID](),
		AtticSkeletons: store.NewMemStore[spatial.Index, element.Attic[S]](),
		AtticMeta:      store.NewMemStore[spatial.Index, element.Attic[element.Meta]](),
		AtticLocal:     store.NewMemStore[element.TagLocal, element.Attic[element.ID]](),
		AtticGlobal:    store.NewMemStore[element.TagGlobal, element.Attic[element.ID]](),
		Directory:      store.NewMemDirectory(),
	}
}

func (t *Tables[S]) validate(mode MetaMode) error {
	if t == nil || t.Skeletons == nil || t.Local == nil || t.Global == nil || t.Directory == nil {
		return errors.New("skeleton, tag and directory tables are required")
	}
	if mode >= MetaKeep && t.Meta == nil {
		return fmt.Errorf("meta mode %s requires a meta table", mode)
	}
	if mode == MetaAttic && (t.AtticSkeletons == nil || t.AtticMeta == nil || t.AtticLocal == nil || t.AtticGlobal == nil) {
		return fmt.Errorf("meta mode %s requires the history tables", mode)
	}
	return nil
}

func replace[K store.Key[K], R element.Lesser[R]](ctx context.Context, st store.IndexedStore[K, R], remove, add store.Buckets[K, R]) error {
	if len(remove) == 0 && len(add) == 0 {
		return nil
	}
	return st.AtomicReplace(ctx, remove, add)
}

// RebuildDirectory re-derives directory entries from a full scan of a
// skeleton table and returns the number of entries written. Entries of
// ids without a skeleton are left alone; start from an empty directory
// to drop them.
func RebuildDirectory[S Skeleton[S]](ctx context.Context, skeletons store.IndexedStore[spatial.Index, S], dir store.Directory) (int, error) {
	n := 0
	all := []store.Range[spatial.Index]{{Begin: 0, End: math.MaxUint32}}
	err := skeletons.RangeIterate(ctx, all, func(idx spatial.Index, s S) error {
		if err := dir.Put(ctx, s.ElemID(), idx); err != nil {
			return fmt.Errorf("put %d: %w", s.ElemID(), err)
		}
		n++
		return nil
	})
	return n, err
}
