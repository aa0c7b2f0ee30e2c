package updater

import (
	"context"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

// History holds the records a cycle appends to the history tables. Each
// record carries the timestamp until which it was current.
type History[S element.Lesser[S]] struct {
	Skeletons store.Buckets[spatial.Index, element.Attic[S]]
	Meta      store.Buckets[spatial.Index, element.Attic[element.Meta]]
	Local     store.Buckets[element.TagLocal, element.Attic[element.ID]]
	Global    store.Buckets[element.TagGlobal, element.Attic[element.ID]]
}

func newHistory[S element.Lesser[S]]() History[S] {
	return History[S]{
		Skeletons: make(store.Buckets[spatial.Index, element.Attic[S]]),
		Meta:      make(store.Buckets[spatial.Index, element.Attic[element.Meta]]),
		Local:     make(store.Buckets[element.TagLocal, element.Attic[element.ID]]),
		Global:    make(store.Buckets[element.TagGlobal, element.Attic[element.ID]]),
	}
}

func tagKeys(tags []element.Tag) map[string]bool {
	out := make(map[string]bool, len(tags))
	for _, t := range tags {
		out[t.Key] = true
	}
	return out
}

// buildHistory collects
//   - every record retired from the current tables, valid until the first
//     staged version of its id (or the member move that displaced it),
//   - every intermediate staged version, valid until the next one; deleted
//     intermediates leave a gap,
//   - a void value local tag (block, key, "") for each key a version adds,
//     valid until that version.
func (e *engine[S]) buildHistory(c *Cycle[S]) History[S] {
	h := newHistory[S]()
	withMeta := e.opts.MetaMode >= MetaKeep

	until := make(map[element.ID]int64, len(c.ids)+len(c.targets))
	for id, t := range c.targets {
		until[id] = t.Until
	}
	priorTags := tagsByID(c.local)

	e.data.runs(func(run []Entry[S]) {
		id := run[0].ID
		until[id] = run[0].Meta.Timestamp

		prevIdx, alive := c.prior[id]
		prevKeys := tagKeys(priorTags[id])
		for i, en := range run {
			deleted := en.Pos.IsDeleted()
			if alive && !deleted {
				for _, t := range en.Tags {
					if !prevKeys[t.Key] {
						h.Local.Add(element.LocalTag(prevIdx, t.Key, ""), element.NewAttic(id, en.Meta.Timestamp))
					}
				}
			}
			if i < len(run)-1 && !deleted {
				next := run[i+1].Meta.Timestamp
				idx := en.Pos.Stored()
				h.Skeletons.Add(idx, element.NewAttic(en.Elem, next))
				if withMeta {
					h.Meta.Add(idx, element.NewAttic(en.Meta, next))
				}
				for _, t := range en.Tags {
					h.Local.Add(element.LocalTag(idx, t.Key, t.Value), element.NewAttic(id, next))
				}
			}
			alive = !deleted
			if alive {
				prevIdx = en.Pos.Stored()
				prevKeys = tagKeys(en.Tags)
			}
		}
	})

	c.skel.Attic.Each(func(k spatial.Index, s S) {
		h.Skeletons.Add(k, element.NewAttic(s, until[s.ElemID()]))
	})
	if withMeta {
		c.metaAttic.Each(func(k spatial.Index, m element.Meta) {
			h.Meta.Add(k, element.NewAttic(m, until[m.Ref]))
		})
	}
	c.localAttic.Each(func(k element.TagLocal, id element.ID) {
		h.Local.Add(k, element.NewAttic(id, until[id]))
	})
	h.Global = AtticGlobalTags(h.Local)
	return h
}

// applyHistory appends the history records. History is never removed.
func (e *engine[S]) applyHistory(ctx context.Context, h History[S]) error {
	t := e.tables
	if err := replace(ctx, t.AtticSkeletons, nil, h.Skeletons); err != nil {
		return err
	}
	if err := replace(ctx, t.AtticMeta, nil, h.Meta); err != nil {
		return err
	}
	if err := replace(ctx, t.AtticLocal, nil, h.Local); err != nil {
		return err
	}
	return replace(ctx, t.AtticGlobal, nil, h.Global)
}
