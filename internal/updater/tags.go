package updater

import (
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/store"
)

type (
	localTags  = store.Buckets[element.TagLocal, element.ID]
	globalTags = store.Buckets[element.TagGlobal, element.ID]
)

// DiffLocalTags retires the existing local tags of the staged ids and
// re-adds the full tag list of every id that is not deleted at the block
// of its target index. existing must hold only entries of staged ids.
func DiffLocalTags[S any](data *DataByID[S], existing localTags) (attic, added localTags) {
	attic = existing.Clone()
	added = make(localTags)
	for _, e := range data.Last() {
		if e.Pos.IsDeleted() {
			continue
		}
		idx := e.Pos.Stored()
		for _, t := range e.Tags {
			added.Add(element.LocalTag(idx, t.Key, t.Value), e.ID)
		}
	}
	return attic, added
}

// DeriveGlobalTags drops the block of every local entry and unions the ids.
func DeriveGlobalTags(local localTags) globalTags {
	out := make(globalTags)
	for k, s := range local {
		for _, id := range s.Items() {
			out.Add(k.Global(), id)
		}
	}
	return out
}

// AtticGlobalTags derives the history global tags. A void value entry
// (key, "") is dropped for every record that also appears under the same
// key with a specific value.
func AtticGlobalTags(local store.Buckets[element.TagLocal, element.Attic[element.ID]]) store.Buckets[element.TagGlobal, element.Attic[element.ID]] {
	out := make(store.Buckets[element.TagGlobal, element.Attic[element.ID]])
	for k, s := range local {
		if k.Value != "" {
			continue
		}
		for _, a := range s.Items() {
			out.Add(k.Global(), a)
		}
	}
	for k, s := range local {
		if k.Value == "" {
			continue
		}
		void := element.TagGlobal{Key: k.Key}
		for _, a := range s.Items() {
			out.Add(k.Global(), a)
			out.Remove(void, a)
		}
	}
	return out
}

// tagsByID regroups local entries per id, in key order.
func tagsByID(local localTags) map[element.ID][]element.Tag {
	out := make(map[element.ID][]element.Tag)
	local.Each(func(k element.TagLocal, id element.ID) {
		out[id] = append(out[id], element.Tag{Key: k.Key, Value: k.Value})
	})
	return out
}
