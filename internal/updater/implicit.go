package updater

import (
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

// Target is the new placement of a dependent that was not resubmitted but
// whose members moved. To is always a storable index; ambiguous dependents
// are placed at spatial.WideScan by the caller before they get here.
type Target struct {
	From  spatial.Index
	To    spatial.Index
	Until int64
}

// Targets maps dependent ids to their new placement.
type Targets map[element.ID]Target

func propagate[K store.Key[K], R element.Lesser[R]](
	existing store.Buckets[K, R],
	targets Targets,
	idOf func(R) element.ID,
	rekey func(K, spatial.Index) K,
) (attic, added store.Buckets[K, R]) {
	attic = make(store.Buckets[K, R])
	added = make(store.Buckets[K, R])
	for k, s := range existing {
		for _, r := range s.Items() {
			t, ok := targets[idOf(r)]
			if !ok {
				continue
			}
			attic.Add(k, r)
			added.Add(rekey(k, t.To), r)
		}
	}
	return attic, added
}

func toIndex(_ spatial.Index, to spatial.Index) spatial.Index { return to }

// ImplicitSkeletons moves the unchanged skeletons of dependents.
func ImplicitSkeletons[S Skeleton[S]](existing store.Buckets[spatial.Index, S], targets Targets) (attic, added store.Buckets[spatial.Index, S]) {
	return propagate(existing, targets, func(s S) element.ID { return s.ElemID() }, toIndex)
}

// ImplicitMeta moves the meta of dependents.
func ImplicitMeta(existing store.Buckets[spatial.Index, element.Meta], targets Targets) (attic, added store.Buckets[spatial.Index, element.Meta]) {
	return propagate(existing, targets, func(m element.Meta) element.ID { return m.Ref }, toIndex)
}

// ImplicitLocalTags moves the local tags of dependents to the block of
// their new index.
func ImplicitLocalTags(existing localTags, targets Targets) (attic, added localTags) {
	return propagate(existing, targets, func(id element.ID) element.ID { return id },
		func(k element.TagLocal, to spatial.Index) element.TagLocal {
			return element.LocalTag(to, k.Key, k.Value)
		})
}
