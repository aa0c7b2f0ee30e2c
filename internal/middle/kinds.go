package middle

import (
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
	"github.com/wegman-software/osmindex-go/internal/updater"
)

func skeletonIdentity[S updater.Skeleton[S]](s S) []byte {
	return idIdentity(s.ElemID())
}

// KindTables binds the tables of one kind. The directory is left to the
// caller, which may keep it elsewhere.
func KindTables[S updater.Skeleton[S]](m *MiddleStore, kind element.Kind) *updater.Tables[S] {
	name := func(suffix string) string { return m.tableName(kind, suffix) }
	return &updater.Tables[S]{
		Skeletons: NewTable[spatial.Index, S](m, name("skeletons"), IndexCodec, skeletonIdentity[S]),
		Meta:      NewTable[spatial.Index, element.Meta](m, name("meta"), IndexCodec, metaIdentity),
		Local:     NewTable[element.TagLocal, element.ID](m, name("tags_local"), LocalTagCodec, idIdentity),
		Global:    NewTable[element.TagGlobal, element.ID](m, name("tags_global"), GlobalTagCodec, idIdentity),

		AtticSkeletons: NewTable[spatial.Index, element.Attic[S]](m, name("skeletons_attic"), IndexCodec, atticIdentity(skeletonIdentity[S])),
		AtticMeta:      NewTable[spatial.Index, element.Attic[element.Meta]](m, name("meta_attic"), IndexCodec, atticIdentity(metaIdentity)),
		AtticLocal:     NewTable[element.TagLocal, element.Attic[element.ID]](m, name("tags_local_attic"), LocalTagCodec, atticIdentity(idIdentity)),
		AtticGlobal:    NewTable[element.TagGlobal, element.Attic[element.ID]](m, name("tags_global_attic"), GlobalTagCodec, atticIdentity(idIdentity)),
	}
}

var (
	_ store.IndexedStore[spatial.Index, element.NodeSkeleton] = (*Table[spatial.Index, element.NodeSkeleton])(nil)
	_ store.Directory                                         = (*Directory)(nil)
	_ updater.RoleStore                                       = (*RoleStore)(nil)
)
