package middle

import (
	"testing"

	"github.com/wegman-software/osmindex-go/internal/config"
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

func TestTableNames(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBSchema = "osm"
	m := NewMiddleStore(cfg, nil)

	tests := []struct {
		kind   element.Kind
		suffix string
		want   string
	}{
		{element.Node, "skeletons", `"osm"."osmindex_node_skeletons"`},
		{element.Way, "tags_local_attic", `"osm"."osmindex_way_tags_local_attic"`},
		{element.Relation, "roles", `"osm"."osmindex_relation_roles"`},
	}
	for _, tt := range tests {
		if got := m.tableName(tt.kind, tt.suffix); got != tt.want {
			t.Errorf("tableName(%s, %s) = %s, want %s", tt.kind, tt.suffix, got, tt.want)
		}
	}
}

func TestKindTablesBindsEveryTable(t *testing.T) {
	m := NewMiddleStore(config.DefaultConfig(), nil)
	tables := KindTables[element.WaySkeleton](m, element.Way)
	if tables.Skeletons == nil || tables.Meta == nil || tables.Local == nil || tables.Global == nil {
		t.Fatal("current tables missing")
	}
	if tables.AtticSkeletons == nil || tables.AtticMeta == nil || tables.AtticLocal == nil || tables.AtticGlobal == nil {
		t.Fatal("history tables missing")
	}
	if tables.Directory != nil {
		t.Error("directory is chosen by the caller")
	}
	if name := tables.Skeletons.(*Table[spatial.Index, element.WaySkeleton]).name; name != `"public"."osmindex_way_skeletons"` {
		t.Errorf("skeleton table = %s", name)
	}
}
