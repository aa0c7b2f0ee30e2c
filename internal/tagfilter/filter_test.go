package tagfilter

import (
	"reflect"
	"testing"

	"github.com/wegman-software/osmindex-go/internal/element"
)

func tags(kv ...string) []element.Tag {
	var out []element.Tag
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, element.Tag{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

const testRules = `
all:
  exclude:
    created_by: []
    source: ["*"]
ways:
  include:
    highway: []
    name: []
  exclude:
    highway: [proposed]
`

func TestRulesFilter(t *testing.T) {
	rules, err := ParseRules([]byte(testRules))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		kind element.Kind
		in   []element.Tag
		want []element.Tag
	}{
		{
			name: "node keeps all but excluded",
			kind: element.Node,
			in:   tags("amenity", "cafe", "created_by", "JOSM", "source", "survey"),
			want: tags("amenity", "cafe"),
		},
		{
			name: "way keeps included keys",
			kind: element.Way,
			in:   tags("highway", "primary", "name", "Main St", "surface", "asphalt"),
			want: tags("highway", "primary", "name", "Main St"),
		},
		{
			name: "way drops excluded value",
			kind: element.Way,
			in:   tags("highway", "proposed", "name", "Future Rd"),
			want: tags("name", "Future Rd"),
		},
		{
			name: "relation untouched by way rules",
			kind: element.Relation,
			in:   tags("type", "route"),
			want: tags("type", "route"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rules.Filter(tt.kind, 1, tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmptyRulesKeepEverything(t *testing.T) {
	var rules *Rules
	in := tags("a", "b")
	got, err := rules.Filter(element.Node, 1, in)
	if err != nil || !reflect.DeepEqual(got, in) {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestLuaFilter(t *testing.T) {
	f, err := NewLua(`
function filter_tags(kind, id, tags)
  if kind == "node" and tags.amenity == nil then
    return nil
  end
  tags["note"] = nil
  tags["osm_id"] = id
  return tags
end`)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := f.Filter(element.Node, 7, tags("amenity", "cafe", "note", "x"))
	if err != nil {
		t.Fatal(err)
	}
	want := tags("amenity", "cafe", "osm_id", "7")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	got, err = f.Filter(element.Node, 8, tags("name", "x"))
	if err != nil || got != nil {
		t.Errorf("expected all tags dropped, got %v, %v", got, err)
	}
}

func TestLuaFilterErrors(t *testing.T) {
	if _, err := NewLua(`x = 1`); err == nil {
		t.Error("expected error for missing filter_tags")
	}
	f, err := NewLua(`function filter_tags() return 5 end`)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Filter(element.Way, 1, nil); err == nil {
		t.Error("expected error for non-table result")
	}
}

func TestChain(t *testing.T) {
	rules, err := ParseRules([]byte(testRules))
	if err != nil {
		t.Fatal(err)
	}
	lf, err := NewLua(`function filter_tags(kind, id, tags) tags.name = nil; return tags end`)
	if err != nil {
		t.Fatal(err)
	}
	defer lf.Close()

	got, err := Chain{None, rules, lf}.Filter(element.Way, 1, tags("highway", "primary", "name", "Main St", "source", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if want := tags("highway", "primary"); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
