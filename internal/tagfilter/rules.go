package tagfilter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/osmindex-go/internal/element"
)

// Rules is the YAML tag filter configuration
type Rules struct {
	// All applies to every kind before the kind specific rules.
	All       *KindRules `yaml:"all,omitempty"`
	Nodes     *KindRules `yaml:"nodes,omitempty"`
	Ways      *KindRules `yaml:"ways,omitempty"`
	Relations *KindRules `yaml:"relations,omitempty"`
}

// KindRules defines which tags of one kind are kept
type KindRules struct {
	// Include lists the keys to keep, optionally restricted to values.
	// If empty, every tag is a candidate.
	Include map[string][]string `yaml:"include,omitempty"`
	// Exclude drops keys or key/value pairs. Applied after include rules.
	Exclude map[string][]string `yaml:"exclude,omitempty"`
}

// LoadRules loads a tag filter from a YAML file
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag filter file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses a YAML tag filter.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse tag filter YAML: %w", err)
	}
	return &r, nil
}

func (r *Rules) forKind(kind element.Kind) *KindRules {
	switch kind {
	case element.Node:
		return r.Nodes
	case element.Way:
		return r.Ways
	case element.Relation:
		return r.Relations
	}
	return nil
}

// Filter keeps the tags allowed by both the shared and the kind rules.
func (r *Rules) Filter(kind element.Kind, _ element.ID, tags []element.Tag) ([]element.Tag, error) {
	if r == nil || len(tags) == 0 {
		return tags, nil
	}
	specific := r.forKind(kind)
	if r.All.empty() && specific.empty() {
		return tags, nil
	}
	out := make([]element.Tag, 0, len(tags))
	for _, t := range tags {
		if r.All.keep(t) && specific.keep(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (k *KindRules) empty() bool {
	return k == nil || (len(k.Include) == 0 && len(k.Exclude) == 0)
}

// matches reports whether the tag is named by the rule set: a key with no
// values matches any value, "*" matches any value too.
func matches(set map[string][]string, t element.Tag) bool {
	values, ok := set[t.Key]
	if !ok {
		return false
	}
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if v == t.Value || v == "*" {
			return true
		}
	}
	return false
}

func (k *KindRules) keep(t element.Tag) bool {
	if k == nil {
		return true
	}
	if len(k.Include) > 0 && !matches(k.Include, t) {
		return false
	}
	return !matches(k.Exclude, t)
}
