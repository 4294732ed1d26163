package playbook

import (
	"maps"
	"strings"
)

// TemplateStore looks up named playbook attribute bundles.
type TemplateStore interface {
	Template(id string) (map[string]string, bool)
}

// StaticTemplateStore is a TemplateStore backed by a fixed map, usually loaded from configuration.
type StaticTemplateStore map[string]map[string]string

// Template implements TemplateStore. An exact name wins over a case-insensitive match.
// The returned map is a copy.
func (s StaticTemplateStore) Template(id string) (map[string]string, bool) {
	if attrs, ok := s[id]; ok {
		return maps.Clone(attrs), true
	}

	for name, attrs := range s {
		if strings.EqualFold(name, id) {
			return maps.Clone(attrs), true
		}
	}

	return nil, false
}
