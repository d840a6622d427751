package plan

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"

	planerrors "github.com/conneroisu/extplan/internal/errors"
)

// Entry is one named entry point and the modules it loads, in load order.
type Entry struct {
	Name    string
	Modules []string
}

// EntryMap maps bundle names to module lists. It keeps insertion order so
// that encoding is deterministic.
type EntryMap []Entry

// Get returns the modules for name.
func (m EntryMap) Get(name string) ([]string, bool) {
	for _, e := range m {
		if e.Name == name {
			return append([]string(nil), e.Modules...), true
		}
	}
	return nil, false
}

// Names returns entry names in order.
func (m EntryMap) Names() []string {
	names := make([]string, len(m))
	for i, e := range m {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of entries.
func (m EntryMap) Len() int { return len(m) }

func (m EntryMap) clone() EntryMap {
	if m == nil {
		return nil
	}
	out := make(EntryMap, len(m))
	for i, e := range m {
		out[i] = Entry{Name: e.Name, Modules: append([]string(nil), e.Modules...)}
	}
	return out
}

// MarshalJSON encodes the map as a JSON object in entry order.
func (m EntryMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Modules)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML encodes the map as a YAML mapping in entry order.
func (m EntryMap) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range m {
		var val yaml.Node
		if err := val.Encode(e.Modules); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Name},
			&val,
		)
	}
	return node, nil
}

// validateBundleNames rejects empty and duplicate names.
func validateBundleNames(bundles []Bundle) error {
	seen := make(map[string]int, len(bundles))
	for i, b := range bundles {
		if b.Name == "" {
			return planerrors.ErrEmptyBundleName(i)
		}
		if first, ok := seen[b.Name]; ok {
			return planerrors.ErrDuplicateBundle(b.Name, first, i)
		}
		seen[b.Name] = i
	}
	return nil
}

// synthesizeEntries builds one entry per bundle with a script, in manifest
// order: the runtime polyfills first, then the bundle's own module.
func synthesizeEntries(bundles []Bundle, runtime RuntimeModules) (EntryMap, []Advisory, error) {
	if err := validateBundleNames(bundles); err != nil {
		return nil, nil, err
	}

	entries := make(EntryMap, 0, len(bundles))
	var advisories []Advisory
	for _, b := range bundles {
		if b.IndexJS == "" {
			if b.IndexHTML == "" {
				advisories = append(advisories, Advisory{
					Code:    AdvisoryEmptyBundle,
					Subject: b.Name,
					Message: "bundle declares neither a script nor a page and contributes nothing",
				})
			}
			continue
		}
		entries = append(entries, Entry{
			Name:    b.Name,
			Modules: []string{runtime.Polyfills, b.IndexJS},
		})
	}
	return entries, advisories, nil
}
