package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/macup/macup/pkg/engine"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ListTarget is a string list in the config file that items can be added to,
// and the section that installs them.
type ListTarget struct {
	Table   string
	Key     string
	Section string
}

// String returns the dotted key, e.g. "brew.casks".
func (t ListTarget) String() string {
	return t.Table + "." + t.Key
}

var addTargets = map[string]ListTarget{
	"tap":      {Table: "brew", Key: "taps", Section: SectionTaps},
	"brew":     {Table: "brew", Key: "formulae", Section: SectionBrew},
	"cask":     {Table: "brew", Key: "casks", Section: SectionCasks},
	"packages": {Table: "packages", Key: "names", Section: SectionPackages},
	"npm":      {Table: "npm", Key: "global", Section: SectionNpm},
	"cargo":    {Table: "cargo", Key: "packages", Section: SectionCargo},
}

// AddTargetNames returns the manager names accepted by AddTarget.
func AddTargetNames() []string {
	names := make([]string, 0, len(addTargets))
	for name := range addTargets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddTarget resolves a manager name to the list it adds to. App Store apps
// need a name and an id, so they are not supported.
func AddTarget(manager string) (ListTarget, error) {
	if manager == SectionMas {
		return ListTarget{}, fmt.Errorf("mas apps need a name and an id; add them to [[mas.apps]] in the config file")
	}
	t, ok := addTargets[manager]
	if !ok {
		return ListTarget{}, fmt.Errorf("unknown manager %q (valid: %v)", manager, AddTargetNames())
	}
	return t, nil
}

// AddItems appends the items not already listed at target to the config file
// and returns the ones it added. The edited file is validated before it is
// written; nothing is written when every item is already listed.
//
// YAML files keep their comments. TOML files are re-encoded, so comments and
// key order are not preserved.
func AddItems(path string, target ListTarget, items []string) ([]string, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var out []byte
	var added []string
	switch format {
	case FormatYAML:
		out, added, err = addYAML(data, target, items)
	default:
		out, added, err = addTOML(data, target, items)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(added) == 0 {
		return nil, nil
	}

	if _, err := Parse(out, format); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return nil, err
	}
	return added, nil
}

// newItems returns items not in existing, deduplicated, in argument order.
func newItems(existing []string, items []string) []string {
	seen := make(map[string]bool, len(existing)+len(items))
	for _, item := range existing {
		seen[item] = true
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func addTOML(data []byte, target ListTarget, items []string) ([]byte, []string, error) {
	doc := make(map[string]any)
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, nil, engine.NewConfigValidationError("invalid TOML", err)
	}

	var table map[string]any
	switch v := doc[target.Table].(type) {
	case nil:
		table = make(map[string]any)
		doc[target.Table] = table
	case map[string]any:
		table = v
	default:
		return nil, nil, engine.NewConfigValidationError(fmt.Sprintf("%s is not a table", target.Table), nil)
	}

	var list []any
	switch v := table[target.Key].(type) {
	case nil:
	case []any:
		list = v
	default:
		return nil, nil, engine.NewConfigValidationError(fmt.Sprintf("%s is not a list", target), nil)
	}

	existing := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			existing = append(existing, s)
		}
	}

	added := newItems(existing, items)
	if len(added) == 0 {
		return nil, nil, nil
	}
	for _, item := range added {
		list = append(list, item)
	}
	table[target.Key] = list

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}
	return out, added, nil
}

func addYAML(data []byte, target ListTarget, items []string) ([]byte, []string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, engine.NewConfigValidationError("invalid YAML", err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, engine.NewConfigValidationError("config root is not a mapping", nil)
	}

	table, err := childNode(root, target.Table, yaml.MappingNode, "!!map")
	if err != nil {
		return nil, nil, err
	}
	list, err := childNode(table, target.Key, yaml.SequenceNode, "!!seq")
	if err != nil {
		return nil, nil, err
	}

	existing := make([]string, 0, len(list.Content))
	for _, n := range list.Content {
		existing = append(existing, n.Value)
	}

	added := newItems(existing, items)
	if len(added) == 0 {
		return nil, nil, nil
	}
	for _, item := range added {
		list.Content = append(list.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), added, nil
}

// childNode returns the value under key in a mapping node, creating it when
// missing or null.
func childNode(mapping *yaml.Node, key string, kind yaml.Kind, tag string) (*yaml.Node, error) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != key {
			continue
		}
		value := mapping.Content[i+1]
		if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
			*value = yaml.Node{Kind: kind, Tag: tag}
		}
		if value.Kind != kind {
			return nil, engine.NewConfigValidationError(fmt.Sprintf("%s has the wrong type", key), nil)
		}
		return value, nil
	}

	value := &yaml.Node{Kind: kind, Tag: tag}
	mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
	return value, nil
}
