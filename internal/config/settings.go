// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings is an ordered map of device settings
type Settings struct {
	keys   []string
	values map[string]any
}

// NewSettings builds Settings from alternating key, value pairs
func NewSettings(pairs ...any) Settings {
	var s Settings
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Set(fmt.Sprint(pairs[i]), pairs[i+1])
	}
	return s
}

// UnmarshalYAML decodes a mapping, keeping key order
func (s *Settings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*s = Settings{}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: settings must be a mapping", node.Line)
	}

	out := Settings{values: make(map[string]any, len(node.Content)/2)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if _, dup := out.values[keyNode.Value]; dup {
			return fmt.Errorf("line %d: duplicate setting %q", keyNode.Line, keyNode.Value)
		}

		var v any
		if err := valueNode.Decode(&v); err != nil {
			return fmt.Errorf("line %d: setting %q: %w", valueNode.Line, keyNode.Value, err)
		}
		out.keys = append(out.keys, keyNode.Value)
		out.values[keyNode.Value] = v
	}

	*s = out
	return nil
}

// MarshalYAML encodes the settings as a mapping in key order
func (s Settings) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range s.keys {
		var v yaml.Node
		if err := v.Encode(s.values[k]); err != nil {
			return nil, fmt.Errorf("setting %q: %w", k, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &v)
	}
	return node, nil
}

// String returns the settings as a one-line YAML flow mapping, in key order
func (s Settings) String() string {
	v, err := s.MarshalYAML()
	if err != nil {
		return fmt.Sprintf("<%d settings: %v>", s.Len(), err)
	}
	node := v.(*yaml.Node)
	node.Style = yaml.FlowStyle

	out, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Sprintf("<%d settings: %v>", s.Len(), err)
	}
	return strings.TrimSpace(string(out))
}

// Len returns the number of settings
func (s Settings) Len() int {
	return len(s.keys)
}

// Keys returns the keys in file order
func (s Settings) Keys() []string {
	return slices.Clone(s.keys)
}

// Values returns a copy of the key to value map
func (s Settings) Values() map[string]any {
	if s.values == nil {
		return map[string]any{}
	}
	return maps.Clone(s.values)
}

// Get returns a setting value
func (s Settings) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set adds or replaces a setting; new keys go last
func (s *Settings) Set(key string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// ChangedKeys returns the keys whose value differs between old and next.
// Keys present in next come first, in next's order; keys only in old follow
// in old's order, since their value is now absent.
func ChangedKeys(old, next Settings) []string {
	var changed []string
	for _, k := range next.keys {
		ov, ok := old.values[k]
		if !ok || !reflect.DeepEqual(ov, next.values[k]) {
			changed = append(changed, k)
		}
	}
	for _, k := range old.keys {
		if _, ok := next.values[k]; !ok {
			changed = append(changed, k)
		}
	}
	return changed
}
