// Package params models the ordered key/value option lists found in suite
// files. YAML mappings lose their order when decoded into a Go map, but the
// order matters here: it decides the position of payload flags and the
// layout of the config dump, so runs stay diffable across invocations.
package params

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Param is a single key/value entry.
type Param struct {
	Key   string
	Value any
}

// Params is an option list in file order.
type Params []Param

// UnmarshalYAML decodes a YAML mapping while preserving the key order.
func (p *Params) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping, got %s", nodeKind(node.Kind))
	}

	out := make(Params, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("failed to decode mapping key: %w", err)
		}
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("failed to decode value of %q: %w", key, err)
		}
		out = append(out, Param{Key: key, Value: value})
	}
	*p = out
	return nil
}

// MarshalYAML emits the list as a mapping in insertion order.
func (p Params) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, kv := range p {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(kv.Key); err != nil {
			return nil, err
		}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(kv.Value); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

// MarshalJSON emits a JSON object in insertion order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal value of %q: %w", kv.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value stored under key.
func (p Params) Get(key string) (any, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Set returns a copy with key set to value. An existing entry keeps its
// position, a new one is appended.
func (p Params) Set(key string, value any) Params {
	out := p.Clone()
	for i, kv := range out {
		if kv.Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Param{Key: key, Value: value})
}

// Without returns a copy with the given keys removed.
func (p Params) Without(keys ...string) Params {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	out := make(Params, 0, len(p))
	for _, kv := range p {
		if !drop[kv.Key] {
			out = append(out, kv)
		}
	}
	return out
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	copy(out, p)
	return out
}

// Flags converts the list to command line flags. True booleans become bare
// flags, false ones are dropped entirely, everything else becomes a flag
// followed by its value. Single letter keys get a single dash.
func (p Params) Flags() []string {
	var flags []string
	for _, kv := range p {
		dash := "-"
		if len(kv.Key) > 1 {
			dash = "--"
		}
		if b, ok := kv.Value.(bool); ok {
			if b {
				flags = append(flags, dash+kv.Key)
			}
			continue
		}
		flags = append(flags, dash+kv.Key, fmt.Sprintf("%v", kv.Value))
	}
	return flags
}

// Strings renders the entries as "key=value" pairs in insertion order.
// Booleans follow the same rule as Flags: true becomes a bare "key",
// false disappears.
func (p Params) Strings() []string {
	out := make([]string, 0, len(p))
	for _, kv := range p {
		if b, ok := kv.Value.(bool); ok {
			if b {
				out = append(out, kv.Key)
			}
			continue
		}
		out = append(out, fmt.Sprintf("%s=%v", kv.Key, kv.Value))
	}
	return out
}

// Explode expands a config with list values into the cross product of all
// list entries. A config without lists explodes to itself.
func Explode(config Params) []Params {
	for i, kv := range config {
		values, ok := kv.Value.([]any)
		if !ok {
			continue
		}
		var out []Params
		for _, v := range values {
			next := config.Clone()
			next[i].Value = v
			out = append(out, Explode(next)...)
		}
		return out
	}
	return []Params{config}
}

func nodeKind(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
