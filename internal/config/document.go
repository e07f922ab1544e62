package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
)

// Map is a string keyed map that remembers insertion order. Documents are
// parsed into Maps so that copy, link and render entries execute in the order
// they were written.
type Map struct {
	keys   []string
	values map[string]any
}

func NewMap() *Map {
	return &Map{values: map[string]any{}}
}

// Set adds or replaces key. A replaced key keeps its original position.
func (m *Map) Set(key string, v any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns a shallow copy.
func (m *Map) Clone() *Map {
	out := NewMap()
	for _, k := range m.Keys() {
		out.Set(k, m.values[k])
	}
	return out
}

// Plain converts m and every nested Map into map[string]any.
func (m *Map) Plain() map[string]any {
	out := make(map[string]any, m.Len())
	for _, k := range m.Keys() {
		out[k] = plain(m.values[k])
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Map:
		return t.Plain()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = plain(t[i])
		}
		return out
	default:
		return v
	}
}

// Format is the encoding of a configuration document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the document format from the file extension. Unknown
// extensions are read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// ParseDocument decodes data into an ordered Map. The top level value must be
// an object.
func ParseDocument(format Format, data []byte) (*Map, error) {
	switch format {
	case FormatYAML:
		return parseYAML(data)
	case FormatTOML:
		return parseTOML(data)
	case FormatJSON:
		return parseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func parseYAML(data []byte) (*Map, error) {
	var raw any
	if err := yaml.UnmarshalWithOptions(data, &raw, yaml.UseOrderedMap()); err != nil {
		return nil, err
	}

	if raw == nil {
		return NewMap(), nil
	}

	v, err := fromYAML(raw)
	if err != nil {
		return nil, err
	}

	m, ok := v.(*Map)
	if !ok {
		return nil, fmt.Errorf("document must be a mapping, got %T", raw)
	}

	return m, nil
}

func fromYAML(v any) (any, error) {
	switch t := v.(type) {
	case yaml.MapSlice:
		m := NewMap()
		for _, item := range t {
			key, ok := item.Key.(string)
			if !ok {
				key = fmt.Sprint(item.Key)
			}
			if _, dup := m.Get(key); dup {
				return nil, fmt.Errorf("duplicate key %q", key)
			}
			val, err := fromYAML(item.Value)
			if err != nil {
				return nil, err
			}
			m.Set(key, val)
		}
		return m, nil
	case []any:
		out := make([]any, len(t))
		for i := range t {
			val, err := fromYAML(t[i])
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case uint64:
		return int64(t), nil
	default:
		return v, nil
	}
}

func parseTOML(data []byte) (*Map, error) {
	raw := map[string]any{}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}

	// MetaData.Keys lists every key in document order; group them by parent so
	// each table can be rebuilt in the order it was written.
	order := map[string][]string{}
	seen := map[string]bool{}
	for _, key := range md.Keys() {
		if len(key) == 0 {
			continue
		}
		parent := tomlPath(key[:len(key)-1])
		full := tomlPath(key)
		if seen[full] {
			continue
		}
		seen[full] = true
		order[parent] = append(order[parent], key[len(key)-1])
	}

	return fromTOML(raw, nil, order), nil
}

func tomlPath(key toml.Key) string {
	return strings.Join(key, "\x00")
}

func fromTOML(raw map[string]any, prefix toml.Key, order map[string][]string) *Map {
	m := NewMap()

	keys := slices.Clone(order[tomlPath(prefix)])
	var rest []string
	for k := range raw {
		if !slices.Contains(keys, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	keys = append(keys, rest...)

	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		path := append(slices.Clone(prefix), k)
		m.Set(k, fromTOMLValue(v, path, order))
	}

	return m
}

func fromTOMLValue(v any, path toml.Key, order map[string][]string) any {
	switch t := v.(type) {
	case map[string]any:
		return fromTOML(t, path, order)
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = fromTOML(t[i], path, order)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = fromTOMLValue(t[i], path, order)
		}
		return out
	default:
		return v
	}
}

func parseJSON(data []byte) (*Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty document")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}

	m, ok := v.(*Map)
	if !ok {
		return nil, fmt.Errorf("document must be an object, got %T", v)
	}

	return m, nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("invalid object key %v", keyTok)
				}
				if _, dup := m.Get(key); dup {
					return nil, fmt.Errorf("duplicate key %q", key)
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			list := []any{}
			for dec.More() {
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		return tok, nil
	}
}
