// Package config loads dotapply configuration documents, normalizes their paths
// and resolves inheritance chains into a single Config.
package config

import (
	"fmt"
	"iter"
	"os"
	"slices"
	"strconv"
)

// Top level document keys.
const (
	KeyInherit     = "inherit"
	KeyDirectories = "directories"
	KeyCopy        = "copy"
	KeyLink        = "link"
	KeyRender      = "render"
	KeyCommands    = "commands"
)

// Config is the resolved document driving a single run. It is built once by
// [Load] and not modified afterwards.
type Config struct {
	// File is the absolute path of the top level document.
	File string

	Directories PathList
	Copy        PathOptionMap
	Link        PathOptionMap
	Render      PathOptionMap
	Commands    CommandList

	// Extra holds unknown top level keys. They take part in inheritance but
	// are never interpreted.
	Extra *Map
}

// PathList is an ordered list of absolute paths.
type PathList []string

// Merge appends child after the receiver.
func (p PathList) Merge(child PathList) PathList {
	return append(slices.Clone(p), child...)
}

// CommandList is an ordered list of shell commands.
type CommandList []string

// Merge appends child after the receiver.
func (c CommandList) Merge(child CommandList) CommandList {
	return append(slices.Clone(c), child...)
}

// Options are the per entry settings of copy, link and render.
type Options struct {
	Path           string         `mapstructure:"path"`
	IgnoreExisting bool           `mapstructure:"ignore_existing"`
	When           string         `mapstructure:"when"`
	Mode           Mode           `mapstructure:"mode"`
	Vars           map[string]any `mapstructure:"vars"`
	VarsFile       string         `mapstructure:"vars_file"`
	Vault          bool           `mapstructure:"vault"`
	Extra          map[string]any `mapstructure:",remain"`
}

// Mode is an octal permission string such as "600". Numeric document values
// are converted on load.
type Mode string

// Perm parses m into permission bits.
func (m Mode) Perm() (os.FileMode, error) {
	v, err := strconv.ParseUint(string(m), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", string(m), err)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("invalid mode %q: only permission bits may be set", string(m))
	}
	return os.FileMode(v), nil
}

// PathOptionMap maps absolute source paths to their options, preserving the
// order entries were declared in.
type PathOptionMap struct {
	keys    []string
	entries map[string]Options
}

// Set adds or replaces the options for src. A replaced source keeps its
// original position.
func (m *PathOptionMap) Set(src string, opts Options) {
	if m.entries == nil {
		m.entries = map[string]Options{}
	}
	if _, ok := m.entries[src]; !ok {
		m.keys = append(m.keys, src)
	}
	m.entries[src] = opts
}

func (m PathOptionMap) Get(src string) (Options, bool) {
	opts, ok := m.entries[src]
	return opts, ok
}

func (m PathOptionMap) Len() int { return len(m.keys) }

func (m PathOptionMap) Sources() []string { return slices.Clone(m.keys) }

// All iterates over the entries in declaration order.
func (m PathOptionMap) All() iter.Seq2[string, Options] {
	return func(yield func(string, Options) bool) {
		for _, k := range m.keys {
			if !yield(k, m.entries[k]) {
				return
			}
		}
	}
}

// Merge returns a copy of the receiver with child's entries added. Child
// entries override colliding sources.
func (m PathOptionMap) Merge(child PathOptionMap) PathOptionMap {
	var out PathOptionMap
	for k, v := range m.All() {
		out.Set(k, v)
	}
	for k, v := range child.All() {
		out.Set(k, v)
	}
	return out
}

// Merge layers child on top of the receiver and returns the result. Neither
// input is modified.
func (c *Config) Merge(child *Config) (*Config, error) {
	out := &Config{
		File:        child.File,
		Directories: c.Directories.Merge(child.Directories),
		Copy:        c.Copy.Merge(child.Copy),
		Link:        c.Link.Merge(child.Link),
		Render:      c.Render.Merge(child.Render),
		Commands:    c.Commands.Merge(child.Commands),
		Extra:       NewMap(),
	}

	if c.Extra != nil {
		out.Extra = c.Extra.Clone()
	}

	for _, key := range child.Extra.Keys() {
		cv, _ := child.Extra.Get(key)

		pv, ok := out.Extra.Get(key)
		if !ok {
			out.Extra.Set(key, cv)
			continue
		}

		merged, err := mergeValue(pv, cv)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out.Extra.Set(key, merged)
	}

	return out, nil
}

// mergeValue merges generic document values. Maps are merged by key, lists
// are concatenated and scalars are replaced. A null on either side is
// replaced by the child value.
func mergeValue(parent, child any) (any, error) {
	if parent == nil || child == nil {
		return child, nil
	}

	switch p := parent.(type) {
	case *Map:
		c, ok := child.(*Map)
		if !ok {
			return nil, fmt.Errorf("cannot merge %s into mapping", shape(child))
		}
		out := p.Clone()
		for _, k := range c.Keys() {
			v, _ := c.Get(k)
			out.Set(k, v)
		}
		return out, nil
	case []any:
		c, ok := child.([]any)
		if !ok {
			return nil, fmt.Errorf("cannot merge %s into sequence", shape(child))
		}
		return append(slices.Clone(p), c...), nil
	default:
		if s := shape(child); s != "scalar" {
			return nil, fmt.Errorf("cannot merge %s into scalar", s)
		}
		return child, nil
	}
}

func shape(v any) string {
	switch v.(type) {
	case *Map:
		return "mapping"
	case []any:
		return "sequence"
	default:
		return "scalar"
	}
}

// VaultFiles returns the encrypted variable files referenced by render entries.
func (c *Config) VaultFiles() []string {
	var files []string
	for _, opts := range c.Render.All() {
		if opts.Vault && opts.VarsFile != "" && !slices.Contains(files, opts.VarsFile) {
			files = append(files, opts.VarsFile)
		}
	}
	return files
}
