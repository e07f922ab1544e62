package config

import (
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"

	"github.com/hay-kot/dotapply/internal/condition"
	"github.com/hay-kot/dotapply/internal/core"
)

// Load reads the document at path from the OS filesystem and resolves its
// inheritance chain.
func Load(path string) (*Config, error) {
	return NewLoader(afero.NewOsFs()).Load(path)
}

// Loader resolves configuration documents from a filesystem.
type Loader struct {
	fs afero.Fs
}

func NewLoader(fsys afero.Fs) *Loader {
	return &Loader{fs: fsys}
}

// Load reads the document at path, normalizes every path bearing field and
// merges it on top of its parents. All failures are *core.ConfigError.
func (l *Loader) Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, core.NewConfigError(path, "cannot resolve path", err)
	}

	return l.load(abs, nil)
}

func (l *Loader) load(path string, chain []string) (*Config, error) {
	if slices.Contains(chain, path) {
		cycle := strings.Join(append(chain, path), " -> ")
		return nil, core.NewConfigError(path, "inheritance cycle: "+cycle, nil)
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if len(chain) > 0 {
			return nil, core.NewConfigError(chain[len(chain)-1], "cannot read parent "+path, err)
		}
		return nil, core.NewConfigError(path, "cannot read document", err)
	}

	doc, err := ParseDocument(FormatFor(path), data)
	if err != nil {
		return nil, core.NewConfigError(path, "malformed document", err)
	}

	cfg, inherit, err := resolve(doc, path)
	if err != nil {
		return nil, err
	}

	if inherit == "" {
		return cfg, nil
	}

	parent, err := l.load(inherit, append(chain, path))
	if err != nil {
		return nil, err
	}

	merged, err := parent.Merge(cfg)
	if err != nil {
		return nil, core.NewConfigError(path, "cannot merge with parent "+inherit, err)
	}

	return merged, nil
}

// resolve turns a single parsed document into a Config, normalizing paths
// against the document's directory. The normalized inherit reference is
// returned separately.
func resolve(doc *Map, file string) (*Config, string, error) {
	pr := core.NewPathResolver(filepath.Dir(file))

	cfg := &Config{
		File:        file,
		Directories: PathList{},
		Commands:    CommandList{},
		Extra:       NewMap(),
	}

	var inherit string

	for _, key := range doc.Keys() {
		raw, _ := doc.Get(key)

		var err error
		switch key {
		case KeyInherit:
			s, ok := raw.(string)
			if !ok || s == "" {
				err = fmt.Errorf("must be a non-empty string, got %s", shape(raw))
				break
			}
			inherit = pr.Resolve(s)
		case KeyDirectories:
			var list []string
			list, err = stringList(raw)
			for _, p := range list {
				cfg.Directories = append(cfg.Directories, pr.Resolve(p))
			}
		case KeyCommands:
			var list []string
			list, err = stringList(raw)
			cfg.Commands = append(cfg.Commands, list...)
		case KeyCopy:
			cfg.Copy, err = pathOptionMap(raw, pr)
		case KeyLink:
			cfg.Link, err = pathOptionMap(raw, pr)
		case KeyRender:
			cfg.Render, err = pathOptionMap(raw, pr)
		default:
			cfg.Extra.Set(key, raw)
		}

		if err != nil {
			return nil, "", core.NewConfigError(file, fmt.Sprintf("field %q", key), err)
		}
	}

	return cfg, inherit, nil
}

func stringList(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("must be a sequence, got %s", shape(raw))
	}

	out := make([]string, 0, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("entry %d must be a string, got %T", i, v)
		}
		out = append(out, s)
	}

	return out, nil
}

func pathOptionMap(raw any, pr core.PathResolver) (PathOptionMap, error) {
	var out PathOptionMap
	if raw == nil {
		return out, nil
	}

	m, ok := raw.(*Map)
	if !ok {
		return out, fmt.Errorf("must be a mapping, got %s", shape(raw))
	}

	for _, key := range m.Keys() {
		v, _ := m.Get(key)

		opts, err := decodeOptions(v)
		if err != nil {
			return out, fmt.Errorf("entry %q: %w", key, err)
		}

		opts.Path = pr.Resolve(opts.Path)
		if opts.VarsFile != "" {
			opts.VarsFile = pr.Resolve(opts.VarsFile)
		}

		src := pr.Resolve(key)
		if _, dup := out.Get(src); dup {
			return out, fmt.Errorf("entry %q: source %s is declared more than once", key, src)
		}

		out.Set(src, opts)
	}

	return out, nil
}

// decodeOptions accepts either a destination string or an options object.
func decodeOptions(v any) (Options, error) {
	var opts Options

	switch t := v.(type) {
	case string:
		opts.Path = t
	case *Map:
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:     &opts,
			TagName:    "mapstructure",
			DecodeHook: mapstructure.DecodeHookFuncType(modeHook),
		})
		if err != nil {
			return opts, err
		}
		if err := dec.Decode(t.Plain()); err != nil {
			return opts, err
		}
	default:
		return opts, fmt.Errorf("must be a path or an options mapping, got %s", shape(v))
	}

	if opts.Path == "" {
		return opts, fmt.Errorf("missing destination path")
	}

	if opts.Mode != "" {
		if _, err := opts.Mode.Perm(); err != nil {
			return opts, err
		}
	}

	if _, err := condition.Compile(opts.When); err != nil {
		return opts, fmt.Errorf("invalid when expression %q: %w", opts.When, err)
	}

	return opts, nil
}

var modeType = reflect.TypeOf(Mode(""))

// modeHook lets mode be written as a number. YAML reads 0600 and TOML reads
// 0o600 as 384, so a number is taken as the permission bits themselves.
func modeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != modeType {
		return data, nil
	}

	var bits int64
	switch v := data.(type) {
	case int:
		bits = int64(v)
	case int64:
		bits = v
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("invalid mode %d", v)
		}
		bits = int64(v)
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("invalid mode %v", v)
		}
		bits = int64(v)
	default:
		return data, nil
	}

	if bits < 0 {
		return nil, fmt.Errorf("invalid mode %d", bits)
	}

	return Mode(strconv.FormatInt(bits, 8)), nil
}
