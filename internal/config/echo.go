package config

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

// Document returns the resolved configuration as plain maps and slices, in the
// same shape as an input document without the inherit key.
func (c *Config) Document() map[string]any {
	doc := map[string]any{}
	if c.Extra != nil {
		doc = c.Extra.Plain()
	}

	doc[KeyDirectories] = stringsToAny(c.Directories)
	doc[KeyCommands] = stringsToAny(c.Commands)
	doc[KeyCopy] = optionsDocument(c.Copy, true)
	doc[KeyLink] = optionsDocument(c.Link, false)
	doc[KeyRender] = optionsDocument(c.Render, false)

	return doc
}

func stringsToAny(list []string) []any {
	out := make([]any, len(list))
	for i := range list {
		out[i] = list[i]
	}
	return out
}

func optionsDocument(m PathOptionMap, withIgnore bool) map[string]any {
	out := make(map[string]any, m.Len())
	for src, opts := range m.All() {
		out[src] = opts.document(withIgnore)
	}
	return out
}

func (o Options) document(withIgnore bool) map[string]any {
	doc := map[string]any{}
	for k, v := range o.Extra {
		doc[k] = v
	}

	doc["path"] = o.Path
	if withIgnore || o.IgnoreExisting {
		doc["ignore_existing"] = o.IgnoreExisting
	}
	if o.When != "" {
		doc["when"] = o.When
	}
	if o.Mode != "" {
		doc["mode"] = string(o.Mode)
	}
	if len(o.Vars) > 0 {
		doc["vars"] = o.Vars
	}
	if o.VarsFile != "" {
		doc["vars_file"] = o.VarsFile
	}
	if o.Vault {
		doc["vault"] = o.Vault
	}

	return doc
}

// Encode writes the resolved configuration as indented, key sorted text.
func Encode(w io.Writer, c *Config, format Format) error {
	doc := c.Document()

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(doc)
	case FormatYAML:
		out, err := yaml.MarshalWithOptions(doc, yaml.Indent(2), yaml.IndentSequence(true))
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unsupported echo format %q", format)
	}
}
