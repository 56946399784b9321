package manifest

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/rgf/internal/plugin"
)

// ParseCUE builds every plugin declared under the plugin struct of src.
// A plugin without a name field takes its label.
func ParseCUE(source, src string) ([]*plugin.Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(source))
	if err := v.Err(); err != nil {
		return nil, cueError(source, err)
	}
	return fromCUE(source, v)
}

// LoadCUEDir loads the CUE package in dir.
func LoadCUEDir(dir string) ([]*plugin.Definition, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &Error{Code: ErrCodeNotFound, Source: dir, Message: "manifest directory not found"}
	}
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Source: dir, Message: err.Error()}
	}
	if len(files) == 0 {
		return nil, &Error{Code: ErrCodeNoPlugins, Source: dir, Message: "no CUE files"}
	}

	insts := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(insts) == 0 {
		return nil, &Error{Code: ErrCodeNoPlugins, Source: dir, Message: "no CUE instances loaded"}
	}
	if insts[0].Err != nil {
		return nil, cueError(dir, insts[0].Err)
	}
	v := cuecontext.New().BuildInstance(insts[0])
	if err := v.Err(); err != nil {
		return nil, cueError(dir, err)
	}
	return fromCUE(dir, v)
}

func fromCUE(source string, root cue.Value) ([]*plugin.Definition, error) {
	plugins := root.LookupPath(cue.ParsePath("plugin"))
	if !plugins.Exists() {
		return nil, &Error{Code: ErrCodeNoPlugins, Source: source, Message: "no plugin struct"}
	}
	iter, err := plugins.Fields()
	if err != nil {
		return nil, cueError(source, err)
	}

	var out []*plugin.Definition
	for iter.Next() {
		label := iter.Label()
		raw, err := concrete(iter.Value())
		if err != nil {
			return nil, cueError(source, err)
		}
		if _, ok := raw["name"]; !ok {
			raw["name"] = label
		}
		doc, err := Decode(raw)
		if err != nil {
			return nil, withField(err, source, "plugin."+label)
		}
		def, err := doc.Build()
		if err != nil {
			return nil, withField(err, source, "plugin."+label)
		}
		out = append(out, def)
	}
	if len(out) == 0 {
		return nil, &Error{Code: ErrCodeNoPlugins, Source: source, Message: "plugin struct is empty"}
	}
	slices.SortFunc(out, func(a, b *plugin.Definition) int {
		return cmp.Compare(a.Meta.Name, b.Meta.Name)
	})
	return out, nil
}

// concrete exports v through JSON so numbers arrive as json.Number, the
// same shape the value package reads from every other source.
func concrete(v cue.Value) (map[string]any, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode exported CUE: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func withField(err error, source, prefix string) error {
	if me, ok := err.(*Error); ok {
		if me.Source == "" {
			me.Source = source
		}
		if me.Field != "" {
			me.Field = prefix + "." + me.Field
		} else {
			me.Field = prefix
		}
	}
	return err
}

// FindCUEFiles walks dir and returns every .cue file.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
