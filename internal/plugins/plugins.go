// Package plugins lists the built-in plugins by name.
package plugins

import (
	"fmt"
	"slices"

	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/plugins/base"
	"github.com/roach88/rgf/internal/plugins/expression"
	"github.com/roach88/rgf/internal/plugins/logical"
	"github.com/roach88/rgf/internal/plugins/numeric"
)

var builtin = map[string]func() plugin.Plugin{
	base.PluginName:       base.Plugin,
	logical.PluginName:    logical.Plugin,
	numeric.PluginName:    numeric.Plugin,
	expression.PluginName: expression.Plugin,
}

// Names returns the built-in plugin names in lexical order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns a new instance of the named built-in plugin.
func Lookup(name string) (plugin.Plugin, error) {
	ctor, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("unknown built-in plugin %q (have %v)", name, Names())
	}
	return ctor(), nil
}

// Select returns the named plugins, or every built-in plugin when names
// is empty. Plugins for which keep returns false are skipped.
func Select(names []string, keep func(string) bool) ([]plugin.Plugin, error) {
	if len(names) == 0 {
		names = Names()
	}
	out := make([]plugin.Plugin, 0, len(names))
	for _, name := range names {
		if keep != nil && !keep(name) {
			continue
		}
		p, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
