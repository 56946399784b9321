package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/rgf/internal/plugin"
)

// Load reads manifests from paths. A directory is loaded as one CUE
// package; a file is read by its extension (.yaml, .yml or .cue).
func Load(paths ...string) ([]*plugin.Definition, error) {
	var out []*plugin.Definition
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &Error{Code: ErrCodeNotFound, Source: p, Message: err.Error()}
		}
		if info.IsDir() {
			defs, err := LoadCUEDir(p)
			if err != nil {
				return nil, err
			}
			out = append(out, defs...)
			continue
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			def, err := LoadYAML(p)
			if err != nil {
				return nil, err
			}
			out = append(out, def)
		case ".cue":
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, &Error{Code: ErrCodeNotFound, Source: p, Message: err.Error()}
			}
			defs, err := ParseCUE(p, string(data))
			if err != nil {
				return nil, err
			}
			out = append(out, defs...)
		default:
			return nil, &Error{Code: ErrCodeInvalid, Source: p, Message: fmt.Sprintf("unsupported manifest extension %q", filepath.Ext(p))}
		}
	}
	return out, nil
}

// Installer receives loaded plugins.
type Installer interface {
	Install(plugins ...plugin.Plugin) error
}

// Loader installs manifest plugins when the runtime initialises. Add it
// as a runtime collaborator; collaborators initialise before plugins are
// activated, so manifest plugins take part in the first activation run.
type Loader struct {
	installer Installer
	paths     []string
	keep      func(name string) bool
	loaded    []string
}

// NewLoader creates a loader for paths.
func NewLoader(installer Installer, paths ...string) *Loader {
	return &Loader{installer: installer, paths: paths}
}

// Filter skips manifest plugins for which keep returns false.
func (l *Loader) Filter(keep func(name string) bool) *Loader {
	l.keep = keep
	return l
}

// Init loads every manifest and installs the plugins.
func (l *Loader) Init(_ context.Context) error {
	defs, err := Load(l.paths...)
	if err != nil {
		return err
	}
	plugins := make([]plugin.Plugin, 0, len(defs))
	for _, d := range defs {
		if l.keep != nil && !l.keep(d.Meta.Name) {
			slog.Debug("manifest plugin disabled", "plugin", d.Meta.Name)
			continue
		}
		plugins = append(plugins, d)
		l.loaded = append(l.loaded, d.Meta.Name)
	}
	if err := l.installer.Install(plugins...); err != nil {
		return fmt.Errorf("install manifest plugins: %w", err)
	}
	slog.Info("manifests loaded", "paths", len(l.paths), "plugins", l.loaded)
	return nil
}

// Shutdown is a no-op; the resolver deactivates manifest plugins.
func (l *Loader) Shutdown(_ context.Context) error { return nil }

// Loaded returns the names of the plugins installed by Init.
func (l *Loader) Loaded() []string { return l.loaded }
