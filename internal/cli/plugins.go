package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rgf/internal/manifest"
)

// PluginInfo is one row of the plugins listing.
type PluginInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version,omitempty"`
	State        string   `json:"state"`
	Dependencies []string `json:"dependencies"`
	Description  string   `json:"description,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// NewPluginsCommand creates the plugins command.
func NewPluginsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins [manifest...]",
		Short: "List plugins and their activation state",
		Long: `Start a scratch runtime with the built-in plugins, the configured
manifests and any manifests given as arguments, and list every plugin with
the state it reached, its version and its dependencies.

Examples:
  rgf plugins
  rgf plugins ./manifests --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlugins(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runPlugins(opts *RootOptions, manifests []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	cfg.Manifests = append(cfg.Manifests, manifests...)

	rt, err := assemble(cfg)
	if err != nil {
		return err
	}
	report, err := rt.Init(cmd.Context())
	if err != nil {
		var merr *manifest.Error
		if errors.As(err, &merr) {
			return WrapExitError(ExitCommandError, "failed to load manifests", err)
		}
		return WrapExitError(ExitFailure, "failed to start runtime", err)
	}
	defer func() { _ = rt.Shutdown(context.Background()) }()

	infos := rt.Resolver().Plugins()
	list := make([]PluginInfo, 0, len(infos))
	for _, info := range infos {
		p := PluginInfo{
			Name:         info.Manifest.Name,
			Version:      info.Manifest.Version,
			State:        info.State.String(),
			Dependencies: append([]string{}, info.Manifest.Dependencies...),
			Description:  info.Manifest.Description,
		}
		if info.Err != nil {
			p.Error = info.Err.Error()
		} else if missing, ok := report.Unsatisfied[p.Name]; ok {
			p.Error = fmt.Sprintf("unsatisfied dependencies %v", missing)
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	if formatter.JSON() {
		return formatter.Success(list)
	}

	rows := make([][]string, 0, len(list))
	for _, p := range list {
		deps := strings.Join(p.Dependencies, ",")
		if deps == "" {
			deps = "-"
		}
		state := p.State
		if p.Error != "" {
			state += ": " + p.Error
		}
		rows = append(rows, []string{p.Name, p.Version, deps, state})
	}
	formatter.Table([]string{"NAME", "VERSION", "DEPENDS", "STATE"}, rows)
	return nil
}
