package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/rgf/internal/config"
	"github.com/roach88/rgf/internal/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // path of a YAML or TOML config file
	LogLevel string // overrides log.level from the config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rgf CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rgf",
		Short: "rgf - reactive property graph runtime",
		Long: `A runtime for reactive property graphs. Plugins contribute entity,
relation and flow types; instances propagate property changes through
their behaviours until the graph is stable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			// Commands other than run only log warnings unless asked.
			return installLogger(cmd, opts, "warn", "text")
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPluginsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// loadConfig reads --config, or returns the defaults when it is unset.
func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// installLogger sets the process logger on stderr. --verbose wins over
// --log-level, which wins over level.
func installLogger(cmd *cobra.Command, opts *RootOptions, level, format string) error {
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if opts.Verbose {
		level = "debug"
	}
	lvl, err := observability.ParseLevel(level)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --log-level", err)
	}
	logger, err := observability.NewLogger(cmd.ErrOrStderr(), lvl, format)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log format", err)
	}
	slog.SetDefault(logger)
	return nil
}
