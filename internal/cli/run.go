package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rgf/internal/config"
	"github.com/roach88/rgf/internal/manifest"
	"github.com/roach88/rgf/internal/observability"
	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/plugins"
	"github.com/roach88/rgf/internal/runtime"
	"github.com/roach88/rgf/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	MetricsAddr string
	Grace       time.Duration
}

// RunSummary is printed once the runtime is up.
type RunSummary struct {
	Run         string              `json:"run,omitempty"`
	Activated   []string            `json:"activated"`
	Failed      map[string]string   `json:"failed,omitempty"`
	Unsatisfied map[string][]string `json:"unsatisfied,omitempty"`
	MetricsAddr string              `json:"metrics_addr,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [manifest...]",
		Short: "Start the runtime",
		Long: `Start the runtime with the built-in plugins and any manifest plugins.

Manifests given as arguments are loaded after those named in the config
file. With --db (or store.path) every property write, instance event and
plugin transition is journaled to SQLite. The runtime stops on SIGINT,
SIGTERM or when a runtime/shutdown entity is triggered.

Examples:
  rgf run ./manifests/thermostat.yaml
  rgf run --config rgf.yaml --db ./rgf.db
  rgf run --metrics-addr :9090 ./manifests`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuntime(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite journal (overrides store.path)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address (overrides metrics.addr)")
	cmd.Flags().DurationVar(&opts.Grace, "shutdown-grace", 0, "time allowed for shutdown (overrides shutdown_grace)")

	return cmd
}

func runRuntime(opts *RunOptions, manifests []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	if opts.Grace > 0 {
		cfg.ShutdownGrace = opts.Grace
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = config.DefaultShutdownGrace
	}
	cfg.Manifests = append(cfg.Manifests, manifests...)

	if err := installLogger(cmd, opts.RootOptions, cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	rt, err := assemble(cfg)
	if err != nil {
		return err
	}

	var journal *store.Journal
	if cfg.Store.Path != "" {
		slog.Info("opening journal", "path", cfg.Store.Path)
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		journal = store.NewJournal(st, "")
		journal.Attach(rt.Graph(), rt.Instances(), rt.Resolver())
		journal.AttachRegistry(rt.Registry())
		rt.AddLifecycle(journal)
	}

	var metrics *observability.MetricsServer
	if cfg.Metrics.Addr != "" {
		observability.RegisterMetrics()
		metrics = observability.NewMetricsServer(cfg.Metrics.Addr)
		rt.AddLifecycle(metrics)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := rt.Init(ctx)
	if err != nil {
		var merr *manifest.Error
		if errors.As(err, &merr) {
			return WrapExitError(ExitCommandError, "failed to load manifests", err)
		}
		return WrapExitError(ExitFailure, "failed to start runtime", err)
	}

	summary := summarise(report)
	if journal != nil {
		summary.Run = journal.Run()
	}
	if metrics != nil {
		summary.MetricsAddr = metrics.Addr()
	}
	if err := printRunSummary(newFormatter(opts.RootOptions, cmd), summary); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		slog.Info("stopping", "reason", context.Cause(ctx))
	case <-rt.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := rt.Shutdown(sctx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	if journal != nil {
		if err := journal.Err(); err != nil {
			return WrapExitError(ExitFailure, "journal write failed", err)
		}
	}
	slog.Info("runtime stopped gracefully")
	return nil
}

// assemble creates a runtime with the enabled built-in plugins installed
// and a loader for the configured manifests.
func assemble(cfg config.Config) (*runtime.Runtime, error) {
	rt := runtime.New(cfg.RuntimeOptions()...)
	builtins, err := plugins.Select(nil, cfg.Enabled)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to select plugins", err)
	}
	if err := rt.Install(builtins...); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to install plugins", err)
	}
	if len(cfg.Manifests) > 0 {
		rt.AddLifecycle(manifest.NewLoader(rt, slices.Clone(cfg.Manifests)...).Filter(cfg.Enabled))
	}
	return rt, nil
}

func summarise(report *plugin.Report) RunSummary {
	s := RunSummary{Activated: slices.Clone(report.Activated)}
	if s.Activated == nil {
		s.Activated = []string{}
	}
	sort.Strings(s.Activated)
	if len(report.Failed) > 0 {
		s.Failed = make(map[string]string, len(report.Failed))
		for name, err := range report.Failed {
			s.Failed[name] = err.Error()
		}
	}
	if len(report.Unsatisfied) > 0 {
		s.Unsatisfied = report.Unsatisfied
	}
	return s
}

func printRunSummary(f *OutputFormatter, s RunSummary) error {
	if f.JSON() {
		return f.Success(s)
	}
	w := f.Writer
	fmt.Fprintf(w, "Runtime started: %d plugin(s) active\n", len(s.Activated))
	for _, name := range sortedKeys(s.Failed) {
		fmt.Fprintf(w, "  failed  %s: %s\n", name, s.Failed[name])
	}
	for _, name := range sortedKeys(s.Unsatisfied) {
		fmt.Fprintf(w, "  waiting %s: needs %v\n", name, s.Unsatisfied[name])
	}
	if s.Run != "" {
		fmt.Fprintf(w, "Journal run: %s\n", s.Run)
	}
	if s.MetricsAddr != "" {
		fmt.Fprintf(w, "Metrics: http://%s/metrics\n", s.MetricsAddr)
	}
	fmt.Fprintln(w, "Press Ctrl-C to stop.")
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
