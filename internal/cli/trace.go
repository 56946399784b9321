package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/rgf/internal/instances"
	"github.com/roach88/rgf/internal/store"
	"github.com/roach88/rgf/internal/value"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Run      string // defaults to the latest run
	Owner    string // optional - filter writes to one instance
	List     bool   // list runs instead of tracing one
}

// TraceWrite is one journaled property write.
type TraceWrite struct {
	Seq      int64           `json:"seq"`
	Tick     int64           `json:"tick"`
	Owner    string          `json:"owner"`
	Property string          `json:"property"`
	Value    json.RawMessage `json:"value"`
	Version  uint64          `json:"version"`
}

// TraceInstance is one journaled instance event.
type TraceInstance struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Type     string `json:"type"`
	Relation bool   `json:"relation,omitempty"`
	Flow     bool   `json:"flow,omitempty"`
}

// TraceType is one journaled registry change.
type TraceType struct {
	Event string `json:"event"`
	Kind  string `json:"kind"`
	Type  string `json:"type"`
}

// TraceTransition is one journaled plugin state change.
type TraceTransition struct {
	Plugin string `json:"plugin"`
	From   string `json:"from"`
	To     string `json:"to"`
	Error  string `json:"error,omitempty"`
}

// TraceStats holds summary statistics for a run.
type TraceStats struct {
	Writes      int `json:"writes"`
	Owners      int `json:"owners"`
	Created     int `json:"created"`
	Deleted     int `json:"deleted"`
	Transitions int `json:"transitions"`
	Types       int `json:"types"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run         string            `json:"run"`
	Transitions []TraceTransition `json:"transitions"`
	Types       []TraceType       `json:"types"`
	Instances   []TraceInstance   `json:"instances"`
	Writes      []TraceWrite      `json:"writes"`
	Stats       TraceStats        `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal of a run",
		Long: `Show what a journaled run did: plugin transitions, instance creation
and deletion, and every property write in the order it was applied.

Examples:
  rgf trace --db ./rgf.db
  rgf trace --db ./rgf.db --list
  rgf trace --db ./rgf.db --run 0190c3e4-... --owner 0190c3e4-...
  rgf trace --db ./rgf.db --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run id to trace (default: latest run)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "only show writes of this instance id")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	var owner uuid.UUID
	if opts.Owner != "" {
		id, err := uuid.Parse(opts.Owner)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --owner", err)
		}
		owner = id
	}

	// store.Open creates missing databases; tracing one is a mistake.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if opts.List {
		if formatter.JSON() {
			return formatter.Success(runs)
		}
		for _, r := range runs {
			fmt.Fprintln(formatter.Writer, r)
		}
		return nil
	}

	run := opts.Run
	switch {
	case run == "" && len(runs) == 0:
		if formatter.JSON() {
			return formatter.Success(emptyTrace(""))
		}
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	case run == "":
		run = runs[len(runs)-1]
	case !slices.Contains(runs, run):
		msg := fmt.Sprintf("unknown run: %s", run)
		if formatter.JSON() {
			if err := formatter.Fail(&CLIError{Code: ErrCodeInvalidInput, Message: msg, Details: runs}); err != nil {
				return err
			}
		}
		return NewExitError(ExitCommandError, msg)
	}

	result, err := buildTrace(ctx, st, run, owner)
	if err != nil {
		if formatter.JSON() {
			if ferr := formatter.Fail(&CLIError{Code: ErrCodeStore, Message: err.Error()}); ferr != nil {
				return ferr
			}
		}
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	printTrace(formatter, result)
	return nil
}

func emptyTrace(run string) TraceResult {
	return TraceResult{
		Run:         run,
		Transitions: []TraceTransition{},
		Instances:   []TraceInstance{},
		Writes:      []TraceWrite{},
	}
}

func buildTrace(ctx context.Context, st *store.Store, run string, owner uuid.UUID) (TraceResult, error) {
	result := emptyTrace(run)

	transitions, err := st.Transitions(ctx, run)
	if err != nil {
		return result, err
	}
	for _, tr := range transitions {
		result.Transitions = append(result.Transitions, TraceTransition{
			Plugin: tr.Plugin,
			From:   tr.From,
			To:     tr.To,
			Error:  tr.Error,
		})
	}

	typeEvents, err := st.TypeEvents(ctx, run)
	if err != nil {
		return result, err
	}
	for _, ev := range typeEvents {
		result.Types = append(result.Types, TraceType{
			Event: string(ev.Event),
			Kind:  string(ev.Kind),
			Type:  ev.Type.String(),
		})
	}

	events, err := st.InstanceEvents(ctx, run)
	if err != nil {
		return result, err
	}
	for _, ev := range events {
		result.Instances = append(result.Instances, TraceInstance{
			Event:    string(ev.Event),
			Instance: ev.Instance.String(),
			Type:     ev.Type.String(),
			Relation: ev.Relation,
			Flow:     ev.Flow,
		})
		switch ev.Event {
		case instances.EventCreated:
			result.Stats.Created++
		case instances.EventDeleted:
			result.Stats.Deleted++
		}
	}

	var writes []store.WriteRecord
	if owner == uuid.Nil {
		writes, err = st.Writes(ctx, run)
	} else {
		writes, err = st.WritesFor(ctx, run, owner)
	}
	if err != nil {
		return result, err
	}
	owners := make(map[uuid.UUID]struct{})
	for _, w := range writes {
		owners[w.Owner] = struct{}{}
		raw, err := value.MarshalCanonical(w.Value)
		if err != nil {
			return result, fmt.Errorf("write #%d: %w", w.Seq, err)
		}
		result.Writes = append(result.Writes, TraceWrite{
			Seq:      w.Seq,
			Tick:     w.Tick,
			Owner:    w.Owner.String(),
			Property: w.Property,
			Value:    raw,
			Version:  w.Version,
		})
	}

	result.Stats.Writes = len(result.Writes)
	result.Stats.Owners = len(owners)
	result.Stats.Transitions = len(result.Transitions)
	result.Stats.Types = len(result.Types)
	return result, nil
}

func printTrace(f *OutputFormatter, t TraceResult) {
	w := f.Writer
	fmt.Fprintf(w, "Run: %s\n", t.Run)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Plugins:")
	for _, tr := range t.Transitions {
		line := fmt.Sprintf("  %-12s %s -> %s", tr.Plugin, tr.From, tr.To)
		if tr.Error != "" {
			line += " (" + tr.Error + ")"
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Types:")
	for _, ty := range t.Types {
		fmt.Fprintf(w, "  %-8s %-13s %s\n", ty.Event, ty.Kind, ty.Type)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Instances:")
	for _, in := range t.Instances {
		kind := ""
		if in.Flow {
			kind = " (flow)"
		}
		fmt.Fprintf(w, "  %-8s %s %s%s\n", in.Event, in.Instance, in.Type, kind)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Writes:")
	for _, wr := range t.Writes {
		fmt.Fprintf(w, "  #%-4d tick=%-3d %s.%s = %s (v%d)\n", wr.Seq, wr.Tick, wr.Owner, wr.Property, wr.Value, wr.Version)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d writes to %d instance(s), %d created, %d deleted, %d plugin transitions\n",
		t.Stats.Writes, t.Stats.Owners, t.Stats.Created, t.Stats.Deleted, t.Stats.Transitions)
}
