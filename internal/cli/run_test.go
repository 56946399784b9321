package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rgf/internal/store"
)

func runFor(t *testing.T, d time.Duration, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return executeContext(t, ctx, append([]string{"run"}, args...)...)
}

func TestRun_JournalsUntilCancelled(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rgf.db")

	out, err := runFor(t, 200*time.Millisecond, "--db", db, "testdata/manifests/thermostat.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Runtime started: 6 plugin(s) active")
	assert.Contains(t, out, "Press Ctrl-C to stop.")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, out, "Journal run: "+runs[0])

	transitions, err := st.Transitions(ctx, runs[0])
	require.NoError(t, err)
	var thermostat []string
	for _, tr := range transitions {
		if tr.Plugin == "thermostat" {
			thermostat = append(thermostat, tr.From+"->"+tr.To)
		}
	}
	assert.Equal(t, []string{"installed->active", "active->installed"}, thermostat)
}

func TestRun_ConfigDisablesPlugins(t *testing.T) {
	var summary RunSummary
	out, err := runFor(t, 100*time.Millisecond, "--config", "testdata/rgf.yaml", "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.Contains(t, summary.Activated, "thermostat")
	assert.Contains(t, summary.Activated, "numeric")
	assert.NotContains(t, summary.Activated, "logical")
	assert.Empty(t, summary.Run)
	assert.Empty(t, summary.Failed)
}

func TestRun_ReportsUnsatisfied(t *testing.T) {
	var summary RunSummary
	out, err := runFor(t, 100*time.Millisecond, "--format", "json", "testdata/manifests/orphan.yaml")
	require.NoError(t, err)

	decodeResponse(t, out, &summary)
	assert.Equal(t, []string{"weather"}, summary.Unsatisfied["orphan"])
	assert.NotContains(t, summary.Activated, "orphan")
}

func TestRun_MetricsServer(t *testing.T) {
	var summary RunSummary
	out, err := runFor(t, 100*time.Millisecond, "--format", "json", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)

	decodeResponse(t, out, &summary)
	require.NotEmpty(t, summary.MetricsAddr)
	assert.NotEqual(t, "127.0.0.1:0", summary.MetricsAddr)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantMsg  string
		wantCode int
	}{
		{
			name:     "missing_manifest",
			args:     []string{"testdata/manifests/nope.yaml"},
			wantMsg:  "failed to load manifests",
			wantCode: ExitCommandError,
		},
		{
			name:     "invalid_manifest",
			args:     []string{"testdata/manifests/broken.yaml"},
			wantMsg:  "failed to load manifests",
			wantCode: ExitCommandError,
		},
		{
			name:     "database_in_missing_dir",
			args:     []string{"--db", "/nonexistent/path/rgf.db"},
			wantMsg:  "failed to open database",
			wantCode: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runFor(t, time.Second, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
		})
	}
}
