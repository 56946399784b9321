package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/rgf/internal/plugin"
	"github.com/roach88/rgf/internal/reactive"
	"github.com/roach88/rgf/internal/runtime"
)

// NewRuntime starts a runtime with sequential ids, a fresh clock and the
// given plugins installed. The runtime is shut down when the test ends.
// Activation failures fail the test.
func NewRuntime(tb testing.TB, plugins ...plugin.Plugin) *runtime.Runtime {
	tb.Helper()

	rt := runtime.New(
		runtime.WithIDGenerator(NewSequentialGenerator()),
		runtime.WithClock(reactive.NewClock()),
	)
	if err := rt.Install(plugins...); err != nil {
		tb.Fatalf("install plugins: %v", err)
	}
	report, err := rt.Init(context.Background())
	if err != nil {
		tb.Fatalf("init runtime: %v", err)
	}
	for name, ferr := range report.Failed {
		tb.Fatalf("plugin %s failed to activate: %v", name, ferr)
	}

	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Shutdown(ctx); err != nil {
			tb.Errorf("shutdown runtime: %v", err)
		}
	})
	return rt
}
