package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTick(t *testing.T) {
	before := testutil.ToFloat64(ticks.WithLabelValues("false"))
	RecordTick(64, 10, false)
	assert.Equal(t, before+1, testutil.ToFloat64(ticks.WithLabelValues("false")))
}

func TestRecordPluginTransition(t *testing.T) {
	RecordPluginTransition("obs-test", "active")
	assert.Equal(t, float64(1), testutil.ToFloat64(pluginTransitions.WithLabelValues("obs-test", "active")))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewLogger_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, slog.LevelInfo, "json")
	require.NoError(t, err)

	logger.Info("x", "error", io.EOF)
	assert.Contains(t, buf.String(), `"err":"EOF"`)

	_, err = NewLogger(&buf, slog.LevelInfo, "xml")
	assert.Error(t, err)
}

func TestHandler_ServesMetricsAndHealth(t *testing.T) {
	RecordResolverPass("starting", "changed")
	srv := httptest.NewServer(NewHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "rgf_plugin_resolver_passes_total")
}

func TestMetricsServer_Lifecycle(t *testing.T) {
	m := NewMetricsServer("127.0.0.1:0")
	require.NoError(t, m.Init(context.Background()))
	defer m.Shutdown(context.Background())

	resp, err := http.Get("http://" + m.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
