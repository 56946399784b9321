package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHandler serves /metrics and /healthz.
func NewHandler() http.Handler {
	RegisterMetrics()
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// MetricsServer exposes NewHandler on an address. It plugs into the
// runtime as a lifecycle collaborator.
type MetricsServer struct {
	addr string
	srv  *http.Server
	ln   net.Listener
}

// NewMetricsServer creates a server for addr (host:port).
func NewMetricsServer(addr string) *MetricsServer {
	return &MetricsServer{
		addr: addr,
		srv: &http.Server{
			Handler:           NewHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Addr returns the bound address once Init has run.
func (m *MetricsServer) Addr() string {
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.addr
}

// Init binds the listener and starts serving in the background.
func (m *MetricsServer) Init(_ context.Context) error {
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}
	m.ln = ln
	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "addr", m.addr, "error", err)
		}
	}()
	slog.Info("metrics server listening", "addr", ln.Addr().String())
	return nil
}

// Shutdown stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.ln == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
