// Package observability builds the process logger and owns the Prometheus
// collectors of the runtime. Collectors register lazily with the default
// registry the first time anything is recorded.
package observability
