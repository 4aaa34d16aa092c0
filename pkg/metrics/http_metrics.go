package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server exposes the Prometheus registry plus a liveness endpoint on a
// dedicated listener, grounded on the teacher's LegacyMetricsServer
// (pkg/metrics/http_metrics.go), trimmed to what a single connector
// process needs rather than a fleet of replication streams.
type Server struct {
	http *http.Server
}

// NewServer serves reg's own collectors rather than the global default
// registry, so a caller that constructed PrometheusMetrics against a
// dedicated *prometheus.Registry (rather than prometheus.DefaultRegisterer)
// actually sees those metrics on the endpoint it stood up.
func NewServer(addr, path string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","time":"` + time.Now().Format(time.RFC3339) + `"}`))
	})
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{http: &http.Server{Addr: addr, Handler: mux}}
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("starting metrics server")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
