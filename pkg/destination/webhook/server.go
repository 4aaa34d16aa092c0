// Package webhook implements the HTTP webhook source of spec.md §4.G:
// a single POST intake endpoint guarded by pluggable auth and
// per-endpoint rate limiting, plus health/readiness endpoints. Grounded
// on the teacher's pkg/api/server.go ServeMux+middleware-chain idiom
// (no router framework), generalized from the replicator's
// management/metrics API surface to one narrow ingestion endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cohenjo/connectors/pkg/auth"
	"github.com/cohenjo/connectors/pkg/connect"
)

// Config configures one webhook intake endpoint, adapted from spec.md
// §6's webhook source config block.
type Config struct {
	Host            string
	Port            int
	Path            string
	MaxBodyBytes    int64
	RateLimitPerSec float64
	RateLimitBurst  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	QueueCapacity   int
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/intake"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20 // 1MiB
	}
	if c.RateLimitPerSec <= 0 {
		c.RateLimitPerSec = 100
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 200
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Transformer is the same source-direction contract the MQTT adapter
// depends on.
type Transformer interface {
	TransformInbound(ctx context.Context, mapping *connect.Mapping, originTopic string, payload []byte) (connect.Record, error)
}

// Server implements connect.Ingress for the webhook source: every
// accepted POST is transformed and pushed onto the bounded internal
// queue, mirroring the MQTT adapter's QoS0 path — a 200 means the
// record is accepted for publish, not that it has landed on the bus
// yet. The actual bus publish happens on the runtime's poll loop via
// Poll, the same decoupled path every source connector shares; a full
// queue surfaces as 503 so the caller's own retry policy kicks in.
type Server struct {
	cfg         Config
	mapping     *connect.Mapping
	verifier    auth.Verifier
	transformer Transformer
	limiter     *limiter
	queue       *connect.Queue

	httpServer *http.Server

	mu    sync.Mutex
	ready bool
}

// NewServer builds a webhook source. Unlike the MQTT adapter, the
// webhook protocol has no QoS-implied reliability tier to honor, so
// there is no direct connect.Producer dependency here: every accepted
// record is handed to the runtime's poll loop, which owns the producer.
func NewServer(cfg Config, mapping *connect.Mapping, verifier auth.Verifier, transformer Transformer) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:         cfg,
		mapping:     mapping,
		verifier:    verifier,
		transformer: transformer,
		limiter:     newLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		queue:       connect.NewQueue(cfg.QueueCapacity),
	}
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc(s.cfg.Path, s.handleIntake)

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// Start binds the listener and begins serving in the background,
// mirroring the teacher's Server.Start/Stop split — Start never blocks
// the caller, matching connect.Ingress.Start's contract.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         httpAddr(s.cfg.Host, s.cfg.Port),
		Handler:      s.mux(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		log.Info().Str("address", s.httpServer.Addr).Str("path", s.cfg.Path).Msg("webhook source listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("webhook source listener failed")
		}
	}()

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Poll(ctx context.Context, max int, timeout time.Duration) []connect.Record {
	return s.queue.Poll(ctx, max, timeout)
}

func httpAddr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleIntake is the single ingestion endpoint: method check, rate
// limit, body-size cap, auth verification, transform, queue — matching
// spec.md §6's status-code table (200/401/413/429/404/503). The publish
// to the bus itself happens off the request path, on Poll.
func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.limiter.allow(clientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}

	if s.verifier != nil {
		if err := s.verifier.Verify(r, body); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
	}

	rec, err := s.transformer.TransformInbound(r.Context(), s.mapping, r.URL.Path, body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// spec.md §8 scenario 6: every record published from the webhook
	// source carries these three attributes identifying its ingress.
	if rec.Headers == nil {
		rec.Headers = make(map[string][]byte)
	}
	rec.Headers["webhook.source"] = []byte(clientKey(r))
	rec.Headers["webhook.endpoint"] = []byte(r.URL.Path)
	rec.Headers["webhook.timestamp"] = []byte(time.Now().UTC().Format(time.RFC3339Nano))

	if !s.queue.TryPush(rec) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "internal queue full, retry"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode webhook response")
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status_code", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("webhook request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Str("path", r.URL.Path).Msg("panic recovered in webhook handler")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

var _ connect.Ingress = (*Server)(nil)
