package connect

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// RuntimeContract is the lifecycle every concrete connector (sink or
// source) must satisfy, grounded directly on the upstream
// SinkConnector trait (original_source/sink-deltalake/src/connector.rs):
// initialize, describe what to consume, process one record or a batch,
// report health, and shut down cleanly. spec.md §4.F names this
// contract; this type is its sole Go realization.
type RuntimeContract interface {
	// Initialize prepares the connector to run: opening destination
	// handles for every mapping, validating configuration.
	Initialize(ctx context.Context) error

	// ConsumerTopics reports which bus topics this connector needs
	// delivered to it — the Go analogue of consumer_configs().
	ConsumerTopics() []string

	// Process handles a single Record: the sink Runtime routes it into the
	// FlushEngine's buffer (possibly triggering a flush); source
	// connectors reject it and ingest through Poll instead.
	Process(ctx context.Context, rec Record) error

	// ProcessBatch hands a batch of Records to the engine in one call.
	ProcessBatch(ctx context.Context, recs []Record) error

	// Poll drains a source connector's internal ingress queue, returning
	// up to a bounded batch within a short timeout. Sink connectors have
	// no use for it; Runtime returns an empty slice.
	Poll(ctx context.Context) ([]Record, error)

	// HealthCheck reports whether the connector can currently make
	// forward progress.
	HealthCheck(ctx context.Context) error

	// Shutdown releases every resource Initialize acquired.
	Shutdown(ctx context.Context) error
}

// Runtime is the default sink-side RuntimeContract implementation: it
// wires a Registry, Writer, Consumer, Transformer and Metrics together
// and drives them through a FlushEngine. cmd/connector constructs one
// of these for a sink connector process.
type Runtime struct {
	Name     string
	Registry *Registry
	Writer   Writer
	Consumer Consumer
	Flush    *FlushEngine

	mu      sync.Mutex
	opened  map[string]bool
	cancel  context.CancelFunc
	running bool
}

func NewRuntime(name string, registry *Registry, writer Writer, consumer Consumer, transformer Transformer, metrics Metrics, clock Clock) *Runtime {
	return &Runtime{
		Name:     name,
		Registry: registry,
		Writer:   writer,
		Consumer: consumer,
		Flush:    NewFlushEngine(registry, writer, consumer, transformer, metrics, clock),
		opened:   make(map[string]bool),
	}
}

func (r *Runtime) Initialize(ctx context.Context) error {
	for _, m := range r.Registry.List() {
		if err := r.Writer.Open(ctx, m); err != nil {
			return fmt.Errorf("initialize mapping %s: %w", m.Name, err)
		}
		r.mu.Lock()
		r.opened[m.DestinationRef] = true
		r.mu.Unlock()
	}
	log.Info().Str("connector", r.Name).Int("mappings", len(r.Registry.List())).Msg("connector initialized")
	return nil
}

func (r *Runtime) ConsumerTopics() []string {
	return r.Registry.Topics()
}

// Process routes one Record through the FlushEngine exactly as the bus
// subscription started by Run does: transform, buffer, and flush once
// the mapping's BatchSize is reached.
func (r *Runtime) Process(ctx context.Context, rec Record) error {
	return r.Flush.handleRecord(ctx, rec)
}

func (r *Runtime) ProcessBatch(ctx context.Context, recs []Record) error {
	for _, rec := range recs {
		if err := r.Process(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the flush engine's subscribe+ticker loop and blocks until
// ctx is cancelled or the bus returns an unrecoverable error.
func (r *Runtime) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()
	return r.Flush.Run(runCtx)
}

// Poll is not meaningful for a sink connector; it always returns an
// empty batch. Sinks are driven entirely by Run/the FlushEngine's own
// bus subscription.
func (r *Runtime) Poll(ctx context.Context) ([]Record, error) {
	return nil, nil
}

func (r *Runtime) HealthCheck(ctx context.Context) error {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return NewFatalError(r.Name, "connector is not running", nil)
	}
	return nil
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.running = false
	refs := make([]string, 0, len(r.opened))
	for ref := range r.opened {
		refs = append(refs, ref)
	}
	r.mu.Unlock()

	// Best-effort final flush of every non-empty mapping buffer before
	// any destination handle is closed, per spec.md §4.E: a mapping
	// still mid-batch when shutdown is requested must not lose records
	// that are sitting in memory waiting for the next tick.
	for _, m := range r.Registry.List() {
		if r.Flush.bufferFor(m).Len() == 0 {
			continue
		}
		if err := r.Flush.flushMapping(ctx, m); err != nil {
			log.Warn().Err(err).Str("mapping", m.Name).Msg("final flush on shutdown failed, records left buffered")
		}
	}

	var firstErr error
	for _, ref := range refs {
		if err := r.Writer.Close(ctx, ref); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close destination %s: %w", ref, err)
		}
	}
	log.Info().Str("connector", r.Name).Msg("connector shut down")
	return firstErr
}
