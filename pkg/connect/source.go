package connect

import (
	"context"
	"time"
)

// Queue is the bounded internal channel spec.md §4.G describes: a
// source adapter (MQTT, webhook) pushes transformed Records into it
// after routing; RuntimeContract.Poll drains it in bounded batches.
// Overflow is backpressure, not data loss from the queue's own point
// of view — TryPush reports failure so the caller (the adapter) can
// apply its own overflow policy (the MQTT adapter acks and drops a
// QoS 0 message; the webhook responds 503).
type Queue struct {
	ch chan Record
}

// NewQueue creates a bounded Queue. spec.md §4.G suggests a capacity
// of 1000.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{ch: make(chan Record, capacity)}
}

// TryPush attempts a non-blocking enqueue, returning false if the
// queue is full.
func (q *Queue) TryPush(rec Record) bool {
	select {
	case q.ch <- rec:
		return true
	default:
		return false
	}
}

// Poll drains up to max Records, waiting up to timeout for at least
// one to arrive before returning an empty (not nil-vs-empty
// meaningful) slice. It never blocks past ctx cancellation.
func (q *Queue) Poll(ctx context.Context, max int, timeout time.Duration) []Record {
	if max <= 0 {
		max = 100
	}
	out := make([]Record, 0, max)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec, ok := <-q.ch:
		if !ok {
			return out
		}
		out = append(out, rec)
	case <-timer.C:
		return out
	case <-ctx.Done():
		return out
	}

	for len(out) < max {
		select {
		case rec, ok := <-q.ch:
			if !ok {
				return out
			}
			out = append(out, rec)
		default:
			return out
		}
	}
	return out
}

// Ingress is implemented by every source adapter: it owns the routing
// table, the protocol client, and the bounded Queue records land in
// after the Transformer runs. RuntimeContract.Poll is a thin
// pass-through to this.
type Ingress interface {
	Poll(ctx context.Context, max int, timeout time.Duration) []Record
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// SourceRuntime is the RuntimeContract implementation for
// source-direction connectors (mirror of Runtime for sinks): it owns
// no Buffer/FlushEngine of its own — the adapter already buffers
// internally — and its job is purely lifecycle plus handing polled
// Records to whatever publishes them onto the bus (cmd/connector's
// own poll loop, per spec.md §4.F: "downstream bus publish is the
// runtime's job").
type SourceRuntime struct {
	Name     string
	Registry *Registry
	Producer Producer
	Ingress  Ingress
}

func NewSourceRuntime(name string, registry *Registry, producer Producer, ingress Ingress) *SourceRuntime {
	return &SourceRuntime{Name: name, Registry: registry, Producer: producer, Ingress: ingress}
}

func (s *SourceRuntime) Initialize(ctx context.Context) error {
	return s.Ingress.Start(ctx)
}

// ConsumerTopics is empty for a source: it has no bus subscription of
// its own, only a producer side.
func (s *SourceRuntime) ConsumerTopics() []string { return nil }

// Process/ProcessBatch are not meaningful for the source direction;
// all ingestion flows through Poll instead. Kept to satisfy
// RuntimeContract uniformly, as spec.md §4.F's hooks are shared
// vocabulary across both directions.
func (s *SourceRuntime) Process(ctx context.Context, rec Record) error {
	return NewConfigError(s.Name, "Process is not used by source connectors; use Poll", nil)
}

func (s *SourceRuntime) ProcessBatch(ctx context.Context, recs []Record) error {
	return NewConfigError(s.Name, "ProcessBatch is not used by source connectors; use Poll", nil)
}

// Poll drains the ingress's internal queue, bounded per spec.md §4.F's
// suggested cap (100) and timeout (100ms).
func (s *SourceRuntime) Poll(ctx context.Context) ([]Record, error) {
	return s.Ingress.Poll(ctx, 100, 100*time.Millisecond), nil
}

func (s *SourceRuntime) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *SourceRuntime) Shutdown(ctx context.Context) error {
	return s.Ingress.Stop(ctx)
}
