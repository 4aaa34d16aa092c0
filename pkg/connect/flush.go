package connect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Transformer converts one bus Record into a Destination record shaped
// for the Mapping's destination_type. pkg/transform implements this;
// pkg/connect only depends on the interface so the engine never needs
// to know about JSON decoding, schema projection, or vector math.
type Transformer interface {
	Transform(ctx context.Context, mapping *Mapping, rec Record) (Destination, error)
}

// FlushEngine is the component spec.md §4.E describes: it owns one
// Buffer per Mapping, flushes a mapping's buffer either when it fills
// to BatchSize or when FlushIntervalMs elapses (whichever comes first),
// and never lets two flushes of the same mapping run concurrently.
// Ordering across mappings is never guaranteed — each mapping's ticker
// and size-triggered flush run independently.
type FlushEngine struct {
	registry    *Registry
	writer      Writer
	consumer    Consumer
	transformer Transformer
	metrics     Metrics
	clock       Clock

	mu      sync.Mutex
	buffers map[string]*Buffer
	locks   map[string]*sync.Mutex
}

func NewFlushEngine(registry *Registry, writer Writer, consumer Consumer, transformer Transformer, metrics Metrics, clock Clock) *FlushEngine {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if clock == nil {
		clock = RealClock()
	}
	return &FlushEngine{
		registry:    registry,
		writer:      writer,
		consumer:    consumer,
		transformer: transformer,
		metrics:     metrics,
		clock:       clock,
		buffers:     make(map[string]*Buffer),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (e *FlushEngine) bufferFor(mapping *Mapping) *Buffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.buffers[mapping.Name]
	if !ok {
		b = NewBuffer()
		e.buffers[mapping.Name] = b
	}
	return b
}

// lockFor returns the mutual-exclusion lock for a mapping's flush path,
// creating it on first use. Holding this lock is what makes "no two
// concurrent flushes of the same mapping" true regardless of whether
// the trigger was the ticker goroutine or a size-triggered flush from
// the consumer goroutine.
func (e *FlushEngine) lockFor(name string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[name]
	if !ok {
		l = &sync.Mutex{}
		e.locks[name] = l
	}
	return l
}

// Run subscribes to every mapped topic and starts one flush-interval
// ticker per mapping, blocking until ctx is cancelled or the bus
// consumer returns an unrecoverable error.
func (e *FlushEngine) Run(ctx context.Context) error {
	mappings := e.registry.List()
	if len(mappings) == 0 {
		return NewConfigError("", "no mappings registered", nil)
	}
	return e.run(ctx, mappings)
}

func (e *FlushEngine) run(ctx context.Context, mappings []*Mapping) error {
	var wg sync.WaitGroup
	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, m := range mappings {
		wg.Add(1)
		go func(m *Mapping) {
			defer wg.Done()
			e.tickerLoop(tickCtx, m)
		}(m)
	}

	topics := e.registry.Topics()
	err := e.consumer.Subscribe(ctx, topics, func(rec Record) error {
		return e.handleRecord(ctx, rec)
	})

	cancel()
	wg.Wait()
	return err
}

func (e *FlushEngine) tickerLoop(ctx context.Context, m *Mapping) {
	ticker := e.clock.NewTicker(m.FlushInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := e.flushMapping(ctx, m); err != nil {
				log.Error().Err(err).Str("mapping", m.Name).Msg("interval flush failed")
			}
		}
	}
}

func (e *FlushEngine) handleRecord(ctx context.Context, rec Record) error {
	mapping, ok := e.registry.LookupByTopic(rec.Topic)
	if !ok {
		log.Warn().Str("topic", rec.Topic).Msg("record for unmapped topic dropped")
		return nil
	}

	dest, err := e.transformer.Transform(ctx, mapping, rec)
	if err != nil {
		e.metrics.RecordError(mapping.Name, KindInvalidData)
		log.Error().Err(err).Str("mapping", mapping.Name).Int64("offset", rec.Offset).
			Msg("record failed transformation")
		// Per spec.md §7 the default is to fail the batch so the
		// operator notices: the offset is left uncommitted rather than
		// acked and dropped. A poison-message skip policy would need to
		// be a separate, explicit opt-in on top of this.
		return NewInvalidDataError(mapping.Name, "record failed transformation", err)
	}

	buf := e.bufferFor(mapping)
	size := buf.Append(dest, rec)
	if size >= mapping.BatchSize {
		if err := e.flushMapping(ctx, mapping); err != nil {
			return err
		}
	}
	return nil
}

// flushMapping drains the mapping's buffer and writes it, holding the
// mapping's flush lock for the duration. On any failure the batch is
// requeued (never dropped) and the bus offset is left uncommitted,
// satisfying spec.md §8's at-least-once invariant.
func (e *FlushEngine) flushMapping(ctx context.Context, mapping *Mapping) error {
	lock := e.lockFor(mapping.Name)
	lock.Lock()
	defer lock.Unlock()

	buf := e.bufferFor(mapping)
	items, recs := buf.Drain()
	if len(items) == 0 {
		return nil
	}

	start := e.clock.Now()
	if err := e.writer.WriteBatch(ctx, mapping, items); err != nil {
		buf.Requeue(items, recs)
		kind := KindFatal
		if ce, ok := asConnectError(err); ok {
			kind = ce.Kind
		}
		e.metrics.RecordError(mapping.Name, kind)
		return fmt.Errorf("flush mapping %s: %w", mapping.Name, err)
	}

	// Commit only after the write is durably acknowledged by the
	// destination: offsets never move ahead of what has actually landed.
	// PostCommitRefresh is part of the write landing (the table driver
	// persists its manifest there), so a failed refresh requeues the
	// batch like a failed write and leaves the offset uncommitted.
	if err := e.writer.PostCommitRefresh(ctx, mapping); err != nil {
		buf.Requeue(items, recs)
		return fmt.Errorf("post-commit refresh for mapping %s: %w", mapping.Name, err)
	}

	last := recs[len(recs)-1]
	if err := e.consumer.Commit(ctx, last); err != nil {
		buf.Requeue(items, recs)
		return fmt.Errorf("commit offsets for mapping %s: %w", mapping.Name, err)
	}

	e.metrics.RecordFlush(mapping.Name, len(items), time.Since(start).Seconds())
	return nil
}

func asConnectError(err error) (*Error, bool) {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			return ce, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil, false
}
