package connect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests fire flush ticks deterministically instead of
// sleeping real wall-clock time.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	return t
}

func (f *fakeClock) fireAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickers {
		select {
		case t.ch <- f.now:
		default:
		}
	}
}

type fakeTicker struct {
	ch      chan time.Time
	stopMu  sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop() {
	t.stopMu.Lock()
	defer t.stopMu.Unlock()
	t.stopped = true
}

type fakeWriter struct {
	mu       sync.Mutex
	opened   []string
	batches  [][]Destination
	failNext error
}

func (w *fakeWriter) Open(ctx context.Context, mapping *Mapping) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened = append(w.opened, mapping.DestinationRef)
	return nil
}

func (w *fakeWriter) WriteBatch(ctx context.Context, mapping *Mapping, batch []Destination) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext != nil {
		err := w.failNext
		w.failNext = nil
		return err
	}
	cp := append([]Destination{}, batch...)
	w.batches = append(w.batches, cp)
	return nil
}

func (w *fakeWriter) PostCommitRefresh(ctx context.Context, mapping *Mapping) error { return nil }
func (w *fakeWriter) Close(ctx context.Context, ref string) error                   { return nil }

type fakeConsumer struct {
	mu        sync.Mutex
	committed []Record
	handle    func(Record) error
}

func (c *fakeConsumer) Subscribe(ctx context.Context, topics []string, handle func(Record) error) error {
	c.handle = handle
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeConsumer) Commit(ctx context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, rec)
	return nil
}

type passthroughTransformer struct{}

func (passthroughTransformer) Transform(ctx context.Context, mapping *Mapping, rec Record) (Destination, error) {
	return Destination{Ref: mapping.DestinationRef, Fields: map[string]interface{}{"offset": rec.Offset}, SourceRec: rec}, nil
}

type countingMetrics struct {
	mu      sync.Mutex
	flushes int
	errors  map[Kind]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[Kind]int)}
}

func (m *countingMetrics) RecordFlush(mapping string, batchSize int, duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
}

func (m *countingMetrics) RecordError(mapping string, kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func TestFlushEngineSizeTriggeredFlushCommitsInOrder(t *testing.T) {
	registry := NewRegistry()
	m := &Mapping{Name: "orders", SourceTopic: "orders.events", DestinationRef: "ref/orders", DestinationType: DestinationTable, BatchSize: 2, FlushIntervalMs: 60000}
	require.NoError(t, registry.Add(m))

	writer := &fakeWriter{}
	consumer := &fakeConsumer{}
	metrics := newCountingMetrics()
	engine := NewFlushEngine(registry, writer, consumer, passthroughTransformer{}, metrics, newFakeClock())

	ctx := context.Background()
	require.NoError(t, engine.handleRecord(ctx, Record{Topic: "orders.events", Offset: 0}))
	require.NoError(t, engine.handleRecord(ctx, Record{Topic: "orders.events", Offset: 1}))

	writer.mu.Lock()
	require.Len(t, writer.batches, 1)
	assert.Len(t, writer.batches[0], 2)
	writer.mu.Unlock()

	consumer.mu.Lock()
	require.Len(t, consumer.committed, 1)
	assert.Equal(t, int64(1), consumer.committed[0].Offset)
	consumer.mu.Unlock()

	assert.Equal(t, 1, metrics.flushes)
}

func TestFlushEngineRetryableErrorRequeuesBatch(t *testing.T) {
	registry := NewRegistry()
	m := &Mapping{Name: "orders", SourceTopic: "orders.events", DestinationRef: "ref/orders", DestinationType: DestinationTable, BatchSize: 1, FlushIntervalMs: 60000}
	require.NoError(t, registry.Add(m))

	writer := &fakeWriter{failNext: NewRetryableError("orders", "destination unavailable", nil)}
	consumer := &fakeConsumer{}
	metrics := newCountingMetrics()
	engine := NewFlushEngine(registry, writer, consumer, passthroughTransformer{}, metrics, newFakeClock())

	ctx := context.Background()
	err := engine.handleRecord(ctx, Record{Topic: "orders.events", Offset: 0})
	require.Error(t, err)
	assert.True(t, AsKind(err, KindRetryable))

	// The record must still be buffered for the next attempt, not lost.
	assert.Equal(t, 1, engine.bufferFor(m).Len())
	assert.Empty(t, consumer.committed)
	assert.Equal(t, 1, metrics.errors[KindRetryable])

	// A subsequent flush with no injected failure succeeds and drains it.
	require.NoError(t, engine.flushMapping(ctx, m))
	assert.Equal(t, 0, engine.bufferFor(m).Len())
}

type failingTransformer struct{}

func (failingTransformer) Transform(ctx context.Context, mapping *Mapping, rec Record) (Destination, error) {
	return Destination{}, assert.AnError
}

func TestFlushEngineTransformErrorFailsBatchWithoutCommitting(t *testing.T) {
	registry := NewRegistry()
	m := &Mapping{Name: "orders", SourceTopic: "orders.events", DestinationRef: "ref/orders", DestinationType: DestinationTable, BatchSize: 2, FlushIntervalMs: 60000}
	require.NoError(t, registry.Add(m))

	writer := &fakeWriter{}
	consumer := &fakeConsumer{}
	metrics := newCountingMetrics()
	engine := NewFlushEngine(registry, writer, consumer, failingTransformer{}, metrics, newFakeClock())

	err := engine.handleRecord(context.Background(), Record{Topic: "orders.events", Offset: 0})
	require.Error(t, err)
	assert.True(t, AsKind(err, KindInvalidData))

	assert.Empty(t, consumer.committed)
	assert.Equal(t, 1, metrics.errors[KindInvalidData])
}

func TestFlushEngineUnmappedTopicIsDropped(t *testing.T) {
	registry := NewRegistry()
	writer := &fakeWriter{}
	consumer := &fakeConsumer{}
	engine := NewFlushEngine(registry, writer, consumer, passthroughTransformer{}, nil, newFakeClock())

	err := engine.handleRecord(context.Background(), Record{Topic: "unmapped", Offset: 0})
	assert.NoError(t, err)
}
