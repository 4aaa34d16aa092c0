package connect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeShutdownFlushesNonEmptyBuffersBeforeClosing(t *testing.T) {
	registry := NewRegistry()
	m := &Mapping{Name: "orders", SourceTopic: "orders.events", DestinationRef: "ref/orders", DestinationType: DestinationTable, BatchSize: 10, FlushIntervalMs: 60000}
	require.NoError(t, registry.Add(m))

	writer := &fakeWriter{}
	consumer := &fakeConsumer{}
	metrics := newCountingMetrics()
	r := NewRuntime("orders-sink", registry, writer, consumer, passthroughTransformer{}, metrics, newFakeClock())

	require.NoError(t, r.Initialize(context.Background()))

	// A record that never reaches BatchSize sits in the buffer until the
	// next tick or shutdown.
	require.NoError(t, r.Process(context.Background(), Record{Topic: "orders.events", Offset: 0}))
	assert.Equal(t, 1, r.Flush.bufferFor(m).Len())

	require.NoError(t, r.Shutdown(context.Background()))

	assert.Equal(t, 0, r.Flush.bufferFor(m).Len())
	writer.mu.Lock()
	require.Len(t, writer.batches, 1)
	assert.Len(t, writer.batches[0], 1)
	writer.mu.Unlock()
	consumer.mu.Lock()
	require.Len(t, consumer.committed, 1)
	consumer.mu.Unlock()
}

func TestRuntimeShutdownSkipsEmptyBuffers(t *testing.T) {
	registry := NewRegistry()
	m := &Mapping{Name: "orders", SourceTopic: "orders.events", DestinationRef: "ref/orders", DestinationType: DestinationTable, BatchSize: 10, FlushIntervalMs: 60000}
	require.NoError(t, registry.Add(m))

	writer := &fakeWriter{}
	consumer := &fakeConsumer{}
	r := NewRuntime("orders-sink", registry, writer, consumer, passthroughTransformer{}, nil, newFakeClock())
	require.NoError(t, r.Initialize(context.Background()))

	require.NoError(t, r.Shutdown(context.Background()))

	writer.mu.Lock()
	assert.Empty(t, writer.batches)
	writer.mu.Unlock()
}
