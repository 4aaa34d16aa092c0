package connect

import "context"

// Writer is the destination capability contract of spec.md §4.C. Every
// concrete driver under pkg/destination implements this; the flush
// engine never imports a driver package directly, only this interface,
// the way the teacher's pkg/replicator only ever depended on
// models.Stream rather than a concrete streams.KafkaStream.
type Writer interface {
	// Open lazily initializes (or fetches from cache) the destination
	// handle for mapping — connecting, and creating the destination-side
	// table/collection/index (using mapping's schema/dimension/
	// auxiliary options) if it does not already exist. Open is keyed by
	// mapping.DestinationRef, so two mappings sharing a destination_ref
	// share one handle, matching spec.md §3's "destination_ref values
	// need not be unique" invariant; the mapping passed in the first
	// Open call for a given ref wins the handle's schema.
	Open(ctx context.Context, mapping *Mapping) error

	// WriteBatch writes one FIFO-ordered batch of Destination records.
	// A non-nil error must be a *Error so the flush engine can branch on
	// Kind; WriteBatch must never partially commit a batch and return
	// nil.
	WriteBatch(ctx context.Context, mapping *Mapping, batch []Destination) error

	// PostCommitRefresh is called once per successful WriteBatch and
	// gives the driver a chance to reload or persist destination-side
	// state (the table driver persists its manifest here) so a later
	// Open observes its own prior commit, mirroring Delta Lake's
	// table-reload-after-write behaviour. The flush engine commits bus
	// offsets only after it returns nil.
	PostCommitRefresh(ctx context.Context, mapping *Mapping) error

	// Close releases the cached handle for destinationRef.
	Close(ctx context.Context, destinationRef string) error
}

// Consumer is the bus-side contract the engine depends on. It never
// sees a sarama.ConsumerGroup or any other bus-specific type — only
// Records and a way to acknowledge (commit) them once their batch has
// been durably written, per spec.md §8 invariant 2: never commit before
// ack.
type Consumer interface {
	// Subscribe begins delivering Records for the given topics to the
	// handler. It blocks until ctx is cancelled or an unrecoverable bus
	// error occurs.
	Subscribe(ctx context.Context, topics []string, handle func(Record) error) error

	// Commit acknowledges that every Record up to and including rec has
	// been durably written to its destination and may be considered
	// delivered.
	Commit(ctx context.Context, rec Record) error
}

// Producer is the bus-side publish contract used by source adapters
// (MQTT, webhook) to push ingested records onto the bus.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string][]byte) error
	// PublishAck behaves like Publish but blocks until the bus
	// acknowledges durable receipt, used when a source's reliability
	// tier (e.g. MQTT QoS >= 1) requires waiting before acking upstream.
	PublishAck(ctx context.Context, topic string, key, value []byte, headers map[string][]byte) error
}

// Metrics is the narrow interface the flush engine reports through, so
// pkg/connect never imports pkg/metrics directly — the same dependency
// direction the teacher keeps between pkg/streams and pkg/metrics.
type Metrics interface {
	RecordFlush(mapping string, batchSize int, duration float64)
	RecordError(mapping string, kind Kind)
}

// NopMetrics discards everything; used where a caller has not wired a
// real Metrics implementation yet (e.g. unit tests).
type NopMetrics struct{}

func (NopMetrics) RecordFlush(string, int, float64) {}
func (NopMetrics) RecordError(string, Kind)         {}
