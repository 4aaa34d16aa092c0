package connect

import "sync"

// Buffer is the per-endpoint (per-Mapping) accumulator spec.md §4.D
// describes: records land here in arrival order and are drained as one
// FIFO batch whenever the FlushEngine decides to flush, whether because
// the batch hit BatchSize or because FlushIntervalMs elapsed. Buffer
// itself knows nothing about destinations or the bus; it is pure
// in-memory bookkeeping guarded by its own mutex so a size check from
// the ticker goroutine and an Append from the consumer goroutine never
// race.
type Buffer struct {
	mu      sync.Mutex
	items   []Destination
	offsets []Record // parallel slice: the source Records backing items, for commit-after-ack
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds one transformed Destination record (plus the source
// Record it was derived from, needed later to commit the right
// offsets) to the buffer and reports the buffer's length after the
// append so the caller can decide whether a size-triggered flush is
// due without a second lock round-trip.
func (b *Buffer) Append(d Destination, src Record) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, d)
	b.offsets = append(b.offsets, src)
	return len(b.items)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Drain atomically removes and returns every buffered item in arrival
// order, leaving the buffer empty. Callers must not retry a failed
// write by re-calling Drain — a failed batch is the FlushEngine's
// responsibility to requeue, since Drain itself never loses data, it
// only hands it off once.
func (b *Buffer) Drain() ([]Destination, []Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil, nil
	}
	items := b.items
	recs := b.offsets
	b.items = nil
	b.offsets = nil
	return items, recs
}

// Requeue puts a previously drained batch back at the front of the
// buffer, preserving FIFO order, used when a Retryable write error
// means the batch must be retried rather than dropped (spec.md §4.E,
// §8 invariant: "never drop a batch on Fatal — always requeue").
func (b *Buffer) Requeue(items []Destination, recs []Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(append([]Destination{}, items...), b.items...)
	b.offsets = append(append([]Record{}, recs...), b.offsets...)
}
