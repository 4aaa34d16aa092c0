package connect

import "time"

// Clock is injected wherever the engine needs "now" or a ticker, so
// flush-interval behaviour (spec.md §8 property 4) can be driven
// deterministically from tests instead of sleeping real wall time.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the flush engine needs, so a
// fake Clock can hand back a channel it controls directly.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

// RealClock is the production Clock, backed by the standard library.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
