// Package clock implements the process-wide exchange/local clock offset
// described in spec.md §4.1 and §5. The source's global mutable offset and
// ad-hoc "first error logged" flag are redesigned per spec.md §9 into an
// explicit component: an atomic offset with a single writer at resync
// time, and an explicit Warnings rate-limiter value type that tallies
// resync failures per window. The Clock itself does not log; callers of
// Resync report its errors.
package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// ServerTimeFunc fetches the venue's current server time.
type ServerTimeFunc func(ctx context.Context) (time.Time, error)

// Clock tracks the offset between a venue's server clock and the local
// clock, resyncing on demand. Resync is forced when more than
// StaleAfter has elapsed since the last success, or by an explicit call
// (e.g. on a time-drift auth error from the exchange client).
type Clock struct {
	fetch     ServerTimeFunc
	offsetMs  atomic.Int64
	lastSync  atomic.Int64 // unix millis of last successful resync
	StaleAfter time.Duration

	warnings Warnings
}

// New creates a Clock that resyncs by calling fetch.
func New(fetch ServerTimeFunc) *Clock {
	return &Clock{
		fetch:      fetch,
		StaleAfter: 30 * time.Second,
	}
}

// Now returns the local clock adjusted by the current offset.
func (c *Clock) Now() time.Time {
	return time.Now().Add(c.Offset())
}

// Offset returns the current server-minus-local offset.
func (c *Clock) Offset() time.Duration {
	return time.Duration(c.offsetMs.Load()) * time.Millisecond
}

// StaleSince reports how long it has been since the last successful
// resync. A Clock that has never synced reports a very large duration.
func (c *Clock) StaleSince() time.Duration {
	last := c.lastSync.Load()
	if last == 0 {
		return time.Duration(1<<62 - 1)
	}
	return time.Since(time.UnixMilli(last))
}

// NeedsResync reports whether StaleSince exceeds StaleAfter.
func (c *Clock) NeedsResync() bool {
	return c.StaleSince() >= c.StaleAfter
}

// Resync fetches fresh server time and swaps the offset atomically. Safe
// for concurrent callers; the fetch function itself may race but only the
// last writer's offset is observed going forward, which is acceptable
// since offsets across concurrent resyncs differ only by fetch latency.
func (c *Clock) Resync(ctx context.Context) error {
	serverTime, err := c.fetch(ctx)
	if err != nil {
		c.warnings.Record()
		return err
	}
	offset := serverTime.Sub(time.Now())
	c.offsetMs.Store(offset.Milliseconds())
	c.lastSync.Store(time.Now().UnixMilli())
	c.warnings.Reset()
	return nil
}

// Warnings rate-limits repeated identical warnings (e.g. resync failures)
// to at most one per window, replacing the source's module-level
// "first-error-logged" boolean flag with an explicit, testable value type.
type Warnings struct {
	windowStart atomic.Int64
	count       atomic.Int64
}

// ShouldLog reports whether a warning should be emitted right now given a
// window, and advances the internal window bookkeeping.
func (w *Warnings) ShouldLog(window time.Duration) bool {
	now := time.Now().UnixMilli()
	start := w.windowStart.Load()
	if start == 0 || now-start >= window.Milliseconds() {
		w.windowStart.Store(now)
		w.count.Store(1)
		return true
	}
	w.count.Add(1)
	return false
}

// Record tallies an occurrence without necessarily logging it.
func (w *Warnings) Record() {
	w.ShouldLog(time.Minute)
}

// Reset clears the warning window, e.g. after a successful resync.
func (w *Warnings) Reset() {
	w.windowStart.Store(0)
	w.count.Store(0)
}
