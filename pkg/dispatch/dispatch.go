// Package dispatch implements the update dispatcher: a bounded FIFO queue
// with drop-oldest overflow, a small worker pool, and update-id dedup with
// a background TTL sweep.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/platformclient"
)

const (
	// DefaultCapacity is the queue size Q used when none is configured.
	DefaultCapacity = 10000
	// DefaultWorkers is the worker count W used when none is configured.
	DefaultWorkers = 1
	// DefaultDedupTTL is how long an update_id is remembered for dedup.
	DefaultDedupTTL = 26 * time.Hour

	sweepInterval = 15 * time.Minute
)

// Handler routes one update (pkg/router). It should honor ctx cancellation.
type Handler func(ctx context.Context, update platformclient.Update) error

// Dispatcher is a fixed-capacity, drop-oldest FIFO queue feeding a small
// worker pool, with update_id dedup over a sliding TTL window.
//
// The queue is a ring buffer guarded by a mutex/condvar rather than a Go
// channel: a channel has no way to evict its oldest element on overflow,
// which the drop-oldest policy requires.
type Dispatcher struct {
	handler  Handler
	logger   *slog.Logger
	capacity int
	workers  int
	dedupTTL time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []platformclient.Update
	closed bool

	dedupMu sync.Mutex
	seen    map[int64]time.Time

	started   bool
	wg        sync.WaitGroup
	stopSweep chan struct{}
}

// New creates a Dispatcher. capacity, workers, and dedupTTL fall back to
// their package defaults when given as zero.
func New(handler Handler, logger *slog.Logger, capacity, workers int, dedupTTL time.Duration) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	d := &Dispatcher{
		handler:   handler,
		logger:    logger,
		capacity:  capacity,
		workers:   workers,
		dedupTTL:  dedupTTL,
		buf:       make([]platformclient.Update, 0, capacity),
		seen:      make(map[int64]time.Time),
		stopSweep: make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start launches the worker pool and the dedup sweeper. Idempotent: a
// repeated call warns and returns without starting a second pool.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		d.logger.Warn("dispatcher start called twice, ignoring")
		return
	}
	d.started = true
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(ctx)
	}
	d.wg.Add(1)
	go d.runSweeper()
}

// Close refuses further enqueues, wakes workers so they drain the backlog
// and exit, then waits for the worker pool and sweeper to stop.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cond.Broadcast()
	close(d.stopSweep)
	d.wg.Wait()
}

// Enqueue is the EnqueueFunc handed to the webhook front door and the
// long-polling runner. Duplicate update_ids within the dedup TTL are
// discarded. On overflow the oldest queued update is dropped to make room.
func (d *Dispatcher) Enqueue(update platformclient.Update) error {
	if d.isDuplicate(update.UpdateID) {
		telemetry.UpdatesDuplicateTotal.Inc()
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		telemetry.UpdatesDroppedTotal.Inc()
		return fmt.Errorf("dispatch: dispatcher is closed")
	}

	if len(d.buf) >= d.capacity {
		d.buf = d.buf[1:]
		telemetry.UpdatesDroppedTotal.Inc()
	}
	d.buf = append(d.buf, update)
	telemetry.UpdateQueueSize.Set(float64(len(d.buf)))
	telemetry.UpdatesEnqueuedTotal.Inc()
	d.cond.Signal()
	return nil
}

// isDuplicate records updateID as seen and reports whether it was already
// seen within the dedup TTL. A dropped update does not get its seen-entry
// removed: it will not re-deliver until TTL expiry even if re-sent.
func (d *Dispatcher) isDuplicate(updateID int64) bool {
	now := time.Now()
	d.dedupMu.Lock()
	defer d.dedupMu.Unlock()
	if seenAt, ok := d.seen[updateID]; ok && now.Sub(seenAt) < d.dedupTTL {
		return true
	}
	d.seen[updateID] = now
	return false
}

// pop blocks until an update is available or the dispatcher is closed and
// drained, returning ok=false in the latter case.
func (d *Dispatcher) pop() (platformclient.Update, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.buf) == 0 && !d.closed {
		d.cond.Wait()
	}
	if len(d.buf) == 0 {
		return platformclient.Update{}, false
	}
	u := d.buf[0]
	d.buf = d.buf[1:]
	telemetry.UpdateQueueSize.Set(float64(len(d.buf)))
	return u, true
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	defer d.wg.Done()
	for {
		update, ok := d.pop()
		if !ok {
			return
		}
		d.handle(ctx, update)
	}
}

// handle invokes the router handler for one update. Cancellation is logged,
// not counted as processed, so the update's accounting is never lost: a
// cancelled update is neither "processed" nor silently dropped.
func (d *Dispatcher) handle(ctx context.Context, update platformclient.Update) {
	start := time.Now()
	err := d.handler(ctx, update)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			d.logger.Warn("update handling cancelled", "update_id", update.UpdateID)
			return
		}
		d.logger.Error("update handling failed", "update_id", update.UpdateID, "error", err)
		return
	}
	telemetry.UpdatesProcessedTotal.Inc()
	telemetry.UpdateHandleDuration.Observe(time.Since(start).Seconds())
}

func (d *Dispatcher) runSweeper() {
	defer d.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.sweepOnce()
		case <-d.stopSweep:
			return
		}
	}
}

func (d *Dispatcher) sweepOnce() {
	cutoff := time.Now().Add(-d.dedupTTL)
	d.dedupMu.Lock()
	defer d.dedupMu.Unlock()
	for id, seenAt := range d.seen {
		if seenAt.Before(cutoff) {
			delete(d.seen, id)
		}
	}
}
