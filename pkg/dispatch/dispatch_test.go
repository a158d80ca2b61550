package dispatch

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wisbric/paygate/pkg/platformclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDispatcherProcessesInOrderWithOneWorker(t *testing.T) {
	var mu sync.Mutex
	var seen []int64
	done := make(chan struct{}, 10)

	handler := func(ctx context.Context, u platformclient.Update) error {
		mu.Lock()
		seen = append(seen, u.UpdateID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	d := New(handler, testLogger(), 10, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Close()

	for _, id := range []int64{1, 2, 3} {
		if err := d.Enqueue(platformclient.Update{UpdateID: id}); err != nil {
			t.Fatalf("Enqueue(%d) error: %v", id, err)
		}
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Fatalf("seen = %v, want [1 2 3]", seen)
	}
}

func TestDispatcherDropsOldestOnOverflow(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	var once sync.Once

	handler := func(ctx context.Context, u platformclient.Update) error {
		once.Do(func() { started <- struct{}{} })
		<-block
		return nil
	}

	d := New(handler, testLogger(), 2, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	// First update is immediately picked up by the single worker and blocks.
	_ = d.Enqueue(platformclient.Update{UpdateID: 10})
	<-started

	// Queue (capacity 2) now fills and overflows: 11, 12 fit; 13 evicts 11.
	_ = d.Enqueue(platformclient.Update{UpdateID: 11})
	_ = d.Enqueue(platformclient.Update{UpdateID: 12})
	_ = d.Enqueue(platformclient.Update{UpdateID: 13})

	d.mu.Lock()
	bufIDs := make([]int64, len(d.buf))
	for i, u := range d.buf {
		bufIDs[i] = u.UpdateID
	}
	d.mu.Unlock()

	if len(bufIDs) != 2 || bufIDs[0] != 12 || bufIDs[1] != 13 {
		t.Fatalf("queued after overflow = %v, want [12 13]", bufIDs)
	}

	close(block)
	d.Close()
}

func TestDispatcherDedupsWithinTTL(t *testing.T) {
	var mu sync.Mutex
	count := 0
	handler := func(ctx context.Context, u platformclient.Update) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	d := New(handler, testLogger(), 10, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	_ = d.Enqueue(platformclient.Update{UpdateID: 7})
	_ = d.Enqueue(platformclient.Update{UpdateID: 7})
	_ = d.Enqueue(platformclient.Update{UpdateID: 7})

	time.Sleep(50 * time.Millisecond)
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("handler invoked %d times, want 1 (duplicates suppressed)", count)
	}
}

func TestDispatcherStartIsIdempotent(t *testing.T) {
	d := New(func(context.Context, platformclient.Update) error { return nil }, testLogger(), 10, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Start(ctx)
	d.Start(ctx) // second call should warn and return, not spawn extra workers

	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		t.Fatalf("expected dispatcher to be started")
	}
	d.Close()
}

func TestDispatcherRejectsEnqueueAfterClose(t *testing.T) {
	d := New(func(context.Context, platformclient.Update) error { return nil }, testLogger(), 10, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Close()

	if err := d.Enqueue(platformclient.Update{UpdateID: 99}); err == nil {
		t.Fatalf("expected Enqueue to fail after Close")
	}
}

func TestDispatcherDoesNotCountCancelledHandlingAsProcessed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handlerEntered := make(chan struct{})
	handler := func(hctx context.Context, u platformclient.Update) error {
		close(handlerEntered)
		<-hctx.Done()
		return hctx.Err()
	}

	d := New(handler, testLogger(), 10, 1, time.Hour)
	d.Start(ctx)

	_ = d.Enqueue(platformclient.Update{UpdateID: 1})
	<-handlerEntered
	cancel()

	time.Sleep(50 * time.Millisecond)
	d.Close()
	// No assertion on the processed counter value directly (it is a package
	// global prometheus counter shared across tests); this test exercises
	// the cancellation path without panicking or double-counting.
}
