// Package longpoll implements the long-polling front door: an alternative
// to the webhook front door that pulls updates via repeated getUpdates
// calls instead of receiving pushed HTTP requests.
package longpoll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/platformclient"
)

// EnqueueFunc hands one update off to the dispatcher. Enqueue errors are
// logged and do not stop the polling loop.
type EnqueueFunc func(update platformclient.Update) error

// Runner polls getUpdates in a loop, advancing offset past the highest
// update_id seen in each batch.
type Runner struct {
	client         *platformclient.Client
	enqueue        EnqueueFunc
	logger         *slog.Logger
	timeoutSeconds int
	allowedUpdates []string

	errorBackoff time.Duration
}

// NewRunner creates a Runner. timeoutSeconds is clamped to [1, 50] per the
// platform's long-poll contract.
func NewRunner(client *platformclient.Client, enqueue EnqueueFunc, logger *slog.Logger, timeoutSeconds int, allowedUpdates []string) *Runner {
	if timeoutSeconds < 1 {
		timeoutSeconds = 1
	}
	if timeoutSeconds > 50 {
		timeoutSeconds = 50
	}
	return &Runner{
		client:         client,
		enqueue:        enqueue,
		logger:         logger,
		timeoutSeconds: timeoutSeconds,
		allowedUpdates: allowedUpdates,
		errorBackoff:   time.Second,
	}
}

// Run blocks, polling until ctx is cancelled. Cancellation is cooperative:
// the loop checks ctx between cycles and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	telemetry.LongPollOffsetGauge.Set(-1)

	if err := r.client.DeleteWebhook(ctx, false); err != nil {
		return fmt.Errorf("longpoll: deleteWebhook before polling: %w", err)
	}

	var offset *int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		telemetry.LongPollCyclesTotal.Inc()

		updates, err := r.client.GetUpdates(ctx, offset, r.timeoutSeconds, r.allowedUpdates)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("getUpdates failed", "error", err)
			if !sleepCtx(ctx, r.errorBackoff) {
				return ctx.Err()
			}
			continue
		}

		if len(updates) == 0 {
			continue
		}
		telemetry.LongPollBatchesTotal.Inc()

		maxUpdateID := int64(-1)
		for _, update := range updates {
			telemetry.LongPollUpdatesTotal.Inc()
			if err := r.enqueue(update); err != nil {
				r.logger.Warn("enqueue failed", "update_id", update.UpdateID, "error", err)
			}
			if update.UpdateID > maxUpdateID {
				maxUpdateID = update.UpdateID
			}
		}
		if maxUpdateID >= 0 {
			next := maxUpdateID + 1
			offset = &next
			telemetry.LongPollOffsetGauge.Set(float64(next))
		}
	}
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
