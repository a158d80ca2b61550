// Package refund issues at-most-once Stars refunds per charge, retryable
// only from a Failed state.
package refund

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wisbric/paygate/internal/telemetry"
)

// slaWarn is the refund SLA; a refund taking longer is logged, not failed.
const slaWarn = 2 * time.Second

type state string

const (
	stateInProgress state = "in_progress"
	stateSucceeded  state = "succeeded"
	stateFailed     state = "failed"
)

type entry struct {
	state      state
	attempt    int
	lastError  string
	durationMs int64
}

// Platform is the subset of platformclient.Client this service calls.
type Platform interface {
	RefundStarPayment(ctx context.Context, userID int64, chargeID string) error
}

// Service issues at-most-once refunds keyed by charge ID.
type Service struct {
	mu      sync.Mutex
	journal map[string]*entry

	platform Platform
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a refund Service.
func New(platform Platform, logger *slog.Logger) *Service {
	return &Service{
		journal:  make(map[string]*entry),
		platform: platform,
		logger:   logger,
		now:      time.Now,
	}
}

// RefundStar issues a Stars refund for chargeID, unless one is already in
// progress or already succeeded. reason is recorded in logs only.
func (s *Service) RefundStar(ctx context.Context, userID int64, chargeID, reason string) error {
	s.mu.Lock()
	e, ok := s.journal[chargeID]
	if !ok {
		e = &entry{state: stateInProgress, attempt: 1}
		s.journal[chargeID] = e
	} else {
		switch e.state {
		case stateInProgress, stateSucceeded:
			s.mu.Unlock()
			s.logger.Info("refund duplicate, no-op", "charge_id", chargeID, "state", e.state)
			return nil
		case stateFailed:
			e.state = stateInProgress
			e.attempt++
		}
	}
	s.mu.Unlock()

	telemetry.RefundTotal.Inc()
	start := s.now()
	err := s.platform.RefundStarPayment(ctx, userID, chargeID)
	duration := s.now().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		e.state = stateFailed
		e.lastError = err.Error()
		telemetry.RefundFailTotal.Inc()
		s.logger.Error("refund failed", "charge_id", chargeID, "reason", reason, "error", err)
		return fmt.Errorf("refund: %s: %w", reason, err)
	}

	e.state = stateSucceeded
	e.durationMs = duration.Milliseconds()
	if duration > slaWarn {
		s.logger.Warn("refund exceeded SLA", "charge_id", chargeID, "duration_ms", e.durationMs)
	}
	return nil
}
