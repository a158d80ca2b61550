// Package payment implements the SuccessfulPaymentHandler: the terminal
// step of a purchase, turning a confirmed charge into a draw and an award
// exactly once per charge.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/award"
	"github.com/wisbric/paygate/pkg/economy"
	"github.com/wisbric/paygate/pkg/fairness"
	"github.com/wisbric/paygate/pkg/invoice"
	"github.com/wisbric/paygate/pkg/platformclient"
)

type state string

const (
	stateInProgress state = "in_progress"
	stateCompleted  state = "completed"
	stateFailed     state = "failed"
	stateRefunded   state = "refunded"
)

type entry struct {
	state  state
	reason string
	plan   award.Plan
}

// Drawer is the fairness collaborator this handler calls.
type Drawer interface {
	Draw(caseID string, userID int64, nonce string) (fairness.DrawRecord, fairness.Receipt, error)
}

// Scheduler is the award collaborator this handler calls.
type Scheduler interface {
	Schedule(ctx context.Context, plan award.Plan) error
}

// Refunder is the refund collaborator used when a charge cannot be honored.
type Refunder interface {
	RefundStar(ctx context.Context, userID int64, chargeID, reason string) error
}

// Platform is the subset of platformclient.Client used for the best-effort
// receipt message.
type Platform interface {
	SendMessage(ctx context.Context, chatID int64, text string, disableNotification bool, replyToMessageID *int64) error
}

// Handler processes confirmed successful-payment updates.
type Handler struct {
	mu      sync.Mutex
	journal map[string]*entry

	catalog        economy.Catalog
	drawer         Drawer
	scheduler      Scheduler
	refunder       Refunder
	platform       Platform
	logger         *slog.Logger
	receiptEnabled bool
}

// New creates a Handler.
func New(catalog economy.Catalog, drawer Drawer, scheduler Scheduler, refunder Refunder, platform Platform, receiptEnabled bool, logger *slog.Logger) *Handler {
	return &Handler{
		journal:        make(map[string]*entry),
		catalog:        catalog,
		drawer:         drawer,
		scheduler:      scheduler,
		refunder:       refunder,
		platform:       platform,
		logger:         logger,
		receiptEnabled: receiptEnabled,
	}
}

// Handle processes msg's SuccessfulPayment. A missing payment or a blank
// charge ID is rejected outright — meaning no charge to key a journal
// entry on — and is metered as a failure rather than silently dropped.
func (h *Handler) Handle(ctx context.Context, msg platformclient.Message) error {
	if msg.SuccessfulPayment == nil {
		h.logger.Warn("successful-payment update missing payment, ignoring")
		telemetry.PayFailureTotal.WithLabelValues("missing_payment").Inc()
		return nil
	}
	sp := *msg.SuccessfulPayment
	chargeID := strings.TrimSpace(sp.TelegramPaymentChargeID)
	if chargeID == "" {
		h.logger.Warn("successful payment missing charge id, ignoring")
		telemetry.PayFailureTotal.WithLabelValues("charge_id_blank").Inc()
		return nil
	}

	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	chatID := msg.Chat.ID

	h.mu.Lock()
	if _, exists := h.journal[chargeID]; exists {
		h.mu.Unlock()
		telemetry.PaySuccessIdempotentTotal.Inc()
		h.logger.Info("successful-payment duplicate, ignoring", "charge_id", chargeID)
		return nil
	}
	h.journal[chargeID] = &entry{state: stateInProgress}
	h.mu.Unlock()

	payload, reason, ok := h.validate(sp, userID)
	if !ok {
		h.logger.Warn("successful payment failed validation", "charge_id", chargeID, "reason", reason)
		h.refundIfXTR(ctx, sp.Currency, userID, chargeID, "validation: "+reason)
		h.finish(chargeID, stateFailed, reason)
		telemetry.PayFailureTotal.WithLabelValues(reason).Inc()
		return nil
	}

	record, receipt, err := h.drawer.Draw(payload.CaseID, userID, payload.Nonce)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			h.revert(chargeID)
			return err
		}
		h.logger.Error("draw failed for successful payment", "charge_id", chargeID, "error", err)
		h.refundIfXTR(ctx, sp.Currency, userID, chargeID, "draw failed: "+err.Error())
		h.finish(chargeID, stateFailed, "draw")
		telemetry.PayFailureTotal.WithLabelValues("draw").Inc()
		return fmt.Errorf("payment: drawing prize: %w", err)
	}

	plan := award.Plan{
		ChargeID:         chargeID,
		ProviderChargeID: sp.ProviderPaymentChargeID,
		AmountStars:      sp.TotalAmount,
		Currency:         sp.Currency,
		UserID:           userID,
		CaseID:           payload.CaseID,
		Nonce:            payload.Nonce,
		ResultItemID:     record.ResultItemID,
		RngRecord:        record,
		RngReceipt:       receipt,
	}

	if err := h.scheduler.Schedule(ctx, plan); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			h.revert(chargeID)
			return err
		}
		h.logger.Error("award scheduling failed for successful payment", "charge_id", chargeID, "error", err)
		h.refundIfXTR(ctx, sp.Currency, userID, chargeID, "award failed: "+err.Error())
		h.finish(chargeID, stateFailed, "award")
		telemetry.PayFailureTotal.WithLabelValues("award").Inc()
		return fmt.Errorf("payment: scheduling award: %w", err)
	}

	h.mu.Lock()
	h.journal[chargeID] = &entry{state: stateCompleted, plan: plan}
	h.mu.Unlock()
	telemetry.PaySuccessTotal.Inc()

	if h.receiptEnabled {
		text := fmt.Sprintf("Payment confirmed for case %q. Draw sealed under %s.", payload.CaseID, receipt.ServerSeedHash)
		if err := h.platform.SendMessage(ctx, chatID, text, false, nil); err != nil {
			h.logger.Warn("best-effort receipt send failed", "charge_id", chargeID, "error", err)
		}
	}
	return nil
}

// validate runs the successful-payment counterpart of precheckout's
// six-step check.
func (h *Handler) validate(sp platformclient.SuccessfulPayment, userID int64) (invoice.PaymentPayload, string, bool) {
	payload, err := invoice.Decode(sp.InvoicePayload)
	if err != nil {
		return invoice.PaymentPayload{}, "invalid_payload", false
	}
	if payload.UserID != userID {
		return invoice.PaymentPayload{}, "user_mismatch", false
	}
	if payload.Nonce == "" {
		return invoice.PaymentPayload{}, "nonce_blank", false
	}
	if payload.CaseID == "" {
		return invoice.PaymentPayload{}, "case_id_blank", false
	}
	cfg, found := h.catalog.Lookup(payload.CaseID)
	if !found {
		return invoice.PaymentPayload{}, "case_not_found", false
	}
	if sp.Currency != "XTR" {
		return invoice.PaymentPayload{}, "invalid_currency", false
	}
	if sp.TotalAmount != cfg.PriceStars {
		return invoice.PaymentPayload{}, "invalid_amount", false
	}
	return payload, "", true
}

func (h *Handler) refundIfXTR(ctx context.Context, currency string, userID int64, chargeID, reason string) {
	if currency != "XTR" || h.refunder == nil {
		return
	}
	if err := h.refunder.RefundStar(context.WithoutCancel(ctx), userID, chargeID, reason); err != nil {
		h.logger.Error("refund after payment failure failed", "charge_id", chargeID, "error", err)
		return
	}
	h.mu.Lock()
	if e, ok := h.journal[chargeID]; ok {
		e.state = stateRefunded
		e.reason = reason
	}
	h.mu.Unlock()
}

func (h *Handler) finish(chargeID string, s state, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.journal[chargeID]; ok && e.state != stateRefunded {
		e.state = s
		e.reason = reason
	}
}

// revert removes chargeID's in-progress entry so a retried delivery of the
// same update is not treated as a duplicate: cancellation during draw/award
// must allow retry.
func (h *Handler) revert(chargeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.journal, chargeID)
}
