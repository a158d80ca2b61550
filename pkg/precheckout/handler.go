// Package precheckout validates a pre-checkout query against the decoded
// invoice payload and the case catalog, then answers it exactly once.
package precheckout

import (
	"context"
	"log/slog"
	"time"

	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/antifraud"
	"github.com/wisbric/paygate/pkg/economy"
	"github.com/wisbric/paygate/pkg/invoice"
	"github.com/wisbric/paygate/pkg/platformclient"
	"github.com/wisbric/paygate/pkg/velocity"
)

// Gate is the subset of antifraud.Gate this handler calls. A nil Gate
// disables the velocity check: a pre-checkout query arrives over the
// platform's own transport, not a direct HTTP request, so no IP is ever
// available here (Event.IP is left blank for this event type).
type Gate interface {
	Check(ev antifraud.Event) antifraud.Verdict
}

// deadline bounds total handling time.
const deadline = 10 * time.Second

// rejectionMessage is the opaque message shown to the payer on any failure:
// the precise reason never leaves the log.
const rejectionMessage = "Payment rejected: invalid parameters."

// Platform is the subset of platformclient.Client this handler calls.
type Platform interface {
	AnswerPreCheckoutQuery(ctx context.Context, id string, ok bool, errorMessage string) error
}

// Handler validates and answers pre-checkout queries.
type Handler struct {
	catalog  economy.Catalog
	platform Platform
	gate     Gate
	logger   *slog.Logger
}

// New creates a Handler. gate may be nil to disable the velocity check.
func New(catalog economy.Catalog, platform Platform, gate Gate, logger *slog.Logger) *Handler {
	return &Handler{catalog: catalog, platform: platform, gate: gate, logger: logger}
}

// Handle runs the six validation steps and answers exactly once, within
// the 10s deadline.
func (h *Handler) Handle(ctx context.Context, query platformclient.PreCheckoutQuery) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if h.gate != nil {
		subjectID := query.From.ID
		verdict := h.gate.Check(antifraud.Event{
			Type:      velocity.EventPreCheckout,
			SubjectID: &subjectID,
			Path:      "precheckout",
		})
		if !verdict.Allowed {
			h.logger.Warn("pre-checkout blocked by antifraud", "query_id", query.ID, "reason", verdict.Reason)
			telemetry.PreCheckoutTotal.WithLabelValues("fail").Inc()
			return h.platform.AnswerPreCheckoutQuery(ctx, query.ID, false, rejectionMessage)
		}
	}

	if reason, ok := h.validate(query); !ok {
		h.logger.Warn("pre-checkout rejected", "query_id", query.ID, "reason", reason)
		telemetry.PreCheckoutTotal.WithLabelValues("fail").Inc()
		return h.platform.AnswerPreCheckoutQuery(ctx, query.ID, false, rejectionMessage)
	}

	telemetry.PreCheckoutTotal.WithLabelValues("ok").Inc()
	return h.platform.AnswerPreCheckoutQuery(ctx, query.ID, true, "")
}

// validate runs steps 1-6, short-circuiting on the first failure.
func (h *Handler) validate(query platformclient.PreCheckoutQuery) (reason string, ok bool) {
	payload, err := invoice.Decode(query.InvoicePayload)
	if err != nil {
		return "invalid_payload", false
	}
	if payload.UserID != query.From.ID {
		return "user_mismatch", false
	}
	if payload.Nonce == "" {
		return "nonce_blank", false
	}
	if payload.CaseID == "" {
		return "case_id_blank", false
	}
	cfg, found := h.catalog.Lookup(payload.CaseID)
	if !found {
		return "case_not_found", false
	}
	if query.Currency != "XTR" {
		return "invalid_currency", false
	}
	if query.TotalAmount != cfg.PriceStars {
		return "invalid_amount", false
	}
	return "", true
}
