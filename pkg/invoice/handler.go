package invoice

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wisbric/paygate/internal/httpserver"
	"github.com/wisbric/paygate/pkg/antifraud"
	"github.com/wisbric/paygate/pkg/miniapp"
	"github.com/wisbric/paygate/pkg/velocity"
)

// Gate is the subset of antifraud.Gate the invoice handler calls. A nil Gate
// disables the velocity/rate-limit check for this endpoint.
type Gate interface {
	Check(ev antifraud.Event) antifraud.Verdict
}

// requestBody is the mini-app's invoice request.
type requestBody struct {
	CaseID string `json:"caseId"`
}

// responseBody is what the mini-app receives back on success.
type responseBody struct {
	InvoiceLink string         `json:"invoiceLink"`
	Payload     PaymentPayload `json:"payload"`
}

// Handler serves POST /api/miniapp/invoice, gated by miniapp.Middleware.
type Handler struct {
	service    *Service
	gate       Gate
	trustProxy bool
}

// NewHandler wraps a Service as an http.Handler. gate may be nil to disable
// the antifraud check (e.g. in tests); trustProxy controls how the caller's
// IP is derived from the request.
func NewHandler(service *Service, gate Gate, trustProxy bool) *Handler {
	return &Handler{service: service, gate: gate, trustProxy: trustProxy}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := miniapp.FromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, r, http.StatusForbidden, "signature")
		return
	}

	if h.gate != nil {
		subjectID := identity.UserID
		verdict := h.gate.Check(antifraud.Event{
			Type:      velocity.EventInvoice,
			IP:        antifraud.ClientIP(r, h.trustProxy),
			SubjectID: &subjectID,
			Path:      r.URL.Path,
			UA:        r.UserAgent(),
		})
		if !verdict.Allowed {
			status := http.StatusTooManyRequests
			if verdict.Reason == "ip_banned" || verdict.Reason == "velocity_hard_block" {
				status = http.StatusForbidden
			}
			httpserver.RespondError(w, r, status, verdict.Reason)
			return
		}
	}

	var req requestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_case_id")
		return
	}
	if req.CaseID == "" {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_case_id")
		return
	}

	result, err := h.service.CreateInvoice(r.Context(), req.CaseID, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrCaseNotFound) {
			httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_case_id")
			return
		}
		httpserver.RespondError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	httpserver.Respond(w, http.StatusOK, responseBody{
		InvoiceLink: result.InvoiceLink,
		Payload:     result.Payload,
	})
}
