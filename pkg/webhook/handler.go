// Package webhook is the webhook front door: validates the platform's
// secret-token header and content type, decodes the update payload, and
// hands each parsed update to the dispatcher.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wisbric/paygate/internal/httpserver"
	"github.com/wisbric/paygate/pkg/cryptoutil"
	"github.com/wisbric/paygate/pkg/platformclient"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// EnqueueFunc hands one update to the dispatcher (pkg/dispatch).
type EnqueueFunc func(update platformclient.Update) error

// Handler is the chi-mountable webhook front door.
type Handler struct {
	secretToken string
	enqueue     EnqueueFunc
	logger      *slog.Logger
}

// NewHandler creates a webhook Handler. secretToken is the configured
// PLATFORM_WEBHOOK_SECRET_TOKEN value.
func NewHandler(secretToken string, enqueue EnqueueFunc, logger *slog.Logger) *Handler {
	return &Handler{secretToken: secretToken, enqueue: enqueue, logger: logger}
}

// ServeHTTP runs the content-type gate, secret-token gate, size-limited
// body read, single-or-array decode, per-update enqueue (failures logged,
// never surfaced), and an unconditional 200 "ok".
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !isJSONContentType(ct) {
		httpserver.RespondError(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type")
		return
	}

	got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if !cryptoutil.ConstantTimeEqual([]byte(got), []byte(h.secretToken)) {
		httpserver.RespondError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_payload")
		return
	}
	if len(body) > maxBodyBytes {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_payload")
		return
	}

	updates, err := parseUpdates(body)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_payload")
		return
	}

	for _, update := range updates {
		if err := h.enqueue(update); err != nil {
			h.logger.Warn("webhook update enqueue failed", "update_id", update.UpdateID, "error", err)
		}
	}

	httpserver.Respond(w, http.StatusOK, "ok")
}

func isJSONContentType(ct string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "application/json")
}

// parseUpdates accepts either a single update object or a JSON array of
// updates.
func parseUpdates(body []byte) ([]platformclient.Update, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("webhook: empty body")
	}
	if trimmed[0] == '[' {
		var updates []platformclient.Update
		if err := json.Unmarshal(trimmed, &updates); err != nil {
			return nil, fmt.Errorf("webhook: invalid update array: %w", err)
		}
		return updates, nil
	}
	var single platformclient.Update
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("webhook: invalid update: %w", err)
	}
	return []platformclient.Update{single}, nil
}
