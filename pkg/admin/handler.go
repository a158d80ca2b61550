// Package admin implements the admin surface: token-gated webhook
// lifecycle, antifraud IP management, and RNG commit/reveal endpoints,
// plus the unauthenticated public fairness-verification routes.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/paygate/internal/httpserver"
	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/fairness"
	"github.com/wisbric/paygate/pkg/ipguard"
	"github.com/wisbric/paygate/pkg/platformclient"
)

// Platform is the subset of platformclient.Client the webhook endpoints use.
type Platform interface {
	SetWebhook(ctx context.Context, webhookURL, secretToken string, allowedUpdates []string, maxConnections *int, dropPending *bool) error
	DeleteWebhook(ctx context.Context, dropPending bool) error
	GetWebhookInfo(ctx context.Context) (platformclient.WebhookInfo, error)
}

// IPGuard is the subset of ipguard.Store the antifraud endpoints use.
type IPGuard interface {
	MarkSuspicious(ip, reason string) ipguard.Entry
	Ban(ip string, ttlSeconds int64, reason string) ipguard.Entry
	Unban(ip string) bool
	ListRecent(limit int, sinceMs int64) []ipguard.Entry
	ListBanned(limit int) []ipguard.Entry
}

// Fairness is the subset of fairness.Service the RNG endpoints use.
type Fairness interface {
	EnsureTodayCommit() (fairness.CommitState, error)
	Reveal(day string) (fairness.CommitState, error)
	Verify(day, candidateServerSeedHex string, userID int64, nonce, caseID string) (fairness.VerifyResult, error)
}

// Handler provides the admin and public fairness HTTP surfaces.
type Handler struct {
	platform   Platform
	ipguard    IPGuard
	fairness   Fairness
	adminToken string
	logger     *slog.Logger
}

// New creates a Handler.
func New(platform Platform, ipg IPGuard, fair Fairness, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{platform: platform, ipguard: ipg, fairness: fair, adminToken: adminToken, logger: logger}
}

// Routes returns the token-gated admin router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Middleware(h.adminToken))

	r.Post("/telegram/webhook/set", h.handleWebhookSet)
	r.Post("/telegram/webhook/delete", h.handleWebhookDelete)
	r.Get("/telegram/webhook/info", h.handleWebhookInfo)

	r.Post("/antifraud/ip/mark-suspicious", h.handleMarkSuspicious)
	r.Post("/antifraud/ip/ban", h.handleBan)
	r.Post("/antifraud/ip/unban", h.handleUnban)
	r.Get("/antifraud/ip/list", h.handleListIPs)

	r.Post("/rng/commit-today", h.handleCommitToday)
	r.Post("/rng/reveal", h.handleReveal)
	return r
}

// FairnessRoutes returns the unauthenticated public fairness router.
func (h *Handler) FairnessRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/verify", h.handleVerify)
	r.Get("/today", h.handleToday)
	r.Get("/reveal/{day}", h.handlePublicReveal)
	return r
}

type webhookSetRequest struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secretToken"`
	AllowedUpdates     []string `json:"allowedUpdates,omitempty"`
	MaxConnections     *int     `json:"maxConnections,omitempty"`
	DropPendingUpdates *bool    `json:"dropPendingUpdates,omitempty"`
}

func (h *Handler) handleWebhookSet(w http.ResponseWriter, r *http.Request) {
	var req webhookSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.URL == "" || req.SecretToken == "" {
		httpserver.RespondError(w, r, http.StatusBadRequest, "url_or_secret_blank")
		return
	}
	if err := h.platform.SetWebhook(r.Context(), req.URL, req.SecretToken, req.AllowedUpdates, req.MaxConnections, req.DropPendingUpdates); err != nil {
		h.logger.Error("setting webhook failed", "error", err)
		httpserver.RespondError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type webhookDeleteRequest struct {
	DropPendingUpdates bool `json:"dropPendingUpdates"`
}

func (h *Handler) handleWebhookDelete(w http.ResponseWriter, r *http.Request) {
	var req webhookDeleteRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_body")
			return
		}
	}
	if err := h.platform.DeleteWebhook(r.Context(), req.DropPendingUpdates); err != nil {
		h.logger.Error("deleting webhook failed", "error", err)
		httpserver.RespondError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleWebhookInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.platform.GetWebhookInfo(r.Context())
	if err != nil {
		h.logger.Error("getting webhook info failed", "error", err)
		httpserver.RespondError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.Respond(w, http.StatusOK, info)
}

type ipRequest struct {
	IP         string `json:"ip"`
	Reason     string `json:"reason"`
	TTLSeconds int64  `json:"ttlSeconds"`
}

func (h *Handler) handleMarkSuspicious(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}
	httpserver.Respond(w, http.StatusOK, h.ipguard.MarkSuspicious(req.IP, req.Reason))
}

func (h *Handler) handleBan(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}
	entry := h.ipguard.Ban(req.IP, req.TTLSeconds, req.Reason)
	telemetry.SuspiciousIPBansTotal.Inc()
	httpserver.Respond(w, http.StatusOK, entry)
}

func (h *Handler) handleUnban(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"unbanned": h.ipguard.Unban(req.IP)})
}

func (h *Handler) handleListIPs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sinceMs, _ := strconv.ParseInt(r.URL.Query().Get("sinceMs"), 10, 64)

	switch r.URL.Query().Get("type") {
	case "", "recent":
		httpserver.Respond(w, http.StatusOK, h.ipguard.ListRecent(limit, sinceMs))
	case "banned":
		httpserver.Respond(w, http.StatusOK, h.ipguard.ListBanned(limit))
	default:
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_type")
	}
}

func (h *Handler) handleCommitToday(w http.ResponseWriter, r *http.Request) {
	c, err := h.fairness.EnsureTodayCommit()
	if err != nil {
		h.logger.Error("ensuring today's commit failed", "error", err)
		httpserver.RespondError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.Respond(w, http.StatusOK, c)
}

func (h *Handler) handleReveal(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		httpserver.RespondError(w, r, http.StatusBadRequest, "day_blank")
		return
	}
	c, err := h.fairness.Reveal(day)
	if err != nil {
		h.respondFairnessError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, c)
}

func (h *Handler) handlePublicReveal(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	c, err := h.fairness.Reveal(day)
	if err != nil {
		h.respondFairnessError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, c)
}

func (h *Handler) handleToday(w http.ResponseWriter, r *http.Request) {
	c, err := h.fairness.EnsureTodayCommit()
	if err != nil {
		h.logger.Error("ensuring today's commit failed", "error", err)
		httpserver.RespondError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{
		"day":            c.DayUTC,
		"serverSeedHash": c.ServerSeedHash,
	})
}

type verifyRequest struct {
	Day                    string `json:"day"`
	CandidateServerSeedHex string `json:"serverSeedHex"`
	UserID                 int64  `json:"userId"`
	Nonce                  string `json:"nonce"`
	CaseID                 string `json:"caseId"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.Day == "" || req.CandidateServerSeedHex == "" || req.Nonce == "" || req.CaseID == "" {
		httpserver.RespondError(w, r, http.StatusBadRequest, "missing_fields")
		return
	}
	result, err := h.fairness.Verify(req.Day, req.CandidateServerSeedHex, req.UserID, req.Nonce, req.CaseID)
	if err != nil {
		h.logger.Error("verify failed", "error", err)
		httpserver.RespondError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) respondFairnessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fairness.ErrCommitNotFound):
		httpserver.RespondError(w, r, http.StatusNotFound, "commit_not_found")
	case errors.Is(err, fairness.ErrDayNotEnded):
		httpserver.RespondError(w, r, http.StatusBadRequest, "day_not_ended")
	default:
		h.logger.Error("fairness operation failed", "error", err)
		httpserver.RespondError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
