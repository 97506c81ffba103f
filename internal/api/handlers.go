package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/price-spread/internal/jobs"
	"github.com/maltedev/price-spread/internal/models"
	"github.com/maltedev/price-spread/internal/notify"
	"golang.org/x/time/rate"
)

// JobService is what the handlers need from the job manager.
type JobService interface {
	Submit(ctx context.Context, m models.Marketplace, query string) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	Messages(ctx context.Context, id string) ([]notify.Message, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handlers struct {
	jobs         JobService
	marketplaces []models.Marketplace
	limiter      *rate.Limiter
	checks       map[string]HealthCheck
	logger       *slog.Logger
}

func NewHandlers(svc JobService, marketplaces []models.Marketplace, limiter *rate.Limiter, checks map[string]HealthCheck, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:         svc,
		marketplaces: marketplaces,
		limiter:      limiter,
		checks:       checks,
		logger:       logger.With("component", "api"),
	}
}

type CreateSessionRequest struct {
	Query       string `json:"query"`
	Marketplace string `json:"marketplace"`
}

type CreateSessionResponse struct {
	SessionID string      `json:"session_id"`
	Status    jobs.Status `json:"status"`
	Message   string      `json:"message"`
}

// CreateSession queues a crawl session.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		h.respondError(w, http.StatusTooManyRequests, "too many sessions, retry later")
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		h.respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	m, err := models.ParseMarketplace(req.Marketplace)
	if err != nil || !h.supports(m) {
		h.respondError(w, http.StatusBadRequest, "unknown marketplace")
		return
	}

	job, err := h.jobs.Submit(r.Context(), m, req.Query)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "failed to queue session")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateSessionResponse{
		SessionID: job.ID,
		Status:    job.Status,
		Message:   "Session queued",
	})
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get session", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// GetSessionMessages returns the progress and delivery messages of a session.
func (h *Handlers) GetSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	if _, err := h.jobs.Get(r.Context(), id); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("failed to get session", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	msgs, err := h.jobs.Messages(r.Context(), id)
	if errors.Is(err, notify.ErrNoMessages) {
		msgs = []notify.Message{}
	} else if err != nil {
		h.logger.Error("failed to read messages", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read messages")
		return
	}

	h.respondJSON(w, http.StatusOK, msgs)
}

type MarketplaceInfo struct {
	ID   models.Marketplace `json:"id"`
	Name string             `json:"name"`
}

func (h *Handlers) ListMarketplaces(w http.ResponseWriter, r *http.Request) {
	out := make([]MarketplaceInfo, 0, len(h.marketplaces))
	for _, m := range h.marketplaces {
		out = append(out, MarketplaceInfo{ID: m, Name: m.DisplayName()})
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			deps[name] = err.Error()
			health["status"] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	if len(deps) > 0 {
		health["dependencies"] = deps
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) supports(m models.Marketplace) bool {
	for _, known := range h.marketplaces {
		if known == m {
			return true
		}
	}
	return false
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
