package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/sitevitals-console/internal/actionlog"
	"github.com/xela07ax/sitevitals-console/internal/apiclient"
	"github.com/xela07ax/sitevitals-console/internal/console/service"
	"github.com/xela07ax/sitevitals-console/internal/domain"
	"github.com/xela07ax/sitevitals-console/internal/infra/auth"
)

// AuditCoordinator Описываем, что нам нужно от координатора
type AuditCoordinator interface {
	Start(ctx context.Context, targetURL string, email *string) (*service.StartResult, error)
	CheckStatus(ctx context.Context, auditID string) (*service.StatusResult, error)
	GetResults(ctx context.Context, auditID string) (*apiclient.AuditResults, error)
	Delete(ctx context.Context, auditID string) error
	Get(ctx context.Context, auditID string) (*domain.Audit, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Audit, error)
	History(ctx context.Context, targetURL string, limit int) ([]*domain.Audit, error)
	Statistics(ctx context.Context) (*domain.Statistics, error)
	Comparison(ctx context.Context, auditID string) (*domain.ScoreImprovement, error)
}

type AuditHandler struct {
	service AuditCoordinator
	actions *actionlog.Recorder
}

func NewAuditHandler(s AuditCoordinator, actions *actionlog.Recorder) *AuditHandler {
	return &AuditHandler{service: s, actions: actions}
}

type startAuditRequest struct {
	URL   string `json:"url"`
	Email string `json:"email,omitempty"`
}

func (h *AuditHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var email *string
	if req.Email != "" {
		email = &req.Email
	}

	result, err := h.service.Start(r.Context(), req.URL, email)
	if err != nil {
		writeError(w, err)
		return
	}

	if !result.Cached {
		h.actions.Record(actionlog.Event{
			ActorID: auth.UserID(r.Context()),
			Action:  actionlog.ActionAuditStarted,
			Subject: result.AuditID,
			Detail:  map[string]interface{}{"url": req.URL},
		})
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	audits, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audits)
}

// History — аудиты одного URL (параметр url обязателен).
func (h *AuditHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	audits, err := h.service.History(r.Context(), r.URL.Query().Get("url"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audits)
}

func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	audit, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (h *AuditHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.CheckStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *AuditHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.GetResults(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *AuditHandler) Delete(w http.ResponseWriter, r *http.Request) {
	auditID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), auditID); err != nil {
		writeError(w, err)
		return
	}

	h.actions.Record(actionlog.Event{
		ActorID: auth.UserID(r.Context()),
		Action:  actionlog.ActionAuditDeleted,
		Subject: auditID,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuditHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Comparison отдает дельту с предыдущим аудитом того же URL.
// 204 — сравнивать не с чем (первый аудит этого URL).
func (h *AuditHandler) Comparison(w http.ResponseWriter, r *http.Request) {
	improvement, err := h.service.Comparison(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if improvement == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, improvement)
}
