package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/sitevitals-console/internal/domain"
)

// LeadLister Описываем, что нам нужно от сервиса лидов
type LeadLister interface {
	ListByAudit(ctx context.Context, auditID string) ([]*domain.Lead, error)
}

type LeadHandler struct {
	service LeadLister
}

func NewLeadHandler(s LeadLister) *LeadHandler {
	return &LeadHandler{service: s}
}

// ListByAudit отдает собранные email-лиды по конкретному аудиту.
func (h *LeadHandler) ListByAudit(w http.ResponseWriter, r *http.Request) {
	leads, err := h.service.ListByAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}
