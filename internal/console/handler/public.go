package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/sitevitals-console/internal/console/service"
	"github.com/xela07ax/sitevitals-console/internal/domain"
	"github.com/xela07ax/sitevitals-console/internal/infra/auth"
	"github.com/xela07ax/sitevitals-console/internal/metrics"
	"go.uber.org/zap"
)

// PublicLimiter — лимит анонимных запусков аудита по IP.
type PublicLimiter interface {
	Allow(ctx context.Context, ip string, limit int) (bool, error)
}

// LeadGate — сбор email и проверка владения аудитом.
type LeadGate interface {
	Submit(ctx context.Context, auditID, email, ip, userAgent string) error
	CanViewResults(ctx context.Context, auditID, email string) (bool, error)
}

// PublicHandler обслуживает анонимные формы (лендинг). Каждый POST
// защищен form-токеном и honeypot-полем, запуск аудита — еще и лимитом
// по IP.
type PublicHandler struct {
	audits   AuditCoordinator
	leads    LeadGate
	limiter  PublicLimiter
	settings *service.SettingsService
	tokens   *auth.FormTokenIssuer
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewPublicHandler(
	audits AuditCoordinator,
	leads LeadGate,
	limiter PublicLimiter,
	settings *service.SettingsService,
	tokens *auth.FormTokenIssuer,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PublicHandler {
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	return &PublicHandler{
		audits:   audits,
		leads:    leads,
		limiter:  limiter,
		settings: settings,
		tokens:   tokens,
		metrics:  m,
		logger:   logger.Named("public-api"),
	}
}

// FormToken выдает анти-CSRF токен для анонимных форм.
func (h *PublicHandler) FormToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"token": h.tokens.Issue()})
}

type publicStartRequest struct {
	URL   string `json:"url"`
	Email string `json:"email,omitempty"`
	// Honeypot: люди это поле не видят и не заполняют
	Website string `json:"website,omitempty"`
}

func (h *PublicHandler) StartAudit(w http.ResponseWriter, r *http.Request) {
	var req publicStartRequest
	if !h.acceptForm(w, r, &req) {
		return
	}

	ip := clientIP(r)

	settings, err := h.settings.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), ip, settings.RateLimitPerHour)
	if err != nil {
		h.logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
	}
	if !allowed {
		h.metrics.RateLimitRejections.Inc()
		w.Header().Set("Retry-After", "3600")
		writeError(w, domain.ErrRateLimited)
		return
	}

	var email *string
	if req.Email != "" {
		email = &req.Email
	}

	result, err := h.audits.Start(r.Context(), req.URL, email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type submitEmailRequest struct {
	AuditID string `json:"audit_id"`
	Email   string `json:"email"`
	Website string `json:"website,omitempty"` // honeypot
}

func (h *PublicHandler) SubmitEmail(w http.ResponseWriter, r *http.Request) {
	var req submitEmailRequest
	if !h.acceptForm(w, r, &req) {
		return
	}

	err := h.leads.Submit(r.Context(), req.AuditID, req.Email, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CheckStatus — публичный опрос статуса (браузер поллит каждые ~3с).
func (h *PublicHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.audits.CheckStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetResults отдает результаты только владельцу: email должен значиться
// лидом этого аудита.
func (h *PublicHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	auditID := chi.URLParam(r, "id")
	email := r.URL.Query().Get("email")

	ok, err := h.leads.CanViewResults(r.Context(), auditID, email)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, domain.ErrPermissionDenied)
		return
	}

	results, err := h.audits.GetResults(r.Context(), auditID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// acceptForm — общий входной контроль анонимных POST: разбор тела,
// проверка form-токена и honeypot. Боты получают generic-ответ без
// подробностей.
func (h *PublicHandler) acceptForm(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := h.tokens.Verify(r.Header.Get("X-Form-Token")); err != nil {
		h.logger.Warn("form token rejected", zap.Error(err))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}

	if hp, ok := dst.(interface{ honeypot() string }); ok && hp.honeypot() != "" {
		// Бот-трафик отбрасываем молча, без уточнения причины
		h.logger.Info("honeypot triggered", zap.String("ip", clientIP(r)))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func (r publicStartRequest) honeypot() string { return r.Website }
func (r submitEmailRequest) honeypot() string { return r.Website }

// clientIP — IP источника; chi middleware.RealIP уже разобрал X-Forwarded-For.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
