package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/xela07ax/sitevitals-console/internal/actionlog"
	"github.com/xela07ax/sitevitals-console/internal/apiclient"
	"github.com/xela07ax/sitevitals-console/internal/domain"
	"github.com/xela07ax/sitevitals-console/internal/infra/auth"
)

// SettingsManager Описываем, что нам нужно от сервиса настроек
type SettingsManager interface {
	Get(ctx context.Context) (*domain.Settings, error)
	Update(ctx context.Context, settings *domain.Settings) error
	SetAPIKey(ctx context.Context, key string) error
}

// KeyProvisioner — операции с ключами на стороне удаленного сервиса.
type KeyProvisioner interface {
	ValidateAPIKey(ctx context.Context, candidateKey string) error
	GenerateAPIKey(ctx context.Context, keyName string, rateLimit, monthlyLimit int) (*apiclient.GeneratedKey, error)
	GetHealthStatus(ctx context.Context) (map[string]interface{}, error)
}

// SweepRunner — ручной запуск чистки устаревших аудитов.
type SweepRunner interface {
	Sweep(ctx context.Context) (int64, error)
}

// ActionStore — чтение журнала действий операторов.
type ActionStore interface {
	ListRecent(ctx context.Context, limit int) ([]actionlog.Event, error)
}

// Лимиты выпускаемого ключа на стороне провайдера.
const (
	provisionedRateLimit    = 120
	provisionedMonthlyLimit = 10000
)

type SettingsHandler struct {
	settings SettingsManager
	keys     KeyProvisioner
	sweeper  SweepRunner
	trail    ActionStore
	actions  *actionlog.Recorder
}

func NewSettingsHandler(settings SettingsManager, keys KeyProvisioner, sweeper SweepRunner, trail ActionStore, actions *actionlog.Recorder) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		keys:     keys,
		sweeper:  sweeper,
		trail:    trail,
		actions:  actions,
	}
}

// settingsResponse отдает настройки с замаскированным ключом:
// полный ключ наружу не возвращаем даже авторизованному оператору.
type settingsResponse struct {
	APIKeyMasked     string `json:"api_key_masked"`
	APIKeyConfigured bool   `json:"api_key_configured"`
	CacheEnabled     bool   `json:"cache_enabled"`
	CacheTTLSeconds  int    `json:"cache_ttl_seconds"`
	RateLimitPerHour int    `json:"rate_limit_per_hour"`
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		APIKeyMasked:     maskKey(settings.APIKey),
		APIKeyConfigured: settings.APIKey != "",
		CacheEnabled:     settings.CacheEnabled,
		CacheTTLSeconds:  settings.CacheTTLSeconds,
		RateLimitPerHour: settings.RateLimitPerHour,
	})
}

type updateSettingsRequest struct {
	CacheEnabled     *bool `json:"cache_enabled"`
	CacheTTLSeconds  *int  `json:"cache_ttl_seconds"`
	RateLimitPerHour *int  `json:"rate_limit_per_hour"`
}

// Update принимает частичное обновление: не присланные поля
// сохраняют текущие значения.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	current, err := h.settings.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if req.CacheEnabled != nil {
		current.CacheEnabled = *req.CacheEnabled
	}
	if req.CacheTTLSeconds != nil {
		current.CacheTTLSeconds = *req.CacheTTLSeconds
	}
	if req.RateLimitPerHour != nil {
		current.RateLimitPerHour = *req.RateLimitPerHour
	}

	if err := h.settings.Update(r.Context(), current); err != nil {
		writeError(w, err)
		return
	}

	h.actions.Record(actionlog.Event{
		ActorID: auth.UserID(r.Context()),
		Action:  actionlog.ActionSettingsUpdated,
		Detail: map[string]interface{}{
			"cache_enabled":       current.CacheEnabled,
			"cache_ttl_seconds":   current.CacheTTLSeconds,
			"rate_limit_per_hour": current.RateLimitPerHour,
		},
	})

	h.Get(w, r)
}

type validateKeyRequest struct {
	APIKey string `json:"api_key"`
}

// ValidateKey проверяет ключ-кандидат боевым вызовом к удаленному
// сервису и при успехе сохраняет его как рабочий.
func (h *SettingsHandler) ValidateKey(w http.ResponseWriter, r *http.Request) {
	var req validateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.keys.ValidateAPIKey(r.Context(), req.APIKey); err != nil {
		writeError(w, err)
		return
	}

	if err := h.settings.SetAPIKey(r.Context(), req.APIKey); err != nil {
		writeError(w, err)
		return
	}

	h.actions.Record(actionlog.Event{
		ActorID: auth.UserID(r.Context()),
		Action:  actionlog.ActionKeyValidated,
		Subject: maskKey(req.APIKey),
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

type generateKeyRequest struct {
	KeyName string `json:"key_name"`
}

// GenerateKey выпускает новый ключ через админский эндпоинт провайдера
// и сразу делает его рабочим ключом консоли. Полный ключ возвращается
// один раз, в ответе этого вызова.
func (h *SettingsHandler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	var req generateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.KeyName == "" {
		req.KeyName = "sitevitals-console"
	}

	generated, err := h.keys.GenerateAPIKey(r.Context(), req.KeyName, provisionedRateLimit, provisionedMonthlyLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.settings.SetAPIKey(r.Context(), generated.APIKey); err != nil {
		writeError(w, err)
		return
	}

	h.actions.Record(actionlog.Event{
		ActorID: auth.UserID(r.Context()),
		Action:  actionlog.ActionKeyGenerated,
		Subject: generated.KeyName,
		Detail: map[string]interface{}{
			"rate_limit":    generated.RateLimit,
			"monthly_limit": generated.MonthlyLimit,
		},
	})

	writeJSON(w, http.StatusOK, generated)
}

// RemoteHealth проксирует health-check удаленного сервиса аудитов.
func (h *SettingsHandler) RemoteHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.keys.GetHealthStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// TriggerSweep — внеплановый запуск ретенционной чистки.
func (h *SettingsHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	h.actions.Record(actionlog.Event{
		ActorID: auth.UserID(r.Context()),
		Action:  actionlog.ActionSweepTriggered,
		Detail:  map[string]interface{}{"deleted": deleted},
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

// ListActions отдает последние записи журнала действий.
func (h *SettingsHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.trail.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
