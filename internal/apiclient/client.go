package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xela07ax/sitevitals-console/internal/domain"
	"github.com/xela07ax/sitevitals-console/internal/infra"
	"go.uber.org/zap"
)

// KeySource отдает актуальный API-ключ. Ключ меняется оператором в рантайме
// (настройки в Postgres), поэтому клиент не держит его в своем состоянии.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey — фиксированный ключ (тесты, проверка ключа-кандидата).
type StaticKey string

func (k StaticKey) APIKey(_ context.Context) (string, error) {
	return string(k), nil
}

// Client — единственная точка исходящей связи с аудит-сервисом.
type Client struct {
	baseURL    string
	adminToken string
	keys       KeySource

	httpClient   *http.Client // авторизованные вызовы, таймаут 30с
	healthClient *http.Client // health probe, таймаут 10с
	guard        *callGuard   // circuit breaker + клиентский лимитер
	logger       *zap.Logger
}

func NewClient(cfg infra.AuditAPIConfig, keys KeySource, logger *zap.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		adminToken:   cfg.AdminToken,
		keys:         keys,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		healthClient: &http.Client{Timeout: cfg.HealthTimeout},
		guard:        newCallGuard(cfg),
		logger:       logger.Named("audit-api"),
	}
}

// StartAuditResponse — ответ на запуск аудита.
type StartAuditResponse struct {
	AuditID string `json:"audit_id"`
}

// StatusResponse — текущий статус со стороны удаленного сервиса.
type StatusResponse struct {
	Status  domain.AuditStatus `json:"status"`
	Message string             `json:"message,omitempty"`
}

// AuditResults — полный payload завершенного аудита.
type AuditResults struct {
	AuditID            string          `json:"audit_id"`
	URL                string          `json:"url"`
	OverallScore       float64         `json:"overall_score"`
	SecurityScore      float64         `json:"security_score"`
	PerformanceScore   float64         `json:"performance_score"`
	SEOScore           float64         `json:"seo_score"`
	AccessibilityScore float64         `json:"accessibility_score"`
	UXScore            float64         `json:"ux_score"`
	Results            json.RawMessage `json:"results"`
	AISummary          string          `json:"ai_summary"`
}

// GeneratedKey — свежевыпущенный ключ с provisioning-эндпоинта.
type GeneratedKey struct {
	APIKey       string `json:"api_key"`
	KeyName      string `json:"key_name"`
	RateLimit    int    `json:"rate_limit"`
	MonthlyLimit int    `json:"monthly_limit"`
}

// ValidateTargetURL проверяет, что URL пригоден для аудита:
// абсолютный, схема http/https, хост непустой.
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q is not a valid http(s) url", domain.ErrInvalidInput, raw)
	}
	return nil
}

// StartAudit отправляет URL на аудит и возвращает выданный идентификатор.
func (c *Client) StartAudit(ctx context.Context, targetURL string) (*StartAuditResponse, error) {
	if err := ValidateTargetURL(targetURL); err != nil {
		return nil, err
	}

	var resp StartAuditResponse
	if err := c.request(ctx, http.MethodPost, "/api/v1/audit/start",
		map[string]string{"url": targetURL}, "", &resp); err != nil {
		return nil, err
	}

	if resp.AuditID == "" {
		return nil, fmt.Errorf("%w: start response without audit_id", domain.ErrInvalidResponse)
	}
	return &resp, nil
}

// GetAuditStatus опрашивает текущий статус аудита.
func (c *Client) GetAuditStatus(ctx context.Context, auditID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.request(ctx, http.MethodGet, "/api/v1/audit/status/"+url.PathEscape(auditID), nil, "", &resp); err != nil {
		return nil, err
	}

	// Удаленный сервис исторически отдает in_progress вместо analyzing
	if resp.Status == "in_progress" {
		resp.Status = domain.StatusAnalyzing
	}

	switch resp.Status {
	case domain.StatusPending, domain.StatusAnalyzing, domain.StatusCompleted, domain.StatusFailed:
		return &resp, nil
	default:
		return nil, fmt.Errorf("%w: unknown audit status %q", domain.ErrInvalidResponse, resp.Status)
	}
}

// GetAuditResults забирает полные результаты завершенного аудита.
// Персистентность и обновление кэша — обязанность вызывающего (координатора).
func (c *Client) GetAuditResults(ctx context.Context, auditID string) (*AuditResults, error) {
	var resp AuditResults
	if err := c.request(ctx, http.MethodGet, "/api/v1/audit/results/"+url.PathEscape(auditID), nil, "", &resp); err != nil {
		return nil, err
	}

	if resp.URL == "" {
		return nil, fmt.Errorf("%w: results response without url", domain.ErrInvalidResponse)
	}
	if resp.AuditID == "" {
		resp.AuditID = auditID
	}
	return &resp, nil
}

// ValidateAPIKey делает легкий авторизованный вызов ключом-кандидатом,
// НЕ трогая сконфигурированный ключ.
func (c *Client) ValidateAPIKey(ctx context.Context, candidateKey string) error {
	if candidateKey == "" {
		return fmt.Errorf("%w: empty api key", domain.ErrInvalidInput)
	}
	return c.request(ctx, http.MethodPost, "/api/v1/auth/validate-key", nil, candidateKey, nil)
}

// GetHealthStatus — неавторизованная проверка живости удаленного сервиса.
func (c *Client) GetHealthStatus(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	resp, err := c.healthClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.RemoteError{StatusCode: resp.StatusCode, Message: "API is not responding"}
	}

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	return health, nil
}

// GenerateAPIKey выпускает новый ключ через административный эндпоинт.
// Использует отдельный админский bearer из конфигурации, а не рабочий ключ.
func (c *Client) GenerateAPIKey(ctx context.Context, keyName string, rateLimit, monthlyLimit int) (*GeneratedKey, error) {
	if c.adminToken == "" {
		return nil, fmt.Errorf("%w: admin token is not set", domain.ErrNotConfigured)
	}

	var resp GeneratedKey
	err := c.requestWithPath(ctx, http.MethodPost, "/api/admin/api-keys", map[string]interface{}{
		"key_name":      keyName,
		"rate_limit":    rateLimit,
		"monthly_limit": monthlyLimit,
	}, c.adminToken, &resp)
	if err != nil {
		return nil, err
	}

	if resp.APIKey == "" {
		return nil, fmt.Errorf("%w: provisioning response without api_key", domain.ErrInvalidResponse)
	}
	return &resp, nil
}

// request — общий путь авторизованных вызовов v1. overrideKey позволяет
// выполнить запрос ключом-кандидатом (validate-key), не меняя состояние.
func (c *Client) request(ctx context.Context, method, path string, body interface{}, overrideKey string, out interface{}) error {
	key := overrideKey
	if key == "" {
		var err error
		key, err = c.keys.APIKey(ctx)
		if err != nil {
			return fmt.Errorf("resolve api key: %w", err)
		}
		if key == "" {
			return domain.ErrNotConfigured
		}
	}
	return c.requestWithPath(ctx, method, path, body, key, out)
}

func (c *Client) requestWithPath(ctx context.Context, method, path string, body interface{}, bearer string, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	data, err := c.guard.Do(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &domain.TransportError{Cause: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &domain.TransportError{Cause: err}
		}

		if resp.StatusCode >= 400 {
			return nil, remoteErrorFromBody(resp.StatusCode, raw)
		}
		return raw, nil
	})
	if err != nil {
		c.logger.Warn("remote call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	return nil
}

// remoteErrorFromBody вытаскивает человекочитаемое сообщение из тела ошибки.
// Бэкенд кладет его в поле detail; если тело нечитаемо — generic-сообщение.
func remoteErrorFromBody(status int, body []byte) *domain.RemoteError {
	var parsed struct {
		Detail string `json:"detail"`
	}
	msg := "API request failed"
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail != "" {
		msg = parsed.Detail
	}
	return &domain.RemoteError{StatusCode: status, Message: msg}
}
