package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/sitevitals-console/internal/domain"
	"github.com/xela07ax/sitevitals-console/internal/infra"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := infra.AuditAPIConfig{
		BaseURL:       srv.URL,
		AdminToken:    "admin-secret",
		Timeout:       5 * time.Second,
		HealthTimeout: 2 * time.Second,
		CBMaxRequests: 3,
		CBInterval:    time.Second,
		CBTimeout:     time.Second,
		OutboundRPS:   1000,
		OutboundBurst: 100,
	}
	return NewClient(cfg, StaticKey("rv_live_key"), zap.NewNop()), srv
}

func TestStartAudit_SendsBearerAndURL(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"audit_id": "aud-1"})
	}))

	resp, err := client.StartAudit(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "aud-1", resp.AuditID)
	assert.Equal(t, "Bearer rv_live_key", gotAuth)
	assert.Equal(t, "/api/v1/audit/start", gotPath)
	assert.Equal(t, "https://example.com", gotBody["url"])
}

func TestStartAudit_MissingAuditID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))

	_, err := client.StartAudit(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, domain.ErrInvalidResponse)
}

func TestStartAudit_EmptyKeyNotConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("remote must not be called without a key")
	}))
	t.Cleanup(srv.Close)

	cfg := infra.AuditAPIConfig{BaseURL: srv.URL, Timeout: time.Second, HealthTimeout: time.Second, OutboundRPS: 1000, OutboundBurst: 100}
	client := NewClient(cfg, StaticKey(""), zap.NewNop())

	_, err := client.StartAudit(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestStartAudit_RemoteErrorCarriesDetail(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]string{"detail": "monthly quota exceeded"})
	}))

	_, err := client.StartAudit(context.Background(), "https://example.com")
	require.Error(t, err)

	var rErr *domain.RemoteError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, http.StatusPaymentRequired, rErr.StatusCode)
	assert.Equal(t, "monthly quota exceeded", rErr.Message)
}

func TestStartAudit_UnreadableErrorBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html>boom</html>"))
	}))

	_, err := client.StartAudit(context.Background(), "https://example.com")

	var rErr *domain.RemoteError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, "API request failed", rErr.Message)
}

func TestGetAuditStatus_NormalizesInProgress(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "in_progress"})
	}))

	resp, err := client.GetAuditStatus(context.Background(), "aud-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnalyzing, resp.Status)
}

func TestGetAuditStatus_UnknownStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "exploded"})
	}))

	_, err := client.GetAuditStatus(context.Background(), "aud-1")
	assert.ErrorIs(t, err, domain.ErrInvalidResponse)
}

func TestGetAuditResults_FillsAuditID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/audit/results/aud-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"url":           "https://example.com",
			"overall_score": 73.5,
			"results":       map[string]interface{}{"checks": []string{}},
		})
	}))

	resp, err := client.GetAuditResults(context.Background(), "aud-1")
	require.NoError(t, err)
	assert.Equal(t, "aud-1", resp.AuditID)
	assert.Equal(t, 73.5, resp.OverallScore)
}

func TestValidateAPIKey_UsesCandidateKey(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.ValidateAPIKey(context.Background(), "candidate-key"))
	// Кандидат, а не сконфигурированный ключ
	assert.Equal(t, "Bearer candidate-key", gotAuth)
}

func TestValidateAPIKey_Empty(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	err := client.ValidateAPIKey(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGenerateAPIKey_UsesAdminToken(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/admin/api-keys", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"api_key":       "rv_live_new",
			"key_name":      "console",
			"rate_limit":    120,
			"monthly_limit": 10000,
		})
	}))

	key, err := client.GenerateAPIKey(context.Background(), "console", 120, 10000)
	require.NoError(t, err)
	assert.Equal(t, "rv_live_new", key.APIKey)
	assert.Equal(t, "Bearer admin-secret", gotAuth)
	assert.Equal(t, float64(120), gotBody["rate_limit"])
}

func TestGenerateAPIKey_NoAdminToken(t *testing.T) {
	cfg := infra.AuditAPIConfig{BaseURL: "http://localhost:1", Timeout: time.Second, HealthTimeout: time.Second, OutboundRPS: 1000, OutboundBurst: 100}
	client := NewClient(cfg, StaticKey("key"), zap.NewNop())

	_, err := client.GenerateAPIKey(context.Background(), "console", 120, 10000)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestGetHealthStatus_NoAuthHeader(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))

	health, err := client.GetHealthStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])
	assert.Empty(t, gotAuth)
}

func TestGetHealthStatus_Down(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.GetHealthStatus(context.Background())

	var rErr *domain.RemoteError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, http.StatusServiceUnavailable, rErr.StatusCode)
}

func TestValidateTargetURL(t *testing.T) {
	assert.NoError(t, ValidateTargetURL("https://example.com"))
	assert.NoError(t, ValidateTargetURL("http://example.com/path?q=1"))

	for _, raw := range []string{"", "example.com", "ftp://example.com", "https://"} {
		assert.ErrorIs(t, ValidateTargetURL(raw), domain.ErrInvalidInput, "url %q", raw)
	}
}
