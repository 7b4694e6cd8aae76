package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/sitevitals-console/internal/apiclient"
	"github.com/xela07ax/sitevitals-console/internal/domain"
)

// --- фейки зависимостей координатора ---

type fakeAPI struct {
	startResp   *apiclient.StartAuditResponse
	startErr    error
	startCalls  int
	statusResp  *apiclient.StatusResponse
	statusErr   error
	resultsResp *apiclient.AuditResults
	resultsErr  error
}

func (f *fakeAPI) StartAudit(_ context.Context, _ string) (*apiclient.StartAuditResponse, error) {
	f.startCalls++
	return f.startResp, f.startErr
}

func (f *fakeAPI) GetAuditStatus(_ context.Context, _ string) (*apiclient.StatusResponse, error) {
	return f.statusResp, f.statusErr
}

func (f *fakeAPI) GetAuditResults(_ context.Context, _ string) (*apiclient.AuditResults, error) {
	return f.resultsResp, f.resultsErr
}

type fakeRepo struct {
	byID       map[string]*domain.Audit
	createErr  error
	created    []string
	completed  []string
	failed     []string
	statusSet  map[string]domain.AuditStatus
	deletedURL string
	deleteErr  error
	previous   *domain.Audit
	byURL      map[string][]*domain.Audit
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:      make(map[string]*domain.Audit),
		statusSet: make(map[string]domain.AuditStatus),
	}
}

func (f *fakeRepo) Create(_ context.Context, auditID, url string, email *string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, auditID)
	f.byID[auditID] = &domain.Audit{AuditID: auditID, URL: url, Email: email, Status: domain.StatusPending}
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, auditID string) (*domain.Audit, error) {
	a, ok := f.byID[auditID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) List(_ context.Context, _, _ int) ([]*domain.Audit, error) { return nil, nil }

func (f *fakeRepo) GetByURL(_ context.Context, url string, limit int) ([]*domain.Audit, error) {
	audits := f.byURL[url]
	if len(audits) > limit {
		audits = audits[:limit]
	}
	return audits, nil
}

func (f *fakeRepo) Complete(_ context.Context, auditID string, _ *domain.AuditCompletion) error {
	f.completed = append(f.completed, auditID)
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, auditID string) error {
	f.failed = append(f.failed, auditID)
	return nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, auditID string, status domain.AuditStatus) error {
	f.statusSet[auditID] = status
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, auditID string) (string, error) {
	if f.deleteErr != nil {
		return "", f.deleteErr
	}
	return f.deletedURL, nil
}

func (f *fakeRepo) PreviousCompleted(_ context.Context, _, _ string) (*domain.Audit, error) {
	return f.previous, nil
}

func (f *fakeRepo) GetStatistics(_ context.Context) (*domain.Statistics, error) { return nil, nil }

type fakeCache struct {
	entries     map[string]*apiclient.AuditResults
	setURL      string
	setTTL      time.Duration
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*apiclient.AuditResults)}
}

func (f *fakeCache) Get(_ context.Context, url string) (*apiclient.AuditResults, error) {
	return f.entries[url], nil
}

func (f *fakeCache) Set(_ context.Context, url string, results *apiclient.AuditResults, ttl time.Duration) error {
	f.setURL = url
	f.setTTL = ttl
	f.entries[url] = results
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, url string) error {
	f.invalidated = append(f.invalidated, url)
	return nil
}

type fakePolicy struct {
	settings domain.Settings
}

func (f *fakePolicy) Get(_ context.Context) (*domain.Settings, error) {
	s := f.settings
	return &s, nil
}

func newService(api *fakeAPI, repo *fakeRepo, cache *fakeCache, policy *fakePolicy) *AuditService {
	return NewAuditService(api, repo, cache, policy, nil, zap.NewNop())
}

func enabledPolicy() *fakePolicy {
	return &fakePolicy{settings: domain.Settings{CacheEnabled: true, CacheTTLSeconds: 3600, RateLimitPerHour: 5}}
}

// --- Start ---

func TestStart_CacheShortCircuit(t *testing.T) {
	api := &fakeAPI{}
	repo := newFakeRepo()
	cache := newFakeCache()
	cache.entries["https://example.com"] = &apiclient.AuditResults{
		AuditID:      "aud-1",
		URL:          "https://example.com",
		OverallScore: 88,
	}

	svc := newService(api, repo, cache, enabledPolicy())

	result, err := svc.Start(context.Background(), "https://example.com", nil)
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Equal(t, "aud-1", result.AuditID)
	assert.Equal(t, domain.StatusCompleted, result.Status)
	require.NotNil(t, result.Results)

	// Удаленный сервис не трогали, локальная запись не создавалась
	assert.Zero(t, api.startCalls)
	assert.Empty(t, repo.created)
}

func TestStart_CacheDisabledAlwaysStartsRemote(t *testing.T) {
	api := &fakeAPI{startResp: &apiclient.StartAuditResponse{AuditID: "aud-2"}}
	repo := newFakeRepo()
	cache := newFakeCache()
	cache.entries["https://example.com"] = &apiclient.AuditResults{AuditID: "stale", URL: "https://example.com"}

	policy := &fakePolicy{settings: domain.Settings{CacheEnabled: false, CacheTTLSeconds: 3600, RateLimitPerHour: 5}}
	svc := newService(api, repo, cache, policy)

	result, err := svc.Start(context.Background(), "https://example.com", nil)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, "aud-2", result.AuditID)
	assert.Equal(t, 1, api.startCalls)
}

func TestStart_InvalidURL(t *testing.T) {
	svc := newService(&fakeAPI{}, newFakeRepo(), newFakeCache(), enabledPolicy())

	for _, raw := range []string{"", "ftp://example.com", "not a url", "https://"} {
		_, err := svc.Start(context.Background(), raw, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "url %q", raw)
	}
}

func TestStart_RemoteFailureNoLocalRecord(t *testing.T) {
	api := &fakeAPI{startErr: &domain.TransportError{Cause: errors.New("connection refused")}}
	repo := newFakeRepo()
	svc := newService(api, repo, newFakeCache(), enabledPolicy())

	_, err := svc.Start(context.Background(), "https://example.com", nil)
	require.Error(t, err)

	var tErr *domain.TransportError
	assert.ErrorAs(t, err, &tErr)
	assert.Empty(t, repo.created)
}

func TestStart_LocalInsertFailureIsPartialSuccess(t *testing.T) {
	api := &fakeAPI{startResp: &apiclient.StartAuditResponse{AuditID: "aud-3"}}
	repo := newFakeRepo()
	repo.createErr = errors.New("disk full")
	svc := newService(api, repo, newFakeCache(), enabledPolicy())

	result, err := svc.Start(context.Background(), "https://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "aud-3", result.AuditID)
	assert.NotEmpty(t, result.Warning)
}

// --- CheckStatus ---

func TestCheckStatus_UnknownAudit(t *testing.T) {
	svc := newService(&fakeAPI{}, newFakeRepo(), newFakeCache(), enabledPolicy())

	_, err := svc.CheckStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckStatus_LocalCompletedServedWithoutRemoteCall(t *testing.T) {
	repo := newFakeRepo()
	score := 91.0
	repo.byID["aud-4"] = &domain.Audit{
		AuditID:      "aud-4",
		URL:          "https://example.com",
		Status:       domain.StatusCompleted,
		OverallScore: &score,
		Results:      json.RawMessage(`{"checks":[]}`),
	}
	api := &fakeAPI{statusErr: errors.New("must not be called")}
	svc := newService(api, repo, newFakeCache(), enabledPolicy())

	status, err := svc.CheckStatus(context.Background(), "aud-4")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status.Status)
	require.NotNil(t, status.Results)
	assert.Equal(t, 91.0, status.Results.OverallScore)
}

func TestCheckStatus_RemoteCompletedFetchesResults(t *testing.T) {
	repo := newFakeRepo()
	repo.byID["aud-5"] = &domain.Audit{AuditID: "aud-5", URL: "https://example.com", Status: domain.StatusAnalyzing}

	api := &fakeAPI{
		statusResp: &apiclient.StatusResponse{Status: domain.StatusCompleted},
		resultsResp: &apiclient.AuditResults{
			AuditID:      "aud-5",
			URL:          "https://example.com",
			OverallScore: 77.5,
			Results:      json.RawMessage(`{"checks":[]}`),
		},
	}
	cache := newFakeCache()
	svc := newService(api, repo, cache, enabledPolicy())

	status, err := svc.CheckStatus(context.Background(), "aud-5")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status.Status)
	require.NotNil(t, status.Results)

	// Результаты легли в зеркало и в кэш с TTL из настроек
	assert.Equal(t, []string{"aud-5"}, repo.completed)
	assert.Equal(t, "https://example.com", cache.setURL)
	assert.Equal(t, time.Hour, cache.setTTL)
}

func TestCheckStatus_RemoteFailedIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	repo.byID["aud-6"] = &domain.Audit{AuditID: "aud-6", URL: "https://example.com", Status: domain.StatusAnalyzing}

	api := &fakeAPI{statusResp: &apiclient.StatusResponse{Status: domain.StatusFailed, Message: "crawl timeout"}}
	svc := newService(api, repo, newFakeCache(), enabledPolicy())

	status, err := svc.CheckStatus(context.Background(), "aud-6")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, status.Status)
	assert.Equal(t, "crawl timeout", status.Message)
	assert.Equal(t, []string{"aud-6"}, repo.failed)
}

func TestCheckStatus_NonTerminalMirrorsRemoteStatus(t *testing.T) {
	repo := newFakeRepo()
	repo.byID["aud-7"] = &domain.Audit{AuditID: "aud-7", URL: "https://example.com", Status: domain.StatusPending}

	api := &fakeAPI{statusResp: &apiclient.StatusResponse{Status: domain.StatusAnalyzing}}
	svc := newService(api, repo, newFakeCache(), enabledPolicy())

	status, err := svc.CheckStatus(context.Background(), "aud-7")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAnalyzing, status.Status)
	assert.Equal(t, domain.StatusAnalyzing, repo.statusSet["aud-7"])
}

// --- GetResults ---

func TestGetResults_LocalStoreFirst(t *testing.T) {
	repo := newFakeRepo()
	score := 64.0
	repo.byID["aud-8"] = &domain.Audit{
		AuditID:      "aud-8",
		URL:          "https://example.com",
		Status:       domain.StatusCompleted,
		OverallScore: &score,
		Results:      json.RawMessage(`{"checks":[1]}`),
		AISummary:    "weak TLS configuration",
	}
	api := &fakeAPI{resultsErr: errors.New("must not be called")}
	svc := newService(api, repo, newFakeCache(), enabledPolicy())

	results, err := svc.GetResults(context.Background(), "aud-8")
	require.NoError(t, err)
	assert.Equal(t, 64.0, results.OverallScore)
	assert.Equal(t, "weak TLS configuration", results.AISummary)
}

func TestGetResults_FetchesWhenLocalIncomplete(t *testing.T) {
	repo := newFakeRepo()
	repo.byID["aud-9"] = &domain.Audit{AuditID: "aud-9", URL: "https://example.com", Status: domain.StatusAnalyzing}

	api := &fakeAPI{resultsResp: &apiclient.AuditResults{
		AuditID:      "aud-9",
		URL:          "https://example.com",
		OverallScore: 55,
		Results:      json.RawMessage(`{}`),
	}}
	svc := newService(api, repo, newFakeCache(), enabledPolicy())

	results, err := svc.GetResults(context.Background(), "aud-9")
	require.NoError(t, err)
	assert.Equal(t, 55.0, results.OverallScore)
	assert.Equal(t, []string{"aud-9"}, repo.completed)
}

// --- Delete ---

func TestDelete_InvalidatesCacheForURL(t *testing.T) {
	repo := newFakeRepo()
	repo.deletedURL = "https://example.com"
	cache := newFakeCache()
	svc := newService(&fakeAPI{}, repo, cache, enabledPolicy())

	require.NoError(t, svc.Delete(context.Background(), "aud-10"))
	assert.Equal(t, []string{"https://example.com"}, cache.invalidated)
}

func TestDelete_NotFound(t *testing.T) {
	repo := newFakeRepo()
	repo.deleteErr = domain.ErrNotFound
	svc := newService(&fakeAPI{}, repo, newFakeCache(), enabledPolicy())

	err := svc.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- Comparison ---

func TestComparison_RequiresCompletedAudit(t *testing.T) {
	repo := newFakeRepo()
	repo.byID["aud-11"] = &domain.Audit{AuditID: "aud-11", URL: "https://example.com", Status: domain.StatusAnalyzing}
	svc := newService(&fakeAPI{}, repo, newFakeCache(), enabledPolicy())

	_, err := svc.Comparison(context.Background(), "aud-11")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestComparison_NoPreviousAudit(t *testing.T) {
	repo := newFakeRepo()
	score := 80.0
	repo.byID["aud-12"] = &domain.Audit{
		AuditID: "aud-12", URL: "https://example.com",
		Status: domain.StatusCompleted, OverallScore: &score,
	}
	svc := newService(&fakeAPI{}, repo, newFakeCache(), enabledPolicy())

	improvement, err := svc.Comparison(context.Background(), "aud-12")
	require.NoError(t, err)
	assert.Nil(t, improvement)
}

func TestComparison_WithPrevious(t *testing.T) {
	repo := newFakeRepo()
	cur, prev := 85.1, 72.4
	repo.byID["aud-13"] = &domain.Audit{
		AuditID: "aud-13", URL: "https://example.com",
		Status: domain.StatusCompleted, OverallScore: &cur,
	}
	repo.previous = &domain.Audit{
		AuditID: "aud-0", URL: "https://example.com",
		Status: domain.StatusCompleted, OverallScore: &prev,
	}
	svc := newService(&fakeAPI{}, repo, newFakeCache(), enabledPolicy())

	improvement, err := svc.Comparison(context.Background(), "aud-13")
	require.NoError(t, err)
	require.NotNil(t, improvement)
	assert.Equal(t, 13, improvement.Improvement)
	assert.Equal(t, 85, improvement.CurrentScore)
	assert.Equal(t, 72, improvement.PreviousScore)
	assert.True(t, improvement.IsImprovement)
}

func TestCompareScores_Rounding(t *testing.T) {
	cases := []struct {
		name     string
		current  float64
		previous float64
		want     int
	}{
		{"improvement", 85.1, 72.4, 13},
		{"decline", 60.2, 70.8, -11},
		{"rounds to equal", 74.5, 74.6, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CompareScores(tc.current, tc.previous)
			assert.Equal(t, tc.want, got.Improvement)
			assert.Equal(t, tc.want > 0, got.IsImprovement)
			assert.Equal(t, tc.want < 0, got.IsDecline)
		})
	}
}

func TestHistory_ReturnsAuditsForURL(t *testing.T) {
	repo := newFakeRepo()
	repo.byURL = map[string][]*domain.Audit{
		"https://example.com": {
			{AuditID: "aud-2", Status: domain.StatusCompleted},
			{AuditID: "aud-1", Status: domain.StatusFailed},
		},
	}
	svc := newService(&fakeAPI{}, repo, &fakeCache{}, enabledPolicy())

	audits, err := svc.History(context.Background(), "https://example.com", 10)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, "aud-2", audits[0].AuditID)
}

func TestHistory_InvalidURL(t *testing.T) {
	svc := newService(&fakeAPI{}, newFakeRepo(), &fakeCache{}, enabledPolicy())

	_, err := svc.History(context.Background(), "ftp://example.com", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHistory_LimitClamped(t *testing.T) {
	repo := newFakeRepo()
	repo.byURL = map[string][]*domain.Audit{"https://example.com": {{AuditID: "aud-1"}}}
	svc := newService(&fakeAPI{}, repo, &fakeCache{}, enabledPolicy())

	audits, err := svc.History(context.Background(), "https://example.com", -5)
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}
