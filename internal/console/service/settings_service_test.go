package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/sitevitals-console/internal/domain"
)

type fakeSettingsRepo struct {
	values map[string]string
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{values: make(map[string]string)}
}

func (f *fakeSettingsRepo) GetAll(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSettingsRepo) Set(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func TestSettingsGet_DefaultsWhenEmpty(t *testing.T) {
	svc := NewSettingsService(newFakeSettingsRepo(), zap.NewNop())

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, settings.APIKey)
	assert.True(t, settings.CacheEnabled)
	assert.Equal(t, domain.DefaultCacheTTLSeconds, settings.CacheTTLSeconds)
	assert.Equal(t, domain.DefaultRateLimitPerHour, settings.RateLimitPerHour)
}

func TestSettingsGet_IgnoresDisallowedTTL(t *testing.T) {
	repo := newFakeSettingsRepo()
	repo.values["cache_ttl_seconds"] = "999" // нет в списке допустимых
	svc := NewSettingsService(repo, zap.NewNop())

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCacheTTLSeconds, settings.CacheTTLSeconds)
}

func TestSettingsUpdate_RejectsDisallowedTTL(t *testing.T) {
	svc := NewSettingsService(newFakeSettingsRepo(), zap.NewNop())

	err := svc.Update(context.Background(), &domain.Settings{
		CacheEnabled:     true,
		CacheTTLSeconds:  999,
		RateLimitPerHour: 5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsUpdate_RoundTrip(t *testing.T) {
	repo := newFakeSettingsRepo()
	svc := NewSettingsService(repo, zap.NewNop())

	require.NoError(t, svc.Update(context.Background(), &domain.Settings{
		APIKey:           "rv_live_abc",
		CacheEnabled:     false,
		CacheTTLSeconds:  7200,
		RateLimitPerHour: 10,
	}))

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rv_live_abc", settings.APIKey)
	assert.False(t, settings.CacheEnabled)
	assert.Equal(t, 7200, settings.CacheTTLSeconds)
	assert.Equal(t, 10, settings.RateLimitPerHour)
}

func TestSettingsAPIKey_KeySource(t *testing.T) {
	repo := newFakeSettingsRepo()
	svc := NewSettingsService(repo, zap.NewNop())

	require.NoError(t, svc.SetAPIKey(context.Background(), "rv_live_xyz"))

	key, err := svc.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rv_live_xyz", key)
}
