package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xela07ax/sitevitals-console/internal/domain"
	"go.uber.org/zap"
)

// Ключи в таблице settings.
const (
	settingAPIKey       = "api_key"
	settingCacheEnabled = "cache_enabled"
	settingCacheTTL     = "cache_ttl_seconds"
	settingRateLimit    = "rate_limit_per_hour"
)

// SettingsRepository описывает требования к key/value хранилищу настроек
type SettingsRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

// SettingsService — единственная точка чтения изменяемой конфигурации.
// Реализует и apiclient.KeySource: API-клиент берет актуальный ключ
// отсюда на каждый вызов.
type SettingsService struct {
	repo   SettingsRepository
	logger *zap.Logger
}

func NewSettingsService(repo SettingsRepository, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		logger: logger.Named("settings-service"),
	}
}

// Get собирает Settings из key/value пар, подставляя дефолты
// для отсутствующих ключей.
func (s *SettingsService) Get(ctx context.Context) (*domain.Settings, error) {
	values, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: read failed: %w", err)
	}

	settings := &domain.Settings{
		APIKey:           values[settingAPIKey],
		CacheEnabled:     true,
		CacheTTLSeconds:  domain.DefaultCacheTTLSeconds,
		RateLimitPerHour: domain.DefaultRateLimitPerHour,
	}

	if v, ok := values[settingCacheEnabled]; ok {
		settings.CacheEnabled = v == "1" || v == "true"
	}
	if v, ok := values[settingCacheTTL]; ok {
		if ttl, err := strconv.Atoi(v); err == nil && domain.AllowedCacheTTL[ttl] {
			settings.CacheTTLSeconds = ttl
		}
	}
	if v, ok := values[settingRateLimit]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			settings.RateLimitPerHour = n
		}
	}

	return settings, nil
}

// Update валидирует и сохраняет настройки целиком.
func (s *SettingsService) Update(ctx context.Context, settings *domain.Settings) error {
	if !domain.AllowedCacheTTL[settings.CacheTTLSeconds] {
		return fmt.Errorf("%w: cache ttl %d is not allowed", domain.ErrInvalidInput, settings.CacheTTLSeconds)
	}
	if settings.RateLimitPerHour <= 0 {
		return fmt.Errorf("%w: rate limit must be positive", domain.ErrInvalidInput)
	}

	pairs := map[string]string{
		settingAPIKey:       settings.APIKey,
		settingCacheEnabled: strconv.FormatBool(settings.CacheEnabled),
		settingCacheTTL:     strconv.Itoa(settings.CacheTTLSeconds),
		settingRateLimit:    strconv.Itoa(settings.RateLimitPerHour),
	}
	for k, v := range pairs {
		if err := s.repo.Set(ctx, k, v); err != nil {
			return fmt.Errorf("settings: store %s failed: %w", k, err)
		}
	}

	s.logger.Info("settings updated",
		zap.Bool("cache_enabled", settings.CacheEnabled),
		zap.Int("cache_ttl", settings.CacheTTLSeconds),
		zap.Int("rate_limit", settings.RateLimitPerHour))
	return nil
}

// SetAPIKey сохраняет только ключ (после генерации или ручного ввода).
func (s *SettingsService) SetAPIKey(ctx context.Context, key string) error {
	if err := s.repo.Set(ctx, settingAPIKey, key); err != nil {
		return fmt.Errorf("settings: store api key failed: %w", err)
	}
	return nil
}

// APIKey реализует apiclient.KeySource.
func (s *SettingsService) APIKey(ctx context.Context) (string, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return settings.APIKey, nil
}
