package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/sitevitals-console/internal/apiclient"
	"github.com/xela07ax/sitevitals-console/internal/infra"
	"go.uber.org/zap"
)

// ResultCache — time-limited зеркало payload завершенного аудита, ключ по
// целевому URL. Жизненный цикл независим от записи в Postgres: обновляется
// при получении результатов, читается при повторном запуске аудита того же
// URL, явно инвалидируется при удалении аудита.
type ResultCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewResultCache(rdb *redis.Client, logger *zap.Logger) *ResultCache {
	return &ResultCache{
		rdb:    rdb,
		logger: logger.Named("result-cache"),
	}
}

// Get возвращает свежий закэшированный payload или nil при промахе.
// Сбой Redis трактуем как промах: кэш не должен ронять основной путь.
func (c *ResultCache) Get(ctx context.Context, targetURL string) (*apiclient.AuditResults, error) {
	raw, err := c.rdb.Get(ctx, infra.AuditCacheKey(targetURL)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		c.logger.Warn("cache read failed", zap.String("url", targetURL), zap.Error(err))
		return nil, nil
	}

	var results apiclient.AuditResults
	if err := json.Unmarshal(raw, &results); err != nil {
		// Битая запись — выбрасываем и идем мимо кэша
		c.rdb.Del(ctx, infra.AuditCacheKey(targetURL))
		return nil, nil
	}
	return &results, nil
}

// Set кладет payload с заданным TTL.
func (c *ResultCache) Set(ctx context.Context, targetURL string, results *apiclient.AuditResults, ttl time.Duration) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("cache: marshal results: %w", err)
	}

	if err := c.rdb.Set(ctx, infra.AuditCacheKey(targetURL), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: write failed: %w", err)
	}
	return nil
}

// Invalidate выбрасывает запись для URL. Вызывается при удалении аудита,
// даже если другой аудит того же URL еще существует — принятый риск.
func (c *ResultCache) Invalidate(ctx context.Context, targetURL string) error {
	if err := c.rdb.Del(ctx, infra.AuditCacheKey(targetURL)).Err(); err != nil {
		return fmt.Errorf("cache: invalidate failed: %w", err)
	}
	return nil
}
