package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/sitevitals-console/internal/infra"
)

// Window — окно лимитирования публичных запусков аудита.
const Window = time.Hour

// Counter — минимальный контракт счетчика с TTL. Продакшен-реализация —
// Redis; тесты подставляют in-memory.
type Counter interface {
	// Incr атомарно увеличивает счетчик ключа, выставляя ttl при первом
	// инкременте, и возвращает новое значение.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisCounter реализует Counter поверх INCR + EXPIRE NX.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// NX: срок жизни выставляется один раз, окно фиксированное
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ratelimit: incr failed: %w", err)
	}
	return incr.Val(), nil
}

// IPLimiter ограничивает количество анонимных запусков аудита с одного IP
// фиксированным окном в час. Лимит читается на каждый запрос — оператор
// меняет его в настройках без рестарта.
type IPLimiter struct {
	counter Counter
}

func NewIPLimiter(counter Counter) *IPLimiter {
	return &IPLimiter{counter: counter}
}

// Allow сообщает, влезает ли очередная попытка в лимит.
// При limit=5 пятая попытка проходит, шестая — нет.
func (l *IPLimiter) Allow(ctx context.Context, ip string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	n, err := l.counter.Incr(ctx, infra.RateLimitKey(ip), Window)
	if err != nil {
		// Отказ лимитера не должен закрывать сервис целиком:
		// пропускаем, сбой увидим в логах вызывающего
		return true, err
	}
	return n <= int64(limit), nil
}
