package infra

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "sitevitals"
)

// Ключи кэша и лимитера.
const (
	// RedisKeyAuditCachePrefix — кэш завершенных результатов, ключ по md5 от URL.
	RedisKeyAuditCachePrefix = RedisNamespace + ":audit:"
	// RedisKeyRateLimitPrefix — фиксированное окно попыток запуска аудита по IP.
	RedisKeyRateLimitPrefix = RedisNamespace + ":rate:"
)

// AuditCacheKey строит ключ кэша результатов для целевого URL.
// Хэшируем, чтобы не тащить произвольные URL в пространство ключей.
func AuditCacheKey(url string) string {
	sum := md5.Sum([]byte(url))
	return RedisKeyAuditCachePrefix + hex.EncodeToString(sum[:])
}

// RateLimitKey строит ключ счетчика попыток для IP источника.
func RateLimitKey(ip string) string {
	sum := md5.Sum([]byte(ip))
	return fmt.Sprintf("%s%s", RedisKeyRateLimitPrefix, hex.EncodeToString(sum[:]))
}
