package domain

// Settings — изменяемая оператором конфигурация, хранится в Postgres
// (таблица settings), а не в yaml: оператор меняет ее через админку
// без перезапуска сервиса.
type Settings struct {
	APIKey           string `json:"api_key"`
	CacheEnabled     bool   `json:"cache_enabled"`
	CacheTTLSeconds  int    `json:"cache_ttl_seconds"`
	RateLimitPerHour int    `json:"rate_limit_per_hour"`
}

// Допустимые значения TTL кэша (30 мин ... 24 ч).
var AllowedCacheTTL = map[int]bool{
	1800:  true,
	3600:  true,
	7200:  true,
	21600: true,
	86400: true,
}

const (
	DefaultCacheTTLSeconds  = 3600
	DefaultRateLimitPerHour = 5
)
