package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации консоли.
// Все потребители получают ее явно через конструкторы: никаких
// глобальных переменных и ambient-доступа к настройкам.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	AuditAPI  AuditAPIConfig  `mapstructure:"audit_api"`
	Retention RetentionConfig `mapstructure:"retention"`
	ActionLog ActionLogConfig `mapstructure:"action_log"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (кэш результатов и rate limit).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT операторов.
type AuthConfig struct {
	PublicKeyPath   string        `mapstructure:"public_key_path"`
	PrivateKeyPath  string        `mapstructure:"private_key_path"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	BcryptCost      int           `mapstructure:"bcrypt_cost"`
	FormTokenSecret string        `mapstructure:"form_token_secret"` // HMAC для анонимных форм
	FormTokenTTL    time.Duration `mapstructure:"form_token_ttl"`
	PublicKey       []byte
	PrivateKey      []byte
}

// AuditAPIConfig — куда и как ходить во внешний аудит-сервис.
// Сам API-ключ живет в настройках (Postgres), здесь только транспорт.
type AuditAPIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	AdminToken    string        `mapstructure:"admin_token"` // отдельный bearer для выпуска ключей
	Timeout       time.Duration `mapstructure:"timeout"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`

	// Настройки Circuit Breaker вокруг внешних вызовов
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`

	// Клиентский лимит исходящих запросов (rps, burst)
	OutboundRPS   float64 `mapstructure:"outbound_rps"`
	OutboundBurst int     `mapstructure:"outbound_burst"`
}

// RetentionConfig управляет ежедневной зачисткой старых аудитов.
type RetentionConfig struct {
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Schedule   string `mapstructure:"schedule"` // cron-выражение
}

// ActionLogConfig — буферизация журнала действий операторов.
type ActionLogConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// ENV перекрывает файл: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// PEM-ключи: либо напрямую из ENV (Docker/K8s), либо файлом по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if cfg.AuditAPI.BaseURL == "" {
		return nil, fmt.Errorf("audit_api.base_url is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 35*time.Second) // дольше таймаута внешнего вызова
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.form_token_ttl", 12*time.Hour)
	v.SetDefault("audit_api.timeout", 30*time.Second)
	v.SetDefault("audit_api.health_timeout", 10*time.Second)
	v.SetDefault("audit_api.cb_max_requests", 3)
	v.SetDefault("audit_api.cb_interval", 5*time.Second)
	v.SetDefault("audit_api.cb_timeout", 30*time.Second)
	v.SetDefault("audit_api.outbound_rps", 10)
	v.SetDefault("audit_api.outbound_burst", 5)
	v.SetDefault("retention.max_age_days", 30)
	v.SetDefault("retention.schedule", "@daily")
	v.SetDefault("action_log.buffer_size", 1000)
	v.SetDefault("action_log.flush_interval", 1*time.Second)
}

// loadKeyResource — универсальный хелпер: ENV имеет приоритет над файлом.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
