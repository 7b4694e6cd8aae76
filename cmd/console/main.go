package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/sitevitals-console/internal/actionlog"
	"github.com/xela07ax/sitevitals-console/internal/apiclient"
	"github.com/xela07ax/sitevitals-console/internal/cache"
	"github.com/xela07ax/sitevitals-console/internal/console/handler"
	"github.com/xela07ax/sitevitals-console/internal/console/server"
	"github.com/xela07ax/sitevitals-console/internal/console/service"
	"github.com/xela07ax/sitevitals-console/internal/infra"
	"github.com/xela07ax/sitevitals-console/internal/infra/auth"
	"github.com/xela07ax/sitevitals-console/internal/metrics"
	"github.com/xela07ax/sitevitals-console/internal/ratelimit"
	"github.com/xela07ax/sitevitals-console/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("console stopped with error", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Ресурсы: Postgres и Redis. Оба прогреваем с ретраями —
	// при старте в docker-compose зависимости могут подниматься дольше нас.
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	defer pool.Close()

	if err := warmup(ctx, "postgres", func(c context.Context) error { return pool.Ping(c) }); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := warmup(ctx, "redis", func(c context.Context) error { return rdb.Ping(c).Err() }); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}

	// 3. Ключи RS256 для операторских токенов
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return fmt.Errorf("private key: %w", err)
	}

	// 4. Метрики
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	// 5. Репозитории
	auditRepo := postgres.NewAuditRepo(pool)
	leadRepo := postgres.NewLeadRepo(pool)
	userRepo := postgres.NewUserRepo(pool)
	settingsRepo := postgres.NewSettingsRepo(pool)
	actionRepo := postgres.NewActionRepo(pool)

	// 6. Журнал действий операторов (пишется батчами, мимо request path)
	recorder := actionlog.NewRecorder(actionRepo, cfg.ActionLog.BufferSize, cfg.ActionLog.FlushInterval, logger)
	recorder.Start()
	defer recorder.Stop()

	// 7. Сервисы
	settingsService := service.NewSettingsService(settingsRepo, logger)

	// Рабочий API-ключ живет в настройках, сервис настроек и есть KeySource
	apiClient := apiclient.NewClient(cfg.AuditAPI, settingsService, logger)

	resultCache := cache.NewResultCache(rdb, logger)
	auditService := service.NewAuditService(apiClient, auditRepo, resultCache, settingsService, m, logger)
	leadService := service.NewLeadService(leadRepo, logger)

	validator := auth.NewBaseValidator(pubKey)
	authService := service.NewAuthService(userRepo, privKey, validator, cfg.Auth.TokenTTL)

	sweeper := service.NewRetentionSweeper(auditRepo, cfg.Retention.MaxAgeDays, cfg.Retention.Schedule, m, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("retention sweeper: %w", err)
	}
	defer sweeper.Stop()

	// 8. Публичный периметр: form-токены и лимит по IP
	formTokens := auth.NewFormTokenIssuer(cfg.Auth.FormTokenSecret, cfg.Auth.FormTokenTTL)
	ipLimiter := ratelimit.NewIPLimiter(ratelimit.NewRedisCounter(rdb))

	// 9. Обработчики и сервер
	authHandler := handler.NewAuthHandler(authService)
	auditHandler := handler.NewAuditHandler(auditService, recorder)
	leadHandler := handler.NewLeadHandler(leadService)
	settingsHandler := handler.NewSettingsHandler(settingsService, apiClient, sweeper, actionRepo, recorder)
	publicHandler := handler.NewPublicHandler(auditService, leadService, ipLimiter, settingsService, formTokens, m, logger)

	consoleServer := server.NewConsoleServer(
		cfg, logger, validator,
		authHandler, auditHandler, leadHandler, settingsHandler, publicHandler,
		registry,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// warmup пингует зависимость с экспоненциальным бэкоффом.
func warmup(ctx context.Context, name string, ping func(context.Context) error) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
	)
	return r.Do(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := ping(pingCtx); err != nil {
			return fmt.Errorf("%s ping: %w", name, err)
		}
		return nil
	})
}
