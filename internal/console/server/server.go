package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/sitevitals-console/internal/console/handler"
	"github.com/xela07ax/sitevitals-console/internal/infra"
	"github.com/xela07ax/sitevitals-console/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	// Реализуется через embedding BaseValidator в AuthService
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler     // /auth/token
	auditHandler    *handler.AuditHandler    // /v1/audits
	leadHandler     *handler.LeadHandler     // /v1/audits/{id}/leads
	settingsHandler *handler.SettingsHandler // /v1/settings, maintenance, actions
	publicHandler   *handler.PublicHandler   // /v1/public/* (анонимный периметр)

	metricsRegistry *prometheus.Registry
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	auditH *handler.AuditHandler,
	leadH *handler.LeadHandler,
	settingsH *handler.SettingsHandler,
	publicH *handler.PublicHandler,
	registry *prometheus.Registry,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		authValidator:   validator,
		authHandler:     authH,
		auditHandler:    auditH,
		leadHandler:     leadH,
		settingsHandler: settingsH,
		publicHandler:   publicH,
		metricsRegistry: registry,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// Анонимный периметр виджета: form-токен + honeypot + rate limit по IP
		r.Route("/v1/public", func(r chi.Router) {
			r.Get("/form-token", s.publicHandler.FormToken)
			r.Post("/audits", s.publicHandler.StartAudit)
			r.Route("/audits/{id}", func(r chi.Router) {
				r.Get("/status", s.publicHandler.CheckStatus)
				r.Get("/results", s.publicHandler.GetResults)
				r.Post("/email", s.publicHandler.SubmitEmail)
			})
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен + scope admin) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		r.Use(auth.RequireScope("admin"))

		// Аудиты: запуск, статус, результаты, удаление
		r.Route("/v1/audits", func(r chi.Router) {
			r.Get("/", s.auditHandler.List)
			r.Post("/", s.auditHandler.Start)
			r.Get("/statistics", s.auditHandler.Statistics)
			r.Get("/history", s.auditHandler.History)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.auditHandler.Get)
				r.Get("/status", s.auditHandler.CheckStatus)
				r.Get("/results", s.auditHandler.GetResults)
				r.Get("/comparison", s.auditHandler.Comparison)
				r.Get("/leads", s.leadHandler.ListByAudit)
				r.Delete("/", s.auditHandler.Delete)
			})
		})

		// Настройки и ключи
		r.Route("/v1/settings", func(r chi.Router) {
			r.Get("/", s.settingsHandler.Get)
			r.Put("/", s.settingsHandler.Update)
			r.Post("/validate-key", s.settingsHandler.ValidateKey)
			r.Post("/generate-key", s.settingsHandler.GenerateKey)
		})

		// Обслуживание и наблюдаемость
		r.Get("/v1/health/remote", s.settingsHandler.RemoteHealth)
		r.Post("/v1/maintenance/sweep", s.settingsHandler.TriggerSweep)
		r.Get("/v1/actions", s.settingsHandler.ListActions)
		r.Handle("/metrics", promhttp.HandlerFor(s.metricsRegistry, promhttp.HandlerOpts{}))
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
