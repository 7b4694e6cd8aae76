package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xela07ax/sitevitals-console/internal/apiclient"
	"github.com/xela07ax/sitevitals-console/internal/domain"
	"github.com/xela07ax/sitevitals-console/internal/metrics"
	"go.uber.org/zap"
)

// AuditAPI описывает требования координатора к клиенту удаленного сервиса
type AuditAPI interface {
	StartAudit(ctx context.Context, targetURL string) (*apiclient.StartAuditResponse, error)
	GetAuditStatus(ctx context.Context, auditID string) (*apiclient.StatusResponse, error)
	GetAuditResults(ctx context.Context, auditID string) (*apiclient.AuditResults, error)
}

// AuditRepository описывает требования к локальному зеркалу аудитов
type AuditRepository interface {
	Create(ctx context.Context, auditID, url string, email *string) error
	GetByID(ctx context.Context, auditID string) (*domain.Audit, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Audit, error)
	GetByURL(ctx context.Context, url string, limit int) ([]*domain.Audit, error)
	Complete(ctx context.Context, auditID string, c *domain.AuditCompletion) error
	MarkFailed(ctx context.Context, auditID string) error
	UpdateStatus(ctx context.Context, auditID string, status domain.AuditStatus) error
	Delete(ctx context.Context, auditID string) (string, error)
	PreviousCompleted(ctx context.Context, url, excludeAuditID string) (*domain.Audit, error)
	GetStatistics(ctx context.Context) (*domain.Statistics, error)
}

// ResultCache — кэш payload завершенных аудитов по URL
type ResultCache interface {
	Get(ctx context.Context, targetURL string) (*apiclient.AuditResults, error)
	Set(ctx context.Context, targetURL string, results *apiclient.AuditResults, ttl time.Duration) error
	Invalidate(ctx context.Context, targetURL string) error
}

// CachePolicy отдает актуальную политику кэширования (настройки оператора)
type CachePolicy interface {
	Get(ctx context.Context) (*domain.Settings, error)
}

// AuditService — координатор жизненного цикла аудита. Единственный
// компонент, которому разрешено менять статус записи аудита.
// Переходы: pending -> analyzing -> {completed, failed}; терминальные
// состояния окончательны.
type AuditService struct {
	api      AuditAPI
	repo     AuditRepository
	cache    ResultCache
	settings CachePolicy
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewAuditService(
	api AuditAPI,
	repo AuditRepository,
	cache ResultCache,
	settings CachePolicy,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AuditService {
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	return &AuditService{
		api:      api,
		repo:     repo,
		cache:    cache,
		settings: settings,
		metrics:  m,
		logger:   logger.Named("audit-service"),
	}
}

// StartResult — итог запуска аудита. Cached означает short-circuit:
// удаленный сервис не вызывался, новая запись не создавалась.
// Warning — явный сигнал частичного успеха (remote OK, локальная
// вставка упала): вызывающий получает идентификатор, но знает о
// расхождении зеркала.
type StartResult struct {
	AuditID string                  `json:"audit_id"`
	Status  domain.AuditStatus      `json:"status"`
	Cached  bool                    `json:"cached"`
	Results *apiclient.AuditResults `json:"results,omitempty"`
	Warning string                  `json:"warning,omitempty"`
}

// StatusResult — итог опроса статуса. Results заполняется только когда
// статус стал completed.
type StatusResult struct {
	AuditID string                  `json:"audit_id"`
	Status  domain.AuditStatus      `json:"status"`
	Message string                  `json:"message,omitempty"`
	Results *apiclient.AuditResults `json:"results,omitempty"`
}

// Start запускает аудит URL. Сначала кэш (если включен): свежий
// завершенный результат того же URL возвращается немедленно, без похода
// в API и без создания pending-записи — осознанный trade-off
// stale-but-fast. На промахе — удаленный старт и локальное зеркало.
//
// Дедупликации одновременных стартов одного URL нет: два запроса,
// проскочившие мимо кэша, создадут два независимых аудита.
func (s *AuditService) Start(ctx context.Context, targetURL string, email *string) (*StartResult, error) {
	if err := apiclient.ValidateTargetURL(targetURL); err != nil {
		s.countError(err)
		return nil, err
	}

	policy, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	if policy.CacheEnabled {
		cached, _ := s.cache.Get(ctx, targetURL)
		if cached != nil {
			s.metrics.CacheHits.Inc()
			s.logger.Debug("start served from cache", zap.String("url", targetURL))
			return &StartResult{
				AuditID: cached.AuditID,
				Status:  domain.StatusCompleted,
				Cached:  true,
				Results: cached,
			}, nil
		}
		s.metrics.CacheMisses.Inc()
	}

	started := time.Now()
	resp, err := s.api.StartAudit(ctx, targetURL)
	s.observeRemote("start", started, err)
	if err != nil {
		// Никакой частичной записи: операция падает целиком
		s.countError(err)
		return nil, err
	}
	s.metrics.AuditsStarted.Inc()

	result := &StartResult{AuditID: resp.AuditID, Status: domain.StatusPending}

	// Remote уже стартовал — сбой локального зеркала не отменяет успех,
	// но вызывающий должен его видеть, а не только лог
	if err := s.repo.Create(ctx, resp.AuditID, targetURL, email); err != nil {
		s.logger.Error("local mirror insert failed after successful remote start",
			zap.String("audit_id", resp.AuditID),
			zap.String("url", targetURL),
			zap.Error(err))
		result.Warning = "audit started remotely but the local record could not be saved"
	}

	return result, nil
}

// CheckStatus опрашивает удаленный сервис и сверяет локальное зеркало.
// Завершение подтягивает результаты и обновляет кэш; failed терминален.
// Интервал повторных опросов — забота вызывающего.
func (s *AuditService) CheckStatus(ctx context.Context, auditID string) (*StatusResult, error) {
	local, err := s.repo.GetByID(ctx, auditID)
	if err != nil {
		s.countError(err)
		return nil, err
	}

	// Терминальные записи не требуют похода в API
	if local.Status == domain.StatusFailed {
		return &StatusResult{AuditID: auditID, Status: domain.StatusFailed}, nil
	}
	if local.HasResults() {
		return &StatusResult{
			AuditID: auditID,
			Status:  domain.StatusCompleted,
			Results: resultsFromAudit(local),
		}, nil
	}

	started := time.Now()
	remote, err := s.api.GetAuditStatus(ctx, auditID)
	s.observeRemote("status", started, err)
	if err != nil {
		s.countError(err)
		return nil, err
	}

	switch remote.Status {
	case domain.StatusCompleted:
		results, err := s.fetchAndStore(ctx, auditID)
		if err != nil {
			s.countError(err)
			return nil, err
		}
		return &StatusResult{AuditID: auditID, Status: domain.StatusCompleted, Results: results}, nil

	case domain.StatusFailed:
		if err := s.repo.MarkFailed(ctx, auditID); err != nil {
			s.logger.Error("failed to persist failed status", zap.String("audit_id", auditID), zap.Error(err))
		}
		return &StatusResult{AuditID: auditID, Status: domain.StatusFailed, Message: remote.Message}, nil

	default:
		// pending/analyzing: фиксируем нетерминальный переход и ждем
		// следующего опроса
		if remote.Status != local.Status {
			if err := s.repo.UpdateStatus(ctx, auditID, remote.Status); err != nil {
				s.logger.Warn("status mirror update failed", zap.String("audit_id", auditID), zap.Error(err))
			}
		}
		return &StatusResult{AuditID: auditID, Status: remote.Status, Message: remote.Message}, nil
	}
}

// GetResults — явный двухуровневый lookup: локальное хранилище, затем
// удаленный сервис с записью в хранилище и кэш. После завершения аудита
// локальная запись авторитетна и повторные походы в API не нужны.
func (s *AuditService) GetResults(ctx context.Context, auditID string) (*apiclient.AuditResults, error) {
	local, err := s.repo.GetByID(ctx, auditID)
	if err != nil {
		s.countError(err)
		return nil, err
	}

	if local.HasResults() {
		return resultsFromAudit(local), nil
	}

	results, err := s.fetchAndStore(ctx, auditID)
	if err != nil {
		s.countError(err)
		return nil, err
	}
	return results, nil
}

// fetchAndStore — единственное место, где результаты перекладываются
// из API в хранилище и кэш.
func (s *AuditService) fetchAndStore(ctx context.Context, auditID string) (*apiclient.AuditResults, error) {
	started := time.Now()
	results, err := s.api.GetAuditResults(ctx, auditID)
	s.observeRemote("results", started, err)
	if err != nil {
		return nil, err
	}

	completion := &domain.AuditCompletion{
		OverallScore:       results.OverallScore,
		SecurityScore:      results.SecurityScore,
		PerformanceScore:   results.PerformanceScore,
		SEOScore:           results.SEOScore,
		AccessibilityScore: results.AccessibilityScore,
		UXScore:            results.UXScore,
		Results:            results.Results,
		AISummary:          results.AISummary,
	}
	if err := s.repo.Complete(ctx, auditID, completion); err != nil {
		// Результаты уже на руках: отдаем их, расхождение зеркала — в лог
		s.logger.Error("failed to persist completed audit",
			zap.String("audit_id", auditID), zap.Error(err))
	}

	policy, err := s.settings.Get(ctx)
	if err == nil && policy.CacheEnabled {
		ttl := time.Duration(policy.CacheTTLSeconds) * time.Second
		if err := s.cache.Set(ctx, results.URL, results, ttl); err != nil {
			s.logger.Warn("result cache refresh failed", zap.String("url", results.URL), zap.Error(err))
		}
	}

	if results.AuditID == "" {
		results.AuditID = auditID
	}
	return results, nil
}

// Delete удаляет запись и безусловно инвалидирует кэш ее URL — даже если
// другой аудит того же URL еще существует. Принятый риск в обмен на
// простоту.
func (s *AuditService) Delete(ctx context.Context, auditID string) error {
	url, err := s.repo.Delete(ctx, auditID)
	if err != nil {
		s.countError(err)
		return err
	}

	if err := s.cache.Invalidate(ctx, url); err != nil {
		s.logger.Warn("cache invalidation failed after delete",
			zap.String("audit_id", auditID),
			zap.String("url", url),
			zap.Error(err))
	}

	s.logger.Info("audit deleted", zap.String("audit_id", auditID), zap.String("url", url))
	return nil
}

// List отдает последние аудиты для таблицы в админке.
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]*domain.Audit, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// History — все локальные аудиты одного URL, свежие первыми. Питает
// вкладку истории проверок сайта в админке.
func (s *AuditService) History(ctx context.Context, targetURL string, limit int) ([]*domain.Audit, error) {
	if err := apiclient.ValidateTargetURL(targetURL); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.GetByURL(ctx, targetURL, limit)
}

// Get возвращает локальную запись аудита.
func (s *AuditService) Get(ctx context.Context, auditID string) (*domain.Audit, error) {
	return s.repo.GetByID(ctx, auditID)
}

// Statistics собирает агрегаты для дашборда.
func (s *AuditService) Statistics(ctx context.Context) (*domain.Statistics, error) {
	return s.repo.GetStatistics(ctx)
}

// Comparison вычисляет дельту с предыдущим завершенным аудитом того же
// URL. Возвращает nil без ошибки, если сравнивать не с чем.
func (s *AuditService) Comparison(ctx context.Context, auditID string) (*domain.ScoreImprovement, error) {
	current, err := s.repo.GetByID(ctx, auditID)
	if err != nil {
		s.countError(err)
		return nil, err
	}
	if current.Status != domain.StatusCompleted || current.OverallScore == nil {
		return nil, fmt.Errorf("%w: audit %s has no overall score yet", domain.ErrInvalidInput, auditID)
	}

	previous, err := s.repo.PreviousCompleted(ctx, current.URL, current.AuditID)
	if err != nil {
		return nil, err
	}
	if previous == nil || previous.OverallScore == nil {
		return nil, nil
	}

	return CompareScores(*current.OverallScore, *previous.OverallScore), nil
}

// CompareScores — целочисленная дельта round(current) - round(previous).
func CompareScores(current, previous float64) *domain.ScoreImprovement {
	cur := int(math.Round(current))
	prev := int(math.Round(previous))
	delta := cur - prev

	return &domain.ScoreImprovement{
		Improvement:   delta,
		PreviousScore: prev,
		CurrentScore:  cur,
		IsImprovement: delta > 0,
		IsDecline:     delta < 0,
	}
}

func resultsFromAudit(a *domain.Audit) *apiclient.AuditResults {
	r := &apiclient.AuditResults{
		AuditID:   a.AuditID,
		URL:       a.URL,
		Results:   a.Results,
		AISummary: a.AISummary,
	}
	if a.OverallScore != nil {
		r.OverallScore = *a.OverallScore
	}
	if a.SecurityScore != nil {
		r.SecurityScore = *a.SecurityScore
	}
	if a.PerformanceScore != nil {
		r.PerformanceScore = *a.PerformanceScore
	}
	if a.SEOScore != nil {
		r.SEOScore = *a.SEOScore
	}
	if a.AccessibilityScore != nil {
		r.AccessibilityScore = *a.AccessibilityScore
	}
	if a.UXScore != nil {
		r.UXScore = *a.UXScore
	}
	return r
}

// observeRemote пишет латентность внешнего вызова в гистограмму.
func (s *AuditService) observeRemote(operation string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.RemoteCallDuration.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}

// countError классифицирует ошибку по таксономии для метрик.
func (s *AuditService) countError(err error) {
	var typ string
	var rErr *domain.RemoteError
	var tErr *domain.TransportError

	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		typ = "not_configured"
	case errors.Is(err, domain.ErrInvalidInput):
		typ = "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		typ = "not_found"
	case errors.Is(err, domain.ErrInvalidResponse):
		typ = "invalid_response"
	case errors.As(err, &rErr):
		typ = "remote"
	case errors.As(err, &tErr):
		typ = "transport"
	default:
		typ = "internal"
	}
	s.metrics.ErrorTotal.WithLabelValues(typ).Inc()
}
