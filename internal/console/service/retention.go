package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xela07ax/sitevitals-console/internal/metrics"
	"go.uber.org/zap"
)

// RetentionStore — часть репозитория аудитов, нужная зачистке.
type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper раз в сутки удаляет аудиты старше N дней — безусловно,
// независимо от статуса. Брошенные pending-записи тоже уходят здесь:
// другого механизма их очистки нет.
type RetentionSweeper struct {
	store   RetentionStore
	cron    *cron.Cron
	metrics *metrics.Metrics
	logger  *zap.Logger

	maxAge   time.Duration
	schedule string
}

func NewRetentionSweeper(store RetentionStore, maxAgeDays int, schedule string, m *metrics.Metrics, logger *zap.Logger) *RetentionSweeper {
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if schedule == "" {
		schedule = "@daily"
	}
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	return &RetentionSweeper{
		store:    store,
		cron:     cron.New(),
		metrics:  m,
		logger:   logger.Named("retention"),
		maxAge:   time.Duration(maxAgeDays) * 24 * time.Hour,
		schedule: schedule,
	}
}

// Start регистрирует cron-задачу и запускает планировщик.
func (s *RetentionSweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("scheduled sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("retention: invalid schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("retention sweeper started",
		zap.String("schedule", s.schedule),
		zap.Duration("max_age", s.maxAge))
	return nil
}

// Stop останавливает планировщик, дожидаясь текущего прогона.
func (s *RetentionSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep — один прогон зачистки. Доступен и по ручному триггеру из админки.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.maxAge)

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.metrics.SweepDeleted.Add(float64(deleted))
	s.logger.Info("retention sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted))
	return deleted, nil
}
