package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/xela07ax/sitevitals-console/internal/domain"
	"go.uber.org/zap"
)

// LeadRepository описывает требования к хранилищу лидов
type LeadRepository interface {
	Insert(ctx context.Context, lead *domain.Lead) (bool, error)
	Exists(ctx context.Context, auditID, email string) (bool, error)
	ListByAudit(ctx context.Context, auditID string, limit int) ([]*domain.Lead, error)
}

// LeadService — сбор email против аудита и гейтинг доступа к результатам.
type LeadService struct {
	repo   LeadRepository
	logger *zap.Logger
}

func NewLeadService(repo LeadRepository, logger *zap.Logger) *LeadService {
	return &LeadService{
		repo:   repo,
		logger: logger.Named("lead-service"),
	}
}

// Submit фиксирует email для аудита. Повторная отправка той же пары
// (audit_id, email) — не ошибка: строка уже есть, дубль не создается.
func (s *LeadService) Submit(ctx context.Context, auditID, email, ip, userAgent string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", domain.ErrInvalidInput)
	}
	if auditID == "" {
		return fmt.Errorf("%w: audit id is required", domain.ErrInvalidInput)
	}

	// Наличие строки-зеркала не проверяем: удаленный запуск мог пройти
	// при упавшей локальной вставке, и лид по такому audit_id все равно
	// принимается.
	inserted, err := s.repo.Insert(ctx, &domain.Lead{
		AuditID:   auditID,
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
	})
	if err != nil {
		return err
	}

	if !inserted {
		s.logger.Debug("duplicate lead ignored",
			zap.String("audit_id", auditID),
			zap.String("email", email))
	}
	return nil
}

// CanViewResults отвечает, владеет ли email данным аудитом.
func (s *LeadService) CanViewResults(ctx context.Context, auditID, email string) (bool, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return false, nil
	}
	return s.repo.Exists(ctx, auditID, email)
}

// ListByAudit — лиды аудита для админки.
func (s *LeadService) ListByAudit(ctx context.Context, auditID string) ([]*domain.Lead, error) {
	return s.repo.ListByAudit(ctx, auditID, 100)
}
