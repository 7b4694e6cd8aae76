package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/sitevitals-console/internal/domain"
)

type LeadRepo struct {
	pool *pgxpool.Pool
}

func NewLeadRepo(pool *pgxpool.Pool) *LeadRepo {
	return &LeadRepo{pool: pool}
}

// Insert фиксирует email для аудита. Уникальность пары (audit_id, email)
// обеспечивает constraint в БД: повторная вставка молча игнорируется,
// возвращаем признак, была ли реально записана строка.
func (r *LeadRepo) Insert(ctx context.Context, lead *domain.Lead) (bool, error) {
	query := `
		INSERT INTO leads (audit_id, email, ip_address, user_agent)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (audit_id, email) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, lead.AuditID, lead.Email, lead.IPAddress, lead.UserAgent)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to insert lead: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists отвечает на вопрос гейтинга: оставлял ли этот email лид
// для данного аудита (и значит имеет право видеть результаты).
func (r *LeadRepo) Exists(ctx context.Context, auditID, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE audit_id = $1 AND email = $2)`,
		auditID, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: lead lookup failed: %w", err)
	}
	return exists, nil
}

// ListByAudit отдает лиды аудита для админки.
func (r *LeadRepo) ListByAudit(ctx context.Context, auditID string, limit int) ([]*domain.Lead, error) {
	query := `
		SELECT id, audit_id, email, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		FROM leads WHERE audit_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, auditID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]*domain.Lead, 0)
	for rows.Next() {
		var l domain.Lead
		if err := rows.Scan(&l.ID, &l.AuditID, &l.Email, &l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan lead: %w", err)
		}
		leads = append(leads, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return leads, nil
}
