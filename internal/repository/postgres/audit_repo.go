package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/sitevitals-console/internal/domain"
)

const auditColumns = `id, audit_id, url, email, status,
	overall_score, security_score, performance_score, seo_score,
	accessibility_score, ux_score, results, ai_summary,
	created_at, completed_at`

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Ping проверяет доступность базы при старте
func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Create заводит локальное зеркало только что запущенного аудита.
// Статус всегда pending: другие стартовые состояния невозможны.
func (r *AuditRepo) Create(ctx context.Context, auditID, url string, email *string) error {
	query := `INSERT INTO audits (audit_id, url, email, status) VALUES ($1, $2, $3, $4)`

	_, err := r.pool.Exec(ctx, query, auditID, url, email, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("postgres: failed to create audit: %w", err)
	}
	return nil
}

// GetByID возвращает запись по внешнему идентификатору.
func (r *AuditRepo) GetByID(ctx context.Context, auditID string) (*domain.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE audit_id = $1`

	a, err := scanAudit(r.pool.QueryRow(ctx, query, auditID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("audit %s: %w", auditID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to fetch audit: %w", err)
	}
	return a, nil
}

// List отдает последние аудиты для таблицы в админке.
func (r *AuditRepo) List(ctx context.Context, limit, offset int) ([]*domain.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list audits: %w", err)
	}
	defer rows.Close()

	return collectAudits(rows)
}

// GetByURL возвращает историю аудитов одного URL (свежие первыми).
func (r *AuditRepo) GetByURL(ctx context.Context, url string, limit int) ([]*domain.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE url = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, url, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch audits by url: %w", err)
	}
	defer rows.Close()

	return collectAudits(rows)
}

// Complete переводит запись в completed и записывает оценки и payload.
// Условие status NOT IN (...) охраняет инвариант: из терминального
// состояния выхода нет, повторная запись результатов невозможна.
func (r *AuditRepo) Complete(ctx context.Context, auditID string, c *domain.AuditCompletion) error {
	query := `
		UPDATE audits
		SET status = $1,
		    overall_score = $2,
		    security_score = $3,
		    performance_score = $4,
		    seo_score = $5,
		    accessibility_score = $6,
		    ux_score = $7,
		    results = $8,
		    ai_summary = $9,
		    completed_at = NOW()
		WHERE audit_id = $10 AND status NOT IN ('completed', 'failed')`

	tag, err := r.pool.Exec(ctx, query,
		domain.StatusCompleted,
		c.OverallScore, c.SecurityScore, c.PerformanceScore,
		c.SEOScore, c.AccessibilityScore, c.UXScore,
		c.Results, c.AISummary, auditID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to complete audit: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Либо записи нет, либо она уже терминальна — различаем
		if _, err := r.GetByID(ctx, auditID); err != nil {
			return err
		}
		return nil // уже completed/failed, повторная запись запрещена
	}
	return nil
}

// MarkFailed переводит запись в терминальный failed без результатов.
func (r *AuditRepo) MarkFailed(ctx context.Context, auditID string) error {
	query := `UPDATE audits SET status = $1, completed_at = NOW()
	          WHERE audit_id = $2 AND status NOT IN ('completed', 'failed')`

	tag, err := r.pool.Exec(ctx, query, domain.StatusFailed, auditID)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark audit failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, auditID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStatus фиксирует нетерминальный переход (pending -> analyzing).
func (r *AuditRepo) UpdateStatus(ctx context.Context, auditID string, status domain.AuditStatus) error {
	query := `UPDATE audits SET status = $1
	          WHERE audit_id = $2 AND status NOT IN ('completed', 'failed')`

	_, err := r.pool.Exec(ctx, query, status, auditID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update audit status: %w", err)
	}
	return nil
}

// Delete удаляет запись и возвращает ее URL — он нужен вызывающему
// для инвалидации кэша.
func (r *AuditRepo) Delete(ctx context.Context, auditID string) (string, error) {
	var url string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM audits WHERE audit_id = $1 RETURNING url`, auditID).Scan(&url)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("audit %s: %w", auditID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("postgres: failed to delete audit: %w", err)
	}
	return url, nil
}

// PreviousCompleted находит базу для сравнения оценок: самый свежий
// завершенный аудит того же URL, исключая текущий идентификатор.
// Возвращает nil без ошибки, если истории нет.
func (r *AuditRepo) PreviousCompleted(ctx context.Context, url, excludeAuditID string) (*domain.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits
	          WHERE url = $1 AND status = 'completed' AND audit_id != $2
	          ORDER BY completed_at DESC LIMIT 1`

	a, err := scanAudit(r.pool.QueryRow(ctx, query, url, excludeAuditID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to fetch previous audit: %w", err)
	}
	return a, nil
}

// DeleteOlderThan — ретенционная зачистка: записи старше cutoff удаляются
// безусловно, независимо от статуса.
func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audits WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: retention sweep failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetStatistics собирает агрегаты для дашборда за один вызов.
func (r *AuditRepo) GetStatistics(ctx context.Context) (*domain.Statistics, error) {
	stats := &domain.Statistics{
		StatusCounts: make(map[string]int64),
		DailyAudits:  make([]domain.DailyCount, 0),
	}

	// 1. Общее количество
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audits`).Scan(&stats.TotalAudits); err != nil {
		return nil, fmt.Errorf("postgres: total count failed: %w", err)
	}

	// 2. Распределение по статусам
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM audits GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("postgres: status counts failed: %w", err)
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan status count: %w", err)
		}
		stats.StatusCounts[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: status counts iteration: %w", err)
	}

	// 3. Аудиты по дням за последние 7 суток
	rows, err = r.pool.Query(ctx, `
		SELECT TO_CHAR(created_at::date, 'YYYY-MM-DD'), COUNT(*)
		FROM audits
		WHERE created_at >= NOW() - INTERVAL '7 days'
		GROUP BY created_at::date
		ORDER BY 1 ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: daily counts failed: %w", err)
	}
	for rows.Next() {
		var d domain.DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan daily count: %w", err)
		}
		stats.DailyAudits = append(stats.DailyAudits, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: daily counts iteration: %w", err)
	}

	// 4. Средние оценки только по завершенным
	err = r.pool.QueryRow(ctx, `
		SELECT AVG(overall_score), AVG(security_score), AVG(performance_score),
		       AVG(seo_score), AVG(accessibility_score), AVG(ux_score)
		FROM audits WHERE status = 'completed'`).Scan(
		&stats.Averages.Overall, &stats.Averages.Security, &stats.Averages.Performance,
		&stats.Averages.SEO, &stats.Averages.Accessibility, &stats.Averages.UX,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: score averages failed: %w", err)
	}

	return stats, nil
}

func scanAudit(row pgx.Row) (*domain.Audit, error) {
	var a domain.Audit
	var aiSummary sql.NullString // Используем для обработки NULL из БД

	err := row.Scan(
		&a.ID, &a.AuditID, &a.URL, &a.Email, &a.Status,
		&a.OverallScore, &a.SecurityScore, &a.PerformanceScore,
		&a.SEOScore, &a.AccessibilityScore, &a.UXScore,
		&a.Results, &aiSummary,
		&a.CreatedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if aiSummary.Valid {
		a.AISummary = aiSummary.String
	}
	return &a, nil
}

func collectAudits(rows pgx.Rows) ([]*domain.Audit, error) {
	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Audit, 0)
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
