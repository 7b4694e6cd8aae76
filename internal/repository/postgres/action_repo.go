package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/sitevitals-console/internal/actionlog"
)

// ActionRepo — хранилище журнала действий операторов (append-only).
type ActionRepo struct {
	pool *pgxpool.Pool
}

func NewActionRepo(pool *pgxpool.Pool) *ActionRepo {
	return &ActionRepo{pool: pool}
}

// WriteBatch пишет пачку событий одним round-trip через pgx.Batch.
func (r *ActionRepo) WriteBatch(ctx context.Context, events []actionlog.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		detail, _ := json.Marshal(e.Detail)
		batch.Queue(
			`INSERT INTO admin_actions (id, actor_id, action, subject, detail, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.ActorID, e.Action, e.Subject, detail, e.Timestamp,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: action log batch insert failed: %w", err)
		}
	}
	return nil
}

// ListRecent — последние события для вкладки журнала в админке.
func (r *ActionRepo) ListRecent(ctx context.Context, limit int) ([]actionlog.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_id, action, subject, detail, created_at
		FROM admin_actions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list admin actions: %w", err)
	}
	defer rows.Close()

	events := make([]actionlog.Event, 0)
	for rows.Next() {
		var e actionlog.Event
		var detail []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Subject, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan admin action: %w", err)
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &e.Detail)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return events, nil
}
