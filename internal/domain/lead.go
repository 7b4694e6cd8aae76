package domain

import "time"

// Lead — email, привязанный к конкретному аудиту. Запись append-only:
// никогда не изменяется и не удаляется кодом сервиса.
// Уникальность пары (audit_id, email) обеспечивает БД.
type Lead struct {
	ID        int64     `json:"id"`
	AuditID   string    `json:"audit_id"`
	Email     string    `json:"email"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
