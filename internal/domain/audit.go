package domain

import (
	"encoding/json"
	"time"
)

type AuditStatus string

const (
	StatusPending   AuditStatus = "pending"   // Принят удаленным сервисом, ждет обработки
	StatusAnalyzing AuditStatus = "analyzing" // Сканирование идет прямо сейчас
	StatusCompleted AuditStatus = "completed" // Терминальный: результаты получены и сохранены
	StatusFailed    AuditStatus = "failed"    // Терминальный: удаленный сервис не справился
)

// IsTerminal сообщает, разрешены ли дальнейшие переходы статуса.
// Инвариант жизненного цикла: из completed/failed выхода нет.
func (s AuditStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Audit — локальное зеркало записи аудита удаленного сервиса.
// Идентификатор выдает удаленный API, мы его только храним.
type Audit struct {
	ID        int64       `json:"-"`        // Внутренний PK (автоинкремент)
	AuditID   string      `json:"audit_id"` // Внешний идентификатор (источник правды — SaaS)
	URL       string      `json:"url"`
	Email     *string     `json:"email,omitempty"` // Кто запросил (опционально, лид-форма)
	Status    AuditStatus `json:"status"`

	// Оценки появляются ТОЛЬКО при status = completed
	OverallScore       *float64 `json:"overall_score,omitempty"`
	SecurityScore      *float64 `json:"security_score,omitempty"`
	PerformanceScore   *float64 `json:"performance_score,omitempty"`
	SEOScore           *float64 `json:"seo_score,omitempty"`
	AccessibilityScore *float64 `json:"accessibility_score,omitempty"`
	UXScore            *float64 `json:"ux_score,omitempty"`

	// Сырой payload результатов. Схема определяется удаленным сервисом,
	// мы не разбираем ее по полям — отдаем фронту как есть.
	Results   json.RawMessage `json:"results,omitempty"`
	AISummary string          `json:"ai_summary,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"` // NULL до завершения
}

// HasResults — завершенная запись с непустым payload может отдаваться
// из локального хранилища без обращения к удаленному API.
func (a *Audit) HasResults() bool {
	return a.Status == StatusCompleted && len(a.Results) > 0
}

// AuditCompletion — все, что записывается в запись аудита в момент
// перехода pending/analyzing -> completed. Единственный писатель — координатор.
type AuditCompletion struct {
	OverallScore       float64
	SecurityScore      float64
	PerformanceScore   float64
	SEOScore           float64
	AccessibilityScore float64
	UXScore            float64
	Results            json.RawMessage
	AISummary          string
}

// ScoreImprovement — расчетная дельта между двумя завершенными аудитами
// одного URL. Не хранится в БД, вычисляется при запросе сравнения.
type ScoreImprovement struct {
	Improvement   int  `json:"improvement"` // round(current) - round(previous)
	PreviousScore int  `json:"previous_score"`
	CurrentScore  int  `json:"current_score"`
	IsImprovement bool `json:"is_improvement"` // delta > 0
	IsDecline     bool `json:"is_decline"`     // delta < 0
}
