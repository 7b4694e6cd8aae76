package actionlog

import "time"

// Типы фиксируемых действий оператора.
const (
	ActionAuditStarted    = "audit.started"
	ActionAuditDeleted    = "audit.deleted"
	ActionSettingsUpdated = "settings.updated"
	ActionKeyGenerated    = "apikey.generated"
	ActionKeyValidated    = "apikey.validated"
	ActionSweepTriggered  = "retention.sweep"
)

// Event — одна строка журнала действий операторов консоли.
// Журнал append-only и пишется мимо основного пути запроса:
// его сбои никогда не валят админскую операцию.
type Event struct {
	ID        string                 `json:"id"`      // UUID события
	ActorID   string                 `json:"actor_id"` // Кто делал (оператор)
	Action    string                 `json:"action"`   // Что сделал
	Subject   string                 `json:"subject"`  // Над чем (audit_id, ключ настройки...)
	Detail    map[string]interface{} `json:"detail"`   // Произвольный контекст
	Timestamp time.Time              `json:"timestamp"`
}
