package journal

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindAuditReport  Kind = "audit_report"
	KindOptimization Kind = "optimization"
	KindFailure      Kind = "failure"
	KindRecovery     Kind = "recovery"
	KindHealth       Kind = "health"
)

type Event struct {
	ID        string                 `json:"id"`       // UUID события
	Kind      Kind                   `json:"kind"`     // Что произошло
	TraceID   string                 `json:"trace_id"` // Сквозной ID запроса, если есть
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent проставляет ID и время
func NewEvent(kind Kind, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
