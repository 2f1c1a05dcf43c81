package domain

import "time"

// FailureKind тип сигнала отказа
type FailureKind string

const (
	FailureUncaughtError      FailureKind = "uncaught_error"
	FailureUnhandledRejection FailureKind = "unhandled_rejection"
	FailureOffline            FailureKind = "offline"
)

type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// RecoveryState состояния супервизора восстановления
type RecoveryState string

const (
	RecoveryHealthy    RecoveryState = "healthy"
	RecoveryDegraded   RecoveryState = "degraded"
	RecoveryEscalating RecoveryState = "escalating"
)

// FailureRecord счетчик + кольцо последних отказов.
type FailureRecord struct {
	Count  int           `json:"count"`
	Max    int           `json:"max"`
	State  RecoveryState `json:"state"`
	Recent []Failure     `json:"recent"`
}

// RecoveryEvent фиксирует попытку стратегии восстановления.
type RecoveryEvent struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}
