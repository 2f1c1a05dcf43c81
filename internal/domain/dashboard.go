package domain

// Dashboard: агрегат для виджетов UI (read-only).
type Dashboard struct {
	Snapshot MetricsSnapshot      `json:"snapshot"`
	Health   HealthScore          `json:"health"`
	Audit    *AuditReport         `json:"audit,omitempty"`
	Flags    FeatureFlags         `json:"flags"`
	Recovery FailureRecord        `json:"recovery"`
	Actions  []OptimizationAction `json:"actions"`
}
