package domain

import "time"

// Category: категория аудита
type Category string

const (
	CategoryComponents      Category = "components"
	CategoryFunctionality   Category = "functionality"
	CategoryPerformance     Category = "performance"
	CategoryNetworking      Category = "networking"
	CategoryUserInteraction Category = "userInteraction"
	CategoryDataFlow        Category = "dataFlow"
)

// Categories фиксированный порядок категорий в отчете.
var Categories = []Category{
	CategoryComponents,
	CategoryFunctionality,
	CategoryPerformance,
	CategoryNetworking,
	CategoryUserInteraction,
	CategoryDataFlow,
}

type CheckStatus string

const (
	StatusPass    CheckStatus = "pass"
	StatusPartial CheckStatus = "partial"
	StatusFail    CheckStatus = "fail"
)

// Score числовой вес статуса: pass=1, partial=0.5, fail=0.
func (s CheckStatus) Score() float64 {
	switch s {
	case StatusPass:
		return 1
	case StatusPartial:
		return 0.5
	default:
		return 0
	}
}

type CategoryResult struct {
	Name    Category    `json:"name"`
	Status  CheckStatus `json:"status"`
	Details string      `json:"details,omitempty"`
	Score   float64     `json:"score"`
}

// AuditReport неизменяем после формирования, вытесняется следующим прогоном.
type AuditReport struct {
	ID           string           `json:"id"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
	Categories   []CategoryResult `json:"categories"`
	OverallScore float64          `json:"overall_score"`
}

// Result ищет результат категории.
func (r AuditReport) Result(c Category) (CategoryResult, bool) {
	for _, res := range r.Categories {
		if res.Name == c {
			return res, true
		}
	}
	return CategoryResult{}, false
}

// Failing возвращает категории со статусом fail.
func (r AuditReport) Failing() []Category {
	var out []Category
	for _, res := range r.Categories {
		if res.Status == StatusFail {
			out = append(out, res.Name)
		}
	}
	return out
}
