package domain

// Recommendation: рекомендация по исправлению, привязанная к метрике.
type Recommendation struct {
	Text   string `json:"text"`
	Metric string `json:"metric"`
}

// HealthScore производное значение 0..100. Никогда не мутируется, только заменяется.
type HealthScore struct {
	Value           int              `json:"value"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Texts возвращает тексты рекомендаций в порядке срабатывания.
func (h HealthScore) Texts() []string {
	out := make([]string, 0, len(h.Recommendations))
	for _, r := range h.Recommendations {
		out = append(out, r.Text)
	}
	return out
}

// Has проверяет, сработала ли рекомендация для метрики.
func (h HealthScore) Has(metric string) bool {
	for _, r := range h.Recommendations {
		if r.Metric == metric {
			return true
		}
	}
	return false
}
