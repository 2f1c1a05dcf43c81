package telemetry

import "github.com/xela07ax/vitals/internal/domain"

// EffectiveType класс соединения по порогам Network Information API.
// Нулевой downlink не учитывается (неизвестен).
func EffectiveType(rttMs, downlinkMbps float64) string {
	switch {
	case rttMs >= 2000 || (downlinkMbps > 0 && downlinkMbps < 0.05):
		return domain.EffectiveTypeSlow2G
	case rttMs >= 1400 || (downlinkMbps > 0 && downlinkMbps < 0.07):
		return domain.EffectiveType2G
	case rttMs >= 270 || (downlinkMbps > 0 && downlinkMbps < 0.7):
		return domain.EffectiveType3G
	default:
		return domain.EffectiveType4G
	}
}
