package domain

import "time"

// ActionName: имя идемпотентного корректирующего действия
type ActionName string

const (
	ActionLazyifyImages        ActionName = "lazyifyImages"
	ActionPruneHiddenDOM       ActionName = "pruneHiddenDOM"
	ActionPrefetchLikelyRoutes ActionName = "prefetchLikelyRoutes"
	ActionReleaseMemoryHint    ActionName = "releaseMemoryHint"
	ActionEnableOfflineBanner  ActionName = "enableOfflineBanner"
)

// OptimizationAction: состояние действия для UI и журнала.
type OptimizationAction struct {
	Name          ActionName `json:"name"`
	LastAppliedAt time.Time  `json:"last_applied_at"`
	LastTick      uint64     `json:"last_tick"`
	Applied       int        `json:"applied"`
}

// FeatureFlags читаются UI-слоем, пишет только оптимизатор.
type FeatureFlags struct {
	HighQualityAssets bool `json:"highQualityAssets"`
	BackgroundSync    bool `json:"backgroundSync"`
	ReducedAnimations bool `json:"reducedAnimations"`
	LimitedCaching    bool `json:"limitedCaching"`
	OfflineBanner     bool `json:"offlineBanner"`
}
