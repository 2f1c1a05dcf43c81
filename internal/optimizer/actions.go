package optimizer

import (
	"context"
	"runtime/debug"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/surface"
)

// Action: идемпотентное корректирующее действие
type Action interface {
	Name() domain.ActionName
	Apply(ctx context.Context) error
}

type lazyifyImages struct{ reg *surface.Registry }

func (a lazyifyImages) Name() domain.ActionName { return domain.ActionLazyifyImages }

// Apply помечает только еще не ленивые изображения
func (a lazyifyImages) Apply(context.Context) error {
	a.reg.LazyifyImages()
	return nil
}

type pruneHidden struct{ reg *surface.Registry }

func (a pruneHidden) Name() domain.ActionName { return domain.ActionPruneHiddenDOM }

func (a pruneHidden) Apply(context.Context) error {
	a.reg.PruneHidden()
	return nil
}

type prefetchLikely struct{ p *Prefetcher }

func (a prefetchLikely) Name() domain.ActionName { return domain.ActionPrefetchLikelyRoutes }

// Apply подсказки носят рекомендательный характер, ошибок нет
func (a prefetchLikely) Apply(ctx context.Context) error {
	if a.p != nil {
		a.p.PrefetchLikely(ctx)
	}
	return nil
}

type releaseMemory struct{ free func() }

func (a releaseMemory) Name() domain.ActionName { return domain.ActionReleaseMemoryHint }

func (a releaseMemory) Apply(context.Context) error {
	a.free()
	return nil
}

type offlineBanner struct{ flags *Flags }

func (a offlineBanner) Name() domain.ActionName { return domain.ActionEnableOfflineBanner }

func (a offlineBanner) Apply(context.Context) error {
	a.flags.SetOfflineBanner(true)
	return nil
}

// DefaultActions стандартный набор действий над реестром поверхности
func DefaultActions(reg *surface.Registry, p *Prefetcher, flags *Flags) []Action {
	return []Action{
		lazyifyImages{reg: reg},
		pruneHidden{reg: reg},
		prefetchLikely{p: p},
		releaseMemory{free: debug.FreeOSMemory},
		offlineBanner{flags: flags},
	}
}
