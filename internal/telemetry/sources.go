package telemetry

import (
	"context"

	"github.com/xela07ax/vitals/internal/domain"
)

// Источники полей снимка. nil-источник в Sources: поле всегда отсутствует.

type MemorySampler interface {
	SampleMemory(ctx context.Context) (domain.MemoryStats, error)
}

// LinkSampler отвечает только на вопрос "есть ли живой сетевой интерфейс"
type LinkSampler interface {
	Online(ctx context.Context) (bool, error)
}

type SurfaceSampler interface {
	Stats() domain.SurfaceStats
}

type ResourceSampler interface {
	SampleResources() domain.ResourceStats
}

type NavigationSampler interface {
	SampleNavigation(ctx context.Context) (domain.NavigationTiming, error)
}

type Prober interface {
	Probe(ctx context.Context) (domain.RoundTrip, error)
}

type Sources struct {
	Memory     MemorySampler
	Link       LinkSampler
	Surface    SurfaceSampler
	Resources  ResourceSampler
	Navigation NavigationSampler
	Probe      Prober
}
