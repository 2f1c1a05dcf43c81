package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/xela07ax/vitals/internal/domain"
)

// ResourceTracker копит статистику обслуженных ресурсов (заполняется HTTP middleware).
type ResourceTracker struct {
	slowThreshold time.Duration

	count      atomic.Int64
	totalBytes atomic.Int64
	slowCount  atomic.Int64
}

func NewResourceTracker(slowThreshold time.Duration) *ResourceTracker {
	return &ResourceTracker{slowThreshold: slowThreshold}
}

// Observe один обслуженный ресурс
func (t *ResourceTracker) Observe(bytes int64, elapsed time.Duration) {
	t.count.Add(1)
	if bytes > 0 {
		t.totalBytes.Add(bytes)
	}
	if t.slowThreshold > 0 && elapsed > t.slowThreshold {
		t.slowCount.Add(1)
	}
}

func (t *ResourceTracker) SampleResources() domain.ResourceStats {
	return domain.ResourceStats{
		Count:      t.count.Load(),
		TotalBytes: t.totalBytes.Load(),
		SlowCount:  t.slowCount.Load(),
	}
}
