package optimizer

import (
	"sync"
	"sync/atomic"

	"github.com/xela07ax/vitals/internal/domain"
)

// Класс соединения
const (
	ConnFast   = "fast"
	ConnMedium = "medium"
	ConnSlow   = "slow"
)

// defaultDeviceMemoryGB: класс памяти, когда телеметрии нет
const defaultDeviceMemoryGB = 4.0

// ConnectionClass: 4g -> fast; 3g и unknown -> medium; 2g и slow-2g -> slow
func ConnectionClass(n *domain.NetworkStats) string {
	if n == nil {
		return ConnMedium
	}
	switch n.EffectiveType {
	case domain.EffectiveType4G:
		return ConnFast
	case domain.EffectiveType2G, domain.EffectiveTypeSlow2G:
		return ConnSlow
	default:
		return ConnMedium
	}
}

// DeriveFlags флаги возможностей по классу сети и памяти устройства.
// OfflineBanner здесь не вычисляется, им управляет действие enableOfflineBanner.
func DeriveFlags(n *domain.NetworkStats, m *domain.MemoryStats) domain.FeatureFlags {
	class := ConnectionClass(n)
	slow := class == ConnSlow
	online := n == nil || n.Online

	memGB := m.DeviceMemoryGB()
	if memGB <= 0 {
		memGB = defaultDeviceMemoryGB
	}

	return domain.FeatureFlags{
		HighQualityAssets: class == ConnFast && memGB >= 4,
		BackgroundSync:    online && !slow,
		ReducedAnimations: slow || memGB < 4,
		LimitedCaching:    slow || memGB < 2,
	}
}

// Flags: текущие флаги. UI только читает.
type Flags struct {
	mu sync.Mutex // сериализует записи
	v  atomic.Pointer[domain.FeatureFlags]
}

func NewFlags() *Flags {
	f := &Flags{}
	initial := DeriveFlags(nil, nil)
	f.v.Store(&initial)
	return f
}

func (f *Flags) Get() domain.FeatureFlags {
	return *f.v.Load()
}

// Adapt пересчитывает флаги возможностей, сохраняя баннер
func (f *Flags) Adapt(n *domain.NetworkStats, m *domain.MemoryStats) domain.FeatureFlags {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := DeriveFlags(n, m)
	next.OfflineBanner = f.v.Load().OfflineBanner
	f.v.Store(&next)
	return next
}

// SetOfflineBanner true, если значение изменилось
func (f *Flags) SetOfflineBanner(on bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := *f.v.Load()
	if cur.OfflineBanner == on {
		return false
	}
	cur.OfflineBanner = on
	f.v.Store(&cur)
	return true
}
