package domain

import "time"

// Имена метрик, к которым привязываются рекомендации (deep-link в UI)
const (
	MetricMemory     = "memory"
	MetricNetwork    = "network"
	MetricNavigation = "navigation_timing"
	MetricSurface    = "dom_stats"
	MetricResources  = "resource_stats"
)

// Классы соединения (Network Information API)
const (
	EffectiveTypeUnknown = "unknown"
	EffectiveTypeSlow2G  = "slow-2g"
	EffectiveType2G      = "2g"
	EffectiveType3G      = "3g"
	EffectiveType4G      = "4g"
)

// MetricsSnapshot: неизменяемый срез телеметрии хоста.
// nil-поле означает "телеметрия недоступна", а не нулевое значение.
type MetricsSnapshot struct {
	Timestamp  time.Time         `json:"timestamp"`
	Memory     *MemoryStats      `json:"memory,omitempty"`
	Network    *NetworkStats     `json:"network,omitempty"`
	Surface    *SurfaceStats     `json:"dom_stats,omitempty"`
	Resources  *ResourceStats    `json:"resource_stats,omitempty"`
	Navigation *NavigationTiming `json:"navigation_timing,omitempty"`
	Probe      *RoundTrip        `json:"probe,omitempty"`
}

type MemoryStats struct {
	UsedMB       float64 `json:"used_mb"`
	TotalMB      float64 `json:"total_mb"`
	LimitMB      float64 `json:"limit_mb"`
	UsagePercent float64 `json:"usage_percent"`
}

// DeviceMemoryGB грубый класс памяти устройства (аналог navigator.deviceMemory).
func (m *MemoryStats) DeviceMemoryGB() float64 {
	if m == nil || m.TotalMB <= 0 {
		return 0
	}
	return m.TotalMB / 1024
}

type NetworkStats struct {
	Online        bool    `json:"online"`
	EffectiveType string  `json:"effective_type"`
	DownlinkMbps  float64 `json:"downlink_mbps"`
	RTTMs         float64 `json:"rtt_ms"`
}

// SurfaceStats: счетчики дерева элементов, зарегистрированного UI-слоем.
type SurfaceStats struct {
	ElementCount int `json:"element_count"`
	ScriptCount  int `json:"script_count"`
	ImageCount   int `json:"image_count"`
	FormCount    int `json:"form_count"`
}

type ResourceStats struct {
	Count      int64 `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
	SlowCount  int64 `json:"slow_count"`
}

type NavigationTiming struct {
	DNSMs             float64 `json:"dns_ms"`
	TCPMs             float64 `json:"tcp_ms"`
	RequestResponseMs float64 `json:"request_response_ms"`
	ProcessingMs      float64 `json:"dom_processing_ms"`
}

// TotalMs суммарная наблюдаемая задержка навигации.
func (n *NavigationTiming) TotalMs() float64 {
	if n == nil {
		return 0
	}
	return n.DNSMs + n.TCPMs + n.RequestResponseMs + n.ProcessingMs
}

// RoundTrip результат активного сетевого зонда
type RoundTrip struct {
	ElapsedMs      float64   `json:"elapsed_ms"`
	Bytes          int64     `json:"bytes"`
	ThroughputMbps float64   `json:"throughput_mbps"`
	At             time.Time `json:"at"`
}

// Clone возвращает глубокую копию: потребители получают только копию снимка.
func (s MetricsSnapshot) Clone() MetricsSnapshot {
	out := MetricsSnapshot{Timestamp: s.Timestamp}
	if s.Memory != nil {
		v := *s.Memory
		out.Memory = &v
	}
	if s.Network != nil {
		v := *s.Network
		out.Network = &v
	}
	if s.Surface != nil {
		v := *s.Surface
		out.Surface = &v
	}
	if s.Resources != nil {
		v := *s.Resources
		out.Resources = &v
	}
	if s.Navigation != nil {
		v := *s.Navigation
		out.Navigation = &v
	}
	if s.Probe != nil {
		v := *s.Probe
		out.Probe = &v
	}
	return out
}
