package engine

import (
	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/telemetry"
)

// HostSources реальные источники телеметрии хоста. Surface и Resources
// заполняет сам супервизор.
func HostSources(cfg infra.MonitorConfig, metrics *infra.Metrics, logger *zap.Logger) telemetry.Sources {
	return telemetry.Sources{
		Memory:     telemetry.NewMeminfoSampler(),
		Link:       telemetry.NewInterfaceLinkSampler(),
		Navigation: telemetry.NewTraceNavigationSampler(cfg.NavigationURL, cfg.ProbeTimeout),
		Probe: telemetry.NewHTTPProber(telemetry.ProbeConfig{
			URL:      cfg.ProbeURL,
			Timeout:  cfg.ProbeTimeout,
			MaxBytes: cfg.ProbeMaxBytes,
			Attempts: cfg.ProbeAttempts,
		}, metrics, logger),
	}
}
