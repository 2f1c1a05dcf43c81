package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/domain"
	"github.com/xela07ax/vitals/internal/engine"
	"github.com/xela07ax/vitals/internal/infra"
	"github.com/xela07ax/vitals/internal/store"
	"github.com/xela07ax/vitals/internal/surface"
)

var (
	outputFormat string
	surfacePath  string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a single audit of the local host and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := oneShotSupervisor()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		sup.Refresh(ctx)
		report := sup.RunAudit(ctx)
		return render(cmd.OutOrStdout(), outputFormat, report)
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Sample every telemetry field once and print the health score",
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := oneShotSupervisor()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		snap := sup.Refresh(ctx)
		return render(cmd.OutOrStdout(), outputFormat, struct {
			Snapshot domain.MetricsSnapshot `json:"snapshot"`
			Health   domain.HealthScore     `json:"health"`
		}{snap, sup.Health()})
	},
}

func init() {
	for _, c := range []*cobra.Command{auditCmd, scoreCmd} {
		c.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json or yaml")
		c.Flags().StringVar(&surfacePath, "surface", "", "JSON file with the UI element tree to audit against")
		rootCmd.AddCommand(c)
	}
}

// oneShotSupervisor собирает супервизор без фоновых контуров: только эфемерное хранилище,
// журнал в лог, логи в stderr только начиная с warn.
func oneShotSupervisor() (*engine.Supervisor, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger, _, err := infra.NewLogger(infra.LoggerConfig{Level: "warn", Format: "console"})
	if err != nil {
		return nil, err
	}

	metrics := infra.NewMetrics(nil)
	sup := engine.NewSupervisor(cfg, engine.Options{
		Sources: engine.HostSources(cfg.Monitor, metrics, logger),
		Stores:  []store.KV{store.NewMemoryKV()},
	}, metrics, logger.With(zap.String("mode", "oneshot")))

	if surfacePath != "" {
		data, err := os.ReadFile(surfacePath)
		if err != nil {
			return nil, fmt.Errorf("read surface: %w", err)
		}
		var els []surface.Element
		if err := json.Unmarshal(data, &els); err != nil {
			return nil, fmt.Errorf("parse surface %s: %w", surfacePath, err)
		}
		sup.ReplaceSurface(els)
	}
	return sup, nil
}
