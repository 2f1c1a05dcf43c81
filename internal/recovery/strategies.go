package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/zap"

	"github.com/xela07ax/vitals/internal/store"
)

// ClearStorage (стратегия 1) очищает кэши и все KV-хранилища
type ClearStorage struct {
	Stores []store.KV
}

func (s ClearStorage) Name() string { return "clear_storage" }

func (s ClearStorage) Attempt(ctx context.Context) error {
	var errs []error
	for _, kv := range s.Stores {
		if err := kv.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", kv.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// SoftReset (стратегия 2) сбрасывает корневой контейнер UI без перезапуска
type SoftReset struct {
	Reset func() error
}

func (s SoftReset) Name() string { return "soft_reset" }

func (s SoftReset) Attempt(context.Context) error {
	if s.Reset == nil {
		return errors.New("no reset target")
	}
	return s.Reset()
}

// HardRestart (стратегия 3) перезапускает процесс. Безотказна: если exec
// не удался (или выключен), процесс завершается и его поднимает менеджер процессов.
type HardRestart struct {
	Enabled bool // false: сразу forced exit
	Logger  *zap.Logger

	exec func(argv0 string, argv []string, envv []string) error
	exit func(code int)
}

func NewHardRestart(enabled bool, logger *zap.Logger) *HardRestart {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HardRestart{Enabled: enabled, Logger: logger, exec: syscall.Exec, exit: os.Exit}
}

func (s *HardRestart) Name() string { return "hard_restart" }

func (s *HardRestart) Attempt(context.Context) error {
	_ = s.Logger.Sync()

	if s.Enabled {
		path, err := os.Executable()
		if err == nil {
			s.Logger.Error("hard restart: re-executing process", zap.String("path", path))
			err = s.exec(path, os.Args, os.Environ())
		}
		// сюда попадаем только если exec не сработал
		s.Logger.Error("hard restart: exec failed, forcing exit", zap.Error(err))
	}

	s.exit(1)
	return nil
}
