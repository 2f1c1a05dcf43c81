package telemetry

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/xela07ax/vitals/internal/domain"
)

const defaultMeminfoPath = "/proc/meminfo"

// MeminfoSampler читает /proc/meminfo. На хостах без procfs поле memory отсутствует.
type MeminfoSampler struct {
	Path string
	// limitMB возвращает лимит рантайма в МБ, 0: не задан
	limitMB func() float64
}

func NewMeminfoSampler() *MeminfoSampler {
	return &MeminfoSampler{Path: defaultMeminfoPath, limitMB: goMemLimitMB}
}

func (s *MeminfoSampler) SampleMemory(_ context.Context) (domain.MemoryStats, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.MemoryStats{}, ErrUnavailable
		}
		return domain.MemoryStats{}, fmt.Errorf("read meminfo: %w", err)
	}

	st, err := ParseMeminfo(string(raw))
	if err != nil {
		return domain.MemoryStats{}, err
	}

	st.LimitMB = st.TotalMB
	if s.limitMB != nil {
		if l := s.limitMB(); l > 0 && l < st.TotalMB {
			st.LimitMB = l
		}
	}
	return st, nil
}

// ParseMeminfo used = MemTotal - MemAvailable. Без MemAvailable (старые ядра)
// считаем MemFree + Buffers + Cached.
func ParseMeminfo(procMeminfo string) (domain.MemoryStats, error) {
	scanner := bufio.NewScanner(strings.NewReader(procMeminfo))

	var total, free, available, buffers, cached int64
	var haveTotal, haveAvailable bool

	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}

		// значения в kB
		key := strings.TrimSuffix(parts[0], ":")
		val, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}

		switch key {
		case "MemTotal":
			total, haveTotal = val, true
		case "MemFree":
			free = val
		case "MemAvailable":
			available, haveAvailable = val, true
		case "Buffers":
			buffers = val
		case "Cached":
			cached = val
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.MemoryStats{}, fmt.Errorf("scan meminfo: %w", err)
	}
	if !haveTotal || total <= 0 {
		return domain.MemoryStats{}, fmt.Errorf("meminfo: MemTotal missing")
	}

	if !haveAvailable {
		available = free + buffers + cached
	}
	used := total - available
	if used < 0 {
		used = 0
	}

	totalMB := float64(total) / 1024
	usedMB := float64(used) / 1024
	return domain.MemoryStats{
		UsedMB:       usedMB,
		TotalMB:      totalMB,
		LimitMB:      totalMB,
		UsagePercent: usedMB / totalMB * 100,
	}, nil
}

// goMemLimitMB: GOMEMLIMIT, если задан (math.MaxInt64 означает "без лимита")
func goMemLimitMB() float64 {
	l := debug.SetMemoryLimit(-1)
	if l <= 0 || l == 1<<63-1 {
		return 0
	}
	return float64(l) / (1024 * 1024)
}
