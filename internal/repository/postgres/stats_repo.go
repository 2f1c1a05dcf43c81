package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/vitals/internal/domain"
)

// Stats сводка журнала: счетчики за последние 60 минут и почасовые отказы за сутки
func (r *JournalRepo) Stats(ctx context.Context) (*domain.JournalStats, error) {
	d := &domain.JournalStats{ByKind: make(map[string]int64)}

	// 1. Общие счетчики. recovery с succeeded=false: неудачная стратегия
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE kind = 'failure'),
			COUNT(*) FILTER (WHERE kind = 'recovery'),
			COUNT(*) FILTER (WHERE kind = 'recovery' AND payload->>'succeeded' = 'false')
		FROM monitor_events
		WHERE timestamp > NOW() - INTERVAL '60 minutes'`).Scan(
		&d.TotalEvents, &d.Failures, &d.Recoveries, &d.FailedRecovery)
	if err != nil {
		return nil, fmt.Errorf("postgres: journal totals: %w", err)
	}

	// 2. Разбивка по видам
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM monitor_events
		WHERE timestamp > NOW() - INTERVAL '60 minutes'
		GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("postgres: journal by kind: %w", err)
	}
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan by kind: %w", err)
		}
		d.ByKind[kind] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 3. Почасовые отказы
	rows, err = r.db.QueryContext(ctx, `
		SELECT date_trunc('hour', timestamp) AS h, COUNT(*)
		FROM monitor_events
		WHERE kind = 'failure' AND timestamp > NOW() - INTERVAL '24 hours'
		GROUP BY h ORDER BY h`)
	if err != nil {
		return nil, fmt.Errorf("postgres: hourly failures: %w", err)
	}
	defer rows.Close()

	d.HourlyFailures = []domain.ActivityPoint{}
	for rows.Next() {
		var h time.Time
		var p domain.ActivityPoint
		if err := rows.Scan(&h, &p.Count); err != nil {
			return nil, fmt.Errorf("postgres: scan hourly: %w", err)
		}
		p.Hour = h.UTC().Format("2006-01-02T15:00Z")
		d.HourlyFailures = append(d.HourlyFailures, p)
	}
	return d, rows.Err()
}
