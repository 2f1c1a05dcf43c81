package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/vitals/internal/journal"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS monitor_events (
	id        UUID PRIMARY KEY,
	kind      TEXT NOT NULL,
	trace_id  TEXT NOT NULL DEFAULT '',
	payload   JSONB,
	timestamp TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS monitor_events_kind_ts ON monitor_events (kind, timestamp DESC);
CREATE TABLE IF NOT EXISTS monitor_operators (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	scopes        JSONB NOT NULL DEFAULT '{}'
);`

type JournalRepo struct {
	db *sql.DB
}

// NewJournalRepo открывает пул. Доступность базы проверяется через Ping.
func NewJournalRepo(connString string, maxConns int) (*JournalRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 15
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &JournalRepo{db: db}, nil
}

func (r *JournalRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// EnsureSchema создает таблицу журнала, если ее нет
func (r *JournalRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, journalSchema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// WriteBatch пакетная вставка одним запросом
func (r *JournalRepo) WriteBatch(ctx context.Context, events []journal.Event) error {
	if len(events) == 0 {
		return nil
	}

	const numFields = 5
	var sb strings.Builder
	vals := make([]interface{}, 0, len(events)*numFields)

	for i, e := range events {
		p := i * numFields
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4, p+5)

		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("postgres: marshal payload %s: %w", e.ID, err)
		}
		vals = append(vals, e.ID, string(e.Kind), e.TraceID, payload, e.Timestamp)
	}

	query := "INSERT INTO monitor_events (id, kind, trace_id, payload, timestamp) VALUES " +
		sb.String() + " ON CONFLICT (id) DO NOTHING"

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write journal batch: %w", err)
	}
	return nil
}

// Recent последние события, kind пустой: все виды
func (r *JournalRepo) Recent(ctx context.Context, kind journal.Kind, limit int) ([]journal.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `SELECT id, kind, trace_id, payload, timestamp FROM monitor_events
		WHERE ($1::text = '' OR kind = $1::text) ORDER BY timestamp DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query journal: %w", err)
	}
	defer rows.Close()

	var out []journal.Event
	for rows.Next() {
		var e journal.Event
		var k string
		var payload []byte
		if err := rows.Scan(&e.ID, &k, &e.TraceID, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan journal: %w", err)
		}
		e.Kind = journal.Kind(k)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &e.Payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *JournalRepo) Close() error {
	return r.db.Close()
}
