package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLite opens (or creates) the SQLite file at dbPath and runs the
// migration that creates the `metrics` table if it does not exist.
// The caller must call Close() when the program shuts down.
func NewSQLite(dbPath string, log *zap.Logger) (*SQLite, error) {
	// The modernc.org driver is pure Go and works without CGO.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; reports are rare.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLite{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	const stmt = `
CREATE TABLE IF NOT EXISTS metrics (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT NOT NULL,
    ts        INTEGER NOT NULL,
    device    TEXT NOT NULL,
    name      TEXT NOT NULL,
    value     TEXT NOT NULL,
    unit      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_ts ON metrics(name, ts);
`
	_, err := s.db.Exec(stmt)
	if err != nil {
		return fmt.Errorf("create metrics table: %w", err)
	}
	s.log.Debug("SQLite migration applied")
	return nil
}

// Save stores a snapshot in a single transaction.
func (s *SQLite) Save(ctx context.Context, snap *MetricsSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics (run_id, ts, device, name, value, unit) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := snap.CollectedAt.UTC().UnixNano()
	for _, m := range snap.Metrics {
		if _, err := stmt.ExecContext(ctx, snap.RunID, ts, m.Device, m.Name, m.Value, m.Unit); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec insert for %s: %w", m.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.log.Debug("snapshot persisted", zap.Time("ts", snap.CollectedAt), zap.Int("metrics", len(snap.Metrics)))
	return nil
}

// Query returns archived rows ordered by time.
func (s *SQLite) Query(ctx context.Context, name string, from, to time.Time) ([]MetricRecord, error) {
	q := `SELECT id, run_id, ts, device, name, value, unit FROM metrics WHERE ts >= ? AND ts <= ?`
	args := []any{from.UTC().UnixNano(), to.UTC().UnixNano()}
	if name != "" {
		q += ` AND name = ?`
		args = append(args, name)
	}
	q += ` ORDER BY ts, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []MetricRecord
	for rows.Next() {
		var (
			rec MetricRecord
			ts  int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &ts, &rec.Device, &rec.Name, &rec.Value, &rec.Unit); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}
	return out, nil
}

// Close shuts down the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ Store = (*SQLite)(nil)
