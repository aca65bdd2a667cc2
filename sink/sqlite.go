package sink

import (
	"context"

	"go.uber.org/zap"

	"framelog/collector"
	"framelog/storage"
)

// SQLiteSink appends every reported snapshot to a SQLite archive.
type SQLiteSink struct {
	path  string
	store storage.Store
}

func NewSQLiteSink(path string, log *zap.Logger) (*SQLiteSink, error) {
	db, err := storage.NewSQLite(path, log)
	if err != nil {
		return nil, err
	}
	return &SQLiteSink{path: path, store: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, snap *collector.MetricsSnapshot) error {
	return s.store.Save(ctx, snap)
}

// Store exposes the archive for queries.
func (s *SQLiteSink) Store() storage.Store { return s.store }

func (s *SQLiteSink) Close() error   { return s.store.Close() }
func (s *SQLiteSink) String() string { return "sqlite:" + s.path }
