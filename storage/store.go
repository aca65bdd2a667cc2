package storage

import (
	"context"
	"time"

	"framelog/collector"
)

// MetricRecord is a single archived metric row.
type MetricRecord struct {
	ID        int64     // auto-increment primary key (mostly for internal use)
	RunID     string    // logging run that produced the snapshot
	Timestamp time.Time // snapshot time
	Device    string    // device that last wrote the metric
	Name      string    // metric name, e.g. "temp"
	Value     string    // raw value
	Unit      string
}

// Store abstracts a persistence back-end for reported snapshots.
type Store interface {
	// Save stores all metrics from a snapshot in a single transaction.
	// Either all rows are written or none.
	Save(ctx context.Context, snap *MetricsSnapshot) error

	// Query returns records for a given name between the time range.
	// If name is empty the call returns records for *all* metric names.
	// The returned slice is sorted by Timestamp ascending.
	Query(ctx context.Context, name string, from, to time.Time) ([]MetricRecord, error)

	// Close releases any resources (e.g. DB connections).
	Close() error
}

// MetricsSnapshot is re-exported here so callers do not need to import
// the collector package just to call Store.Save().
type MetricsSnapshot = collector.MetricsSnapshot
