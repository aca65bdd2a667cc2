package storage

import (
	"sync"
	"time"

	"framelog/collector"
	"framelog/metrics"
)

// MetricStore keeps the latest value of every metric name, whichever
// device sent it. It lives for the whole run and is safe for concurrent
// use.
type MetricStore struct {
	mu        sync.RWMutex
	runID     string
	records   map[string]collector.Metric
	updatedAt time.Time
	now       func() time.Time
	metrics   *metrics.Metrics
}

// NewMetricStore creates an empty store for the given run.
func NewMetricStore(runID string) *MetricStore {
	return &MetricStore{
		runID:   runID,
		records: make(map[string]collector.Metric),
		now:     time.Now,
	}
}

// Instrument reports the number of stored names to m after every merge.
func (s *MetricStore) Instrument(m *metrics.Metrics) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// Merge replaces the record of every reading's name and stamps the store.
// The whole set is applied under one lock so a snapshot never sees half
// of a frame.
func (s *MetricStore) Merge(device string, readings []collector.Reading) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	for _, r := range readings {
		s.records[r.Name] = collector.Metric{
			Name:      r.Name,
			Value:     r.Value,
			Unit:      r.Unit,
			Device:    device,
			UpdatedAt: at,
		}
	}
	s.updatedAt = at
	s.metrics.StoreSize(len(s.records))
	return at
}

// Snapshot returns a copy of the store. ok is false when nothing was ever
// merged.
func (s *MetricStore) Snapshot() (snap *collector.MetricsSnapshot, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.updatedAt.IsZero() {
		return nil, false
	}
	snap = collector.NewSnapshot(s.runID, s.updatedAt)
	for name, m := range s.records {
		snap.Metrics[name] = m
	}
	return snap, true
}

// Len returns the number of distinct metric names.
func (s *MetricStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// RunID identifies the logging run this store belongs to.
func (s *MetricStore) RunID() string { return s.runID }

var _ collector.Merger = (*MetricStore)(nil)
