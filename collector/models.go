package collector

import "time"

// Reading is one element of a decoded frame.
type Reading struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Metric holds the latest value of a named metric.
type Metric struct {
	Name      string    `json:"name"`  // e.g. "temp"
	Value     string    `json:"value"` // raw value as sent by the board
	Unit      string    `json:"unit,omitempty"`
	Device    string    `json:"device"`     // session that wrote it last
	UpdatedAt time.Time `json:"updated_at"` // merge time of the frame
}

// MetricsSnapshot is a point-in-time copy of the metric store.
// CollectedAt is the time of the most recent merge, not the time the
// snapshot was taken.
type MetricsSnapshot struct {
	RunID       string            `json:"run_id"`
	CollectedAt time.Time         `json:"collected_at"`
	Metrics     map[string]Metric `json:"metrics"` // key = metric name
}

// NewSnapshot creates an empty snapshot with the supplied time.
func NewSnapshot(runID string, ts time.Time) *MetricsSnapshot {
	return &MetricsSnapshot{
		RunID:       runID,
		CollectedAt: ts,
		Metrics:     make(map[string]Metric),
	}
}
