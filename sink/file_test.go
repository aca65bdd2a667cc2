package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framelog/collector"
)

func TestFileSink_ReplacesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "latest.json")
	f := NewFile(path)
	snap := testSnapshot()

	require.NoError(t, f.Write(context.Background(), snap))
	snap.Metrics["temp"] = collector.Metric{Name: "temp", Value: "30.0", Unit: "C", Device: "ttyACM0"}
	require.NoError(t, f.Write(context.Background(), snap))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got collector.MetricsSnapshot
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "30.0", got.Metrics["temp"].Value)
	assert.Len(t, got.Metrics, 2)

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "file:"+path, f.String())
}
