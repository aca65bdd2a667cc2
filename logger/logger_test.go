package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_JSONToConsole(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Console: &buf})
	require.NoError(t, err)

	l.Logger.Info("dropped")
	l.Logger.Warn("frame dropped", zap.String("device", "ttyACM0"))
	Flush(l.Logger)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "frame dropped", entry["msg"])
	assert.Equal(t, "ttyACM0", entry["device"])
	assert.Contains(t, entry, "ts")
}

func TestNew_AlsoWritesFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "framelog.log")
	l, err := New(Options{Level: "debug", File: path, Console: &buf})
	require.NoError(t, err)

	l.SugaredLogger.Debugw("session started", "device", "ttyACM0")
	Flush(l.Logger)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session started")
	assert.Contains(t, buf.String(), "session started")
}
