package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSQLiteSink_ArchivesReports(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.db")
	d, err := ParseDestination("sqlite://" + path)
	require.NoError(t, err)
	require.Equal(t, SQLite, d.Kind)

	s, err := NewSQLiteSink(d.Path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	snap := testSnapshot()
	require.NoError(t, s.Write(ctx, snap))
	require.NoError(t, s.Write(ctx, snap))

	rows, err := s.Store().Query(ctx, "temp", snap.CollectedAt.Add(-time.Second), snap.CollectedAt)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "sqlite:"+path, s.String())
}
