package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"framelog/collector"
)

// FileSink keeps the latest snapshot as a JSON document at path. Each write
// replaces the previous one atomically.
type FileSink struct {
	path string
}

func NewFile(path string) *FileSink {
	return &FileSink{path: path}
}

func (f *FileSink) Write(_ context.Context, snap *collector.MetricsSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

func (f *FileSink) Close() error   { return nil }
func (f *FileSink) String() string { return "file:" + f.path }
