package sink

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"framelog/collector"
)

// ConsoleSink prints one line per metric: "name value [unit]".
type ConsoleSink struct {
	w      io.Writer
	header *color.Color
	name   *color.Color
}

func NewConsole(w io.Writer) *ConsoleSink {
	return &ConsoleSink{
		w:      w,
		header: color.New(color.FgCyan, color.Bold),
		name:   color.New(color.FgGreen),
	}
}

func (c *ConsoleSink) Write(_ context.Context, snap *collector.MetricsSnapshot) error {
	if _, err := c.header.Fprintf(c.w, "-- %s (%d metrics)\n",
		snap.CollectedAt.Format(time.RFC3339), len(snap.Metrics)); err != nil {
		return err
	}

	names := make([]string, 0, len(snap.Metrics))
	for name := range snap.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := snap.Metrics[name]
		line := m.Value
		if m.Unit != "" {
			line += " " + m.Unit
		}
		if _, err := fmt.Fprintf(c.w, "%s %s\n", c.name.Sprint(name), line); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleSink) Close() error   { return nil }
func (c *ConsoleSink) String() string { return "console" }
