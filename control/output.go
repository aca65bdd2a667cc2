package control

import (
	"fmt"
	"io"
	"sync"

	"framelog/collector"
)

// Output is the prompt's writer. Session goroutines report through it
// while the prompt is reading, so writes are serialized.
type Output struct {
	mu sync.Mutex
	w  io.Writer
}

func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

func (o *Output) Printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, format, args...)
}

// Hooks returns session hooks that report dropped frames and stopped
// sessions by device id.
func (o *Output) Hooks() collector.Hooks {
	return collector.Hooks{
		OnFrameError: func(device string, err error) {
			o.Printf("%s: %v\n", device, err)
		},
		OnExit: func(device string, err error) {
			if err != nil {
				o.Printf("%s: stopped: %v\n", device, err)
				return
			}
			o.Printf("%s: stopped\n", device)
		},
	}
}
