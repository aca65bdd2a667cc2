package collector

import (
	"strings"
	"time"
)

// Transport is the line source a session reads from. A session owns its
// transport exclusively and closes it when it stops.
type Transport interface {
	// Poll reports whether a complete line is ready to be read. It must
	// return promptly when nothing is pending.
	Poll() (bool, error)
	// ReadLine returns the next line without its terminator.
	ReadLine() (string, error)
	Close() error
}

// Opener opens transports by device path and baud rate.
type Opener interface {
	Open(path string, baud int) (Transport, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string, baud int) (Transport, error)

func (f OpenerFunc) Open(path string, baud int) (Transport, error) { return f(path, baud) }

// Merger receives the readings of every decoded frame. Implementations
// must be safe for concurrent use; all sessions share one.
type Merger interface {
	Merge(device string, readings []Reading) time.Time
}

// Hooks are optional callbacks for conditions the control surface reports.
// They are called from session goroutines.
type Hooks struct {
	// OnFrameError is called for every dropped frame.
	OnFrameError func(device string, err error)
	// OnExit is called once when a session stops. err is nil when the
	// session stopped because it was halted or ran out of rounds.
	OnExit func(device string, err error)
}

// DeviceID derives the logical device name from a transport path.
func DeviceID(path string) string {
	if id := strings.TrimPrefix(path, "/dev/"); id != "" {
		return id
	}
	return path
}
