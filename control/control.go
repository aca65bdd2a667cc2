// Package control implements the command prompt that drives a logging
// run: registering devices, changing the round budget and reporting.
package control

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"framelog/collector"
	"framelog/sink"
)

// Prompt is printed before every command when stdin is a terminal.
const Prompt = ":-> "

// ErrNoData is returned by Report before the first frame was merged.
var ErrNoData = errors.New("no data yet")

// Registry is the part of collector.Registry the prompt drives.
type Registry interface {
	Register(path string, baud int, rounds ...int) error
	Unregister(id string) error
	SetRoundBudget(n int) error
	RoundBudget() int
	Sessions() []collector.SessionInfo
	Shutdown(ctx context.Context) error
}

// Snapshotter is the read side of the metric store.
type Snapshotter interface {
	Snapshot() (*collector.MetricsSnapshot, bool)
}

// Controller executes commands against a registry.
type Controller struct {
	reg    Registry
	store  Snapshotter
	sink   sink.Sink
	log    *zap.Logger
	device string // used when a command names no device
	baud   int

	// Ports lists serial ports for the "ports" command.
	Ports func() ([]string, error)

	out *Output
}

// New returns a controller printing to out. device and baud are the
// defaults for "register" and "unregister" without arguments.
func New(reg Registry, store Snapshotter, s sink.Sink, out *Output, device string, baud int, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		reg:    reg,
		store:  store,
		sink:   s,
		log:    log,
		device: device,
		baud:   baud,
		out:    out,
	}
}

// Printf writes to the prompt output.
func (c *Controller) Printf(format string, args ...any) {
	c.out.Printf(format, args...)
}

// Report writes the current snapshot to the sink.
func (c *Controller) Report(ctx context.Context) error {
	snap, ok := c.store.Snapshot()
	if !ok {
		return ErrNoData
	}
	return c.sink.Write(ctx, snap)
}

// Run reads commands from in until exit, end of input or ctx is done.
func (c *Controller) Run(ctx context.Context, in io.Reader) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	for {
		if interactive {
			c.Printf("%s", Prompt)
		}
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			if c.Execute(ctx, line) {
				return nil
			}
		}
	}
}

// Execute runs one command line. It returns true when the prompt should
// end.
func (c *Controller) Execute(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "register", "start":
		c.register(args)
	case "unregister", "stop":
		c.unregister(args)
	case "rounds", "budget":
		c.rounds(args)
	case "report":
		if err := c.Report(ctx); err != nil {
			c.Printf("report: %v\n", err)
		}
	case "list":
		c.list()
	case "ports":
		c.ports()
	case "shutdown":
		if err := c.reg.Shutdown(ctx); err != nil {
			c.Printf("shutdown: %v\n", err)
		}
		c.Printf("all sessions stopped\n")
	case "help", "?":
		c.usage()
	case "exit", "quit":
		return true
	default:
		c.log.Debug("rejected command", zap.String("command", cmd))
		c.Printf("unsupported command: %s\n", cmd)
		c.usage()
	}
	return false
}

func (c *Controller) register(args []string) {
	device, baud := c.device, c.baud
	var rounds []int

	if len(args) > 0 {
		device = args[0]
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			c.Printf("register: invalid baud rate %q\n", args[1])
			return
		}
		baud = n
	}
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			c.Printf("register: invalid round budget %q\n", args[2])
			return
		}
		rounds = append(rounds, n)
	}
	if device == "" {
		c.Printf("register: no device given\n")
		return
	}

	if err := c.reg.Register(device, baud, rounds...); err != nil {
		c.Printf("register: %v\n", err)
		return
	}
	c.Printf("%s: registered at %d baud\n", collector.DeviceID(device), baud)
}

func (c *Controller) unregister(args []string) {
	device := c.device
	if len(args) > 0 {
		device = args[0]
	}
	if device == "" {
		c.Printf("unregister: no device given\n")
		return
	}
	if err := c.reg.Unregister(device); err != nil {
		c.Printf("unregister: %v\n", err)
		return
	}
	c.Printf("%s: unregistered\n", collector.DeviceID(device))
}

func (c *Controller) rounds(args []string) {
	if len(args) == 0 {
		c.Printf("round budget: %d\n", c.reg.RoundBudget())
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		c.Printf("rounds: invalid number %q\n", args[0])
		return
	}
	if err := c.reg.SetRoundBudget(n); err != nil {
		c.Printf("rounds: %v\n", err)
		return
	}
	c.Printf("round budget for new sessions: %d\n", n)
}

func (c *Controller) list() {
	sessions := c.reg.Sessions()
	if len(sessions) == 0 {
		c.Printf("no active sessions\n")
		return
	}
	for _, s := range sessions {
		left := "unbounded"
		if s.Remaining > 0 {
			left = strconv.Itoa(s.Remaining) + " left"
		}
		c.Printf("%s\t%s\t%d frames\t%s\n", s.ID, s.Path, s.Frames, left)
	}
}

func (c *Controller) ports() {
	if c.Ports == nil {
		c.Printf("ports: not available\n")
		return
	}
	ports, err := c.Ports()
	if err != nil {
		c.Printf("ports: %v\n", err)
		return
	}
	if len(ports) == 0 {
		c.Printf("no serial ports found\n")
		return
	}
	for _, p := range ports {
		c.Printf("%s\n", p)
	}
}

func (c *Controller) usage() {
	c.Printf(`commands:
  register [device] [baud] [rounds]   start reading a device (alias: start)
  unregister [device]                 stop reading a device (alias: stop)
  rounds [n]                          show or set the round budget for new sessions
  report                              write the current snapshot to the sink
  list                                show active sessions
  ports                               list serial ports
  shutdown                            stop all sessions
  exit                                leave (alias: quit)
`)
}
