package collector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"framelog/metrics"
)

// DefaultPollInterval is how long a session sleeps when its transport has
// nothing pending.
const DefaultPollInterval = 10 * time.Millisecond

// Session reads one device: it polls the transport, feeds its own
// assembler and merges every decoded frame into the shared store.
type Session struct {
	id        string
	path      string
	baud      int
	transport Transport
	assembler *FrameAssembler
	store     Merger
	hooks     Hooks
	log       *zap.Logger
	metrics   *metrics.Metrics
	poll      time.Duration

	running   atomic.Bool
	remaining atomic.Int64 // 0 = unbounded
	frames    atomic.Int64
	startedAt time.Time

	done     chan struct{}
	err      error // set before done is closed
	closeErr error
}

func newSession(id, path string, baud, rounds int, t Transport, r *Registry) *Session {
	s := &Session{
		id:        id,
		path:      path,
		baud:      baud,
		transport: t,
		assembler: NewFrameAssembler(),
		store:     r.store,
		hooks:     r.hooks,
		log:       r.log.With(zap.String("device", id)),
		metrics:   r.metrics,
		poll:      r.pollInterval,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.remaining.Store(int64(rounds))
	s.running.Store(true)
	return s
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Path() string { return s.path }
func (s *Session) Baud() int    { return s.baud }

// Frames returns the number of frames merged so far.
func (s *Session) Frames() int64 { return s.frames.Load() }

// Remaining returns the rounds left; 0 means unbounded or exhausted.
func (s *Session) Remaining() int { return int(s.remaining.Load()) }

// Running reports whether the session has not been asked to stop.
func (s *Session) Running() bool { return s.running.Load() }

// Halt asks the session to stop. The flag is checked at the top of every
// read iteration, so the session may still consume one more line.
func (s *Session) Halt() {
	s.running.Store(false)
}

// Done is closed once the reading goroutine has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session stopped. Only meaningful after Done.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Session) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// wait blocks until the goroutine returned or ctx is done.
func (s *Session) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	defer s.finish()

	s.log.Info("session started",
		zap.String("path", s.path),
		zap.Int("baud", s.baud),
		zap.Int64("rounds", s.remaining.Load()))

	for s.running.Load() {
		ready, err := s.transport.Poll()
		if err != nil {
			s.fail(err)
			return
		}
		if !ready {
			time.Sleep(s.poll)
			continue
		}

		line, err := s.transport.ReadLine()
		if err != nil {
			s.fail(err)
			return
		}

		payload, ok := s.assembler.Feed(line)
		if !ok {
			continue
		}
		s.handleFrame(payload)
	}
}

func (s *Session) handleFrame(payload string) {
	readings, err := DecodeFrame(payload)
	if err != nil {
		s.log.Warn("frame dropped", zap.Error(err))
		s.metrics.FrameMalformed(s.id)
		if s.hooks.OnFrameError != nil {
			s.hooks.OnFrameError(s.id, err)
		}
		return
	}

	at := s.store.Merge(s.id, readings)
	n := s.frames.Add(1)
	s.metrics.FrameAssembled(s.id)
	s.log.Debug("frame merged",
		zap.Int("readings", len(readings)),
		zap.Int64("frame", n),
		zap.Time("at", at))

	if s.remaining.Load() > 0 && s.remaining.Add(-1) == 0 {
		s.log.Info("round budget exhausted", zap.Int64("frames", n))
		s.Halt()
	}
}

func (s *Session) fail(err error) {
	s.running.Store(false)
	s.err = deviceErr(s.id, fmt.Errorf("%w: %w", ErrTransportError, err))
	s.metrics.TransportError(s.id)
	s.log.Error("transport failed", zap.Error(err))
}

func (s *Session) finish() {
	s.closeErr = s.transport.Close()
	if s.closeErr != nil {
		s.log.Warn("closing transport", zap.Error(s.closeErr))
	}
	s.metrics.SessionStopped()
	s.log.Info("session stopped",
		zap.Int64("frames", s.frames.Load()),
		zap.Duration("uptime", time.Since(s.startedAt)))
	close(s.done)
	if s.hooks.OnExit != nil {
		s.hooks.OnExit(s.id, s.err)
	}
}

// SessionInfo is a read-only view of a session used for listings.
type SessionInfo struct {
	ID        string
	Path      string
	Frames    int64
	Remaining int
}

func (s *Session) info() SessionInfo {
	return SessionInfo{ID: s.id, Path: s.path, Frames: s.Frames(), Remaining: s.Remaining()}
}
