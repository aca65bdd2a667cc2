package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"framelog/metrics"
)

// Registry owns the running sessions, at most one per device id. All
// sessions merge into the same store.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	rounds   int // default budget for new sessions

	opener       Opener
	store        Merger
	hooks        Hooks
	log          *zap.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration

	wg conc.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

func WithHooks(h Hooks) Option { return func(r *Registry) { r.hooks = h } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Registry) { r.metrics = m } }

func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithRoundBudget sets the initial default budget. Negative values are
// ignored.
func WithRoundBudget(n int) Option {
	return func(r *Registry) {
		if n >= 0 {
			r.rounds = n
		}
	}
}

// NewRegistry returns an empty registry. Sessions open their transports
// through opener and merge into store.
func NewRegistry(opener Opener, store Merger, log *zap.Logger, opts ...Option) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		sessions:     make(map[string]*Session),
		opener:       opener,
		store:        store,
		log:          log,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register opens the transport at path and starts reading it. Without an
// explicit budget the registry default applies.
func (r *Registry) Register(path string, baud int, rounds ...int) error {
	id := DeviceID(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	budget := r.rounds
	if len(rounds) > 0 {
		if rounds[0] < 0 {
			return deviceErr(id, ErrInvalidRoundBudget)
		}
		budget = rounds[0]
	}

	if _, ok := r.lookupLocked(id); ok {
		return deviceErr(id, ErrAlreadyRegistered)
	}

	t, err := r.opener.Open(path, baud)
	if err != nil {
		r.log.Error("cannot open transport",
			zap.String("device", id),
			zap.String("path", path),
			zap.Error(err))
		return deviceErr(id, fmt.Errorf("%w: %w", ErrTransportUnavailable, err))
	}

	s := newSession(id, path, baud, budget, t, r)
	r.sessions[id] = s
	r.metrics.SessionStarted()
	r.wg.Go(s.run)
	return nil
}

// Unregister halts the session for id and forgets it. It does not wait for
// the session to stop. A device path is accepted as well as an id.
func (r *Registry) Unregister(id string) error {
	id = DeviceID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	// A session that already stopped is still unregistered explicitly.
	s, ok := r.sessions[id]
	if !ok {
		return deviceErr(id, ErrNotFound)
	}
	s.Halt()
	delete(r.sessions, id)
	r.log.Info("session unregistered", zap.String("device", id), zap.Int64("frames", s.Frames()))
	return nil
}

// SetRoundBudget changes the budget given to sessions registered from now
// on. Running sessions keep theirs.
func (r *Registry) SetRoundBudget(n int) error {
	if n < 0 {
		return ErrInvalidRoundBudget
	}
	r.mu.Lock()
	r.rounds = n
	r.mu.Unlock()
	return nil
}

func (r *Registry) RoundBudget() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rounds
}

// Session returns the active session for id.
func (r *Registry) Session(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(DeviceID(id))
}

// Devices returns the sorted ids of active sessions.
func (r *Registry) Devices() []string {
	infos := r.Sessions()
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.ID
	}
	return ids
}

// Sessions returns a view of every active session sorted by id.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reapLocked()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Shutdown halts every session, waits for them to stop or for ctx, and
// empties the registry. Transport close failures are combined.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var (
		wg   conc.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, s := range sessions {
		s := s
		wg.Go(func() {
			s.Halt()
			if err := s.wait(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, deviceErr(s.id, err))
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	r.log.Info("registry shut down", zap.Int("sessions", len(sessions)))
	return errs
}

// Wait blocks until every session goroutine started so far has returned.
// It must not race with Register.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// lookupLocked returns the session for id, dropping it first when its
// goroutine already returned.
func (r *Registry) lookupLocked(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	if s.exited() {
		delete(r.sessions, id)
		r.log.Debug("reaped stopped session", zap.String("device", id), zap.Error(s.err))
		return nil, false
	}
	return s, true
}

func (r *Registry) reapLocked() {
	for id := range r.sessions {
		r.lookupLocked(id)
	}
}
