package collector_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"framelog/collector"
	"framelog/metrics"
	"framelog/storage"
)

// scriptTransport replays queued lines and then reports nothing, or fails
// with err once the queue is empty.
type scriptTransport struct {
	mu     sync.Mutex
	lines  []string
	err    error
	closed bool
}

func (s *scriptTransport) push(lines ...string) {
	s.mu.Lock()
	s.lines = append(s.lines, lines...)
	s.mu.Unlock()
}

func (s *scriptTransport) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *scriptTransport) Poll() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) > 0 {
		return true, nil
	}
	return false, s.err
}

func (s *scriptTransport) ReadLine() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return "", errors.New("empty")
	}
	l := s.lines[0]
	s.lines = s.lines[1:]
	return l, nil
}

func (s *scriptTransport) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *scriptTransport) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeOpener hands out one scriptTransport per path.
type fakeOpener struct {
	mu         sync.Mutex
	transports map[string]*scriptTransport
	fail       map[string]error
	opened     []string
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		transports: make(map[string]*scriptTransport),
		fail:       make(map[string]error),
	}
}

func (o *fakeOpener) transport(path string) *scriptTransport {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.transports[path]
	if !ok {
		t = &scriptTransport{}
		o.transports[path] = t
	}
	return t
}

func (o *fakeOpener) Open(path string, baud int) (collector.Transport, error) {
	o.mu.Lock()
	err := o.fail[path]
	o.opened = append(o.opened, path)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return o.transport(path), nil
}

type exitEvent struct {
	device string
	err    error
}

type harness struct {
	opener    *fakeOpener
	store     *storage.MetricStore
	reg       *collector.Registry
	exits     chan exitEvent
	frameErrs chan exitEvent
}

func newHarness(t *testing.T, opts ...collector.Option) *harness {
	t.Helper()
	h := &harness{
		opener:    newFakeOpener(),
		store:     storage.NewMetricStore("test-run"),
		exits:     make(chan exitEvent, 16),
		frameErrs: make(chan exitEvent, 16),
	}
	hooks := collector.Hooks{
		OnExit:       func(d string, err error) { h.exits <- exitEvent{d, err} },
		OnFrameError: func(d string, err error) { h.frameErrs <- exitEvent{d, err} },
	}
	opts = append([]collector.Option{
		collector.WithHooks(hooks),
		collector.WithPollInterval(time.Millisecond),
	}, opts...)
	h.reg = collector.NewRegistry(h.opener, h.store, zaptest.NewLogger(t), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.reg.Shutdown(ctx)
		h.reg.Wait()
	})
	return h
}

func (h *harness) waitExit(t *testing.T) exitEvent {
	t.Helper()
	select {
	case ev := <-h.exits:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
		return exitEvent{}
	}
}

const tempLine = `  {"name":"temp","value":"21.5","unit":"C"}`

func TestRegistry_EndToEndRoundBudget(t *testing.T) {
	h := newHarness(t)
	h.opener.transport("/dev/ttyX").push("[", tempLine, "]")

	require.NoError(t, h.reg.Register("/dev/ttyX", 9600, 1))

	ev := h.waitExit(t)
	assert.Equal(t, "ttyX", ev.device)
	assert.NoError(t, ev.err)

	snap, ok := h.store.Snapshot()
	require.True(t, ok)
	require.Len(t, snap.Metrics, 1)
	temp := snap.Metrics["temp"]
	assert.Equal(t, "21.5", temp.Value)
	assert.Equal(t, "C", temp.Unit)
	assert.Equal(t, "ttyX", temp.Device)
	assert.False(t, snap.CollectedAt.IsZero())
	assert.True(t, h.opener.transport("/dev/ttyX").isClosed())

	// Exhausted sessions are reaped.
	assert.Empty(t, h.reg.Devices())
}

func TestRegistry_RoundBudgetCountsFrames(t *testing.T) {
	h := newHarness(t)
	tr := h.opener.transport("/dev/ttyX")
	for i := 0; i < 5; i++ {
		tr.push("[", fmt.Sprintf(`  {"name":"n","value":"%d"}`, i), "]")
	}

	require.NoError(t, h.reg.Register("/dev/ttyX", 9600, 3))
	h.waitExit(t)

	snap, ok := h.store.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "2", snap.Metrics["n"].Value)
}

func TestRegistry_RegisterTwiceFails(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.reg.Register("/dev/ttyX", 9600))
	err := h.reg.Register("/dev/ttyX", 9600)

	require.Error(t, err)
	assert.True(t, errors.Is(err, collector.ErrAlreadyRegistered))
	var devErr *collector.DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "ttyX", devErr.Device)
	assert.Equal(t, []string{"ttyX"}, h.reg.Devices())
}

func TestRegistry_UnregisterUnknownFails(t *testing.T) {
	h := newHarness(t)

	err := h.reg.Unregister("ttyX")
	assert.True(t, errors.Is(err, collector.ErrNotFound))
}

func TestRegistry_UnregisterRemovesAndHalts(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.reg.Register("/dev/ttyX", 9600))
	require.NoError(t, h.reg.Register("/dev/ttyY", 9600))

	require.NoError(t, h.reg.Unregister("ttyX"))

	assert.Equal(t, []string{"ttyY"}, h.reg.Devices())
	ev := h.waitExit(t)
	assert.Equal(t, "ttyX", ev.device)
	assert.NoError(t, ev.err)

	// Unregistering by path works too.
	require.NoError(t, h.reg.Unregister("/dev/ttyY"))
	assert.Empty(t, h.reg.Devices())
}

func TestRegistry_TransportUnavailable(t *testing.T) {
	h := newHarness(t)
	h.opener.fail["/dev/ttyX"] = errors.New("no such file or directory")

	err := h.reg.Register("/dev/ttyX", 9600)

	require.Error(t, err)
	assert.True(t, errors.Is(err, collector.ErrTransportUnavailable))
	assert.Empty(t, h.reg.Devices())
}

func TestRegistry_TransportErrorStopsOnlyThatSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.reg.Register("/dev/ttyX", 9600))
	require.NoError(t, h.reg.Register("/dev/ttyY", 9600))

	h.opener.transport("/dev/ttyX").fail(errors.New("device unplugged"))

	ev := h.waitExit(t)
	assert.Equal(t, "ttyX", ev.device)
	assert.True(t, errors.Is(ev.err, collector.ErrTransportError))

	h.opener.transport("/dev/ttyY").push("[", tempLine, "]")
	require.Eventually(t, func() bool {
		_, ok := h.store.Snapshot()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// The failed session is reaped; the device can be registered again.
	assert.Equal(t, []string{"ttyY"}, h.reg.Devices())
	h.opener.transport("/dev/ttyX").fail(nil)
	require.NoError(t, h.reg.Register("/dev/ttyX", 9600))
}

func TestRegistry_MalformedFrameKeepsSessionAlive(t *testing.T) {
	h := newHarness(t)
	tr := h.opener.transport("/dev/ttyX")
	tr.push("[", `  {"name":"temp","value":"20.0"}`, "]")

	require.NoError(t, h.reg.Register("/dev/ttyX", 9600))
	require.Eventually(t, func() bool {
		_, ok := h.store.Snapshot()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	before, _ := h.store.Snapshot()

	tr.push("[", `  {"name":"temp","value":`, "]")
	select {
	case ev := <-h.frameErrs:
		assert.Equal(t, "ttyX", ev.device)
		assert.True(t, errors.Is(ev.err, collector.ErrMalformedFrame))
	case <-time.After(2 * time.Second):
		t.Fatal("no frame error reported")
	}

	after, _ := h.store.Snapshot()
	assert.Equal(t, before, after)

	tr.push("[", `  {"name":"temp","value":"22.0"}`, "]")
	require.Eventually(t, func() bool {
		snap, _ := h.store.Snapshot()
		return snap.Metrics["temp"].Value == "22.0"
	}, 2*time.Second, 5*time.Millisecond)

	s, ok := h.reg.Session("ttyX")
	require.True(t, ok)
	assert.Equal(t, int64(2), s.Frames())
}

func TestRegistry_SetRoundBudget(t *testing.T) {
	h := newHarness(t, collector.WithRoundBudget(0))

	require.NoError(t, h.reg.Register("/dev/ttyX", 9600))
	require.NoError(t, h.reg.SetRoundBudget(1))
	assert.Equal(t, 1, h.reg.RoundBudget())
	assert.True(t, errors.Is(h.reg.SetRoundBudget(-1), collector.ErrInvalidRoundBudget))

	// The running session keeps its unbounded budget.
	trX := h.opener.transport("/dev/ttyX")
	trX.push("[", tempLine, "]", "[", tempLine, "]")
	require.Eventually(t, func() bool {
		s, ok := h.reg.Session("ttyX")
		return ok && s.Frames() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// A new session picks up the new default.
	h.opener.transport("/dev/ttyY").push("[", tempLine, "]")
	require.NoError(t, h.reg.Register("/dev/ttyY", 9600))
	ev := h.waitExit(t)
	assert.Equal(t, "ttyY", ev.device)
	assert.Equal(t, []string{"ttyX"}, h.reg.Devices())
}

func TestRegistry_Shutdown(t *testing.T) {
	m := metrics.New()
	h := newHarness(t, collector.WithMetrics(m))
	for _, p := range []string{"/dev/ttyA", "/dev/ttyB", "/dev/ttyC"} {
		require.NoError(t, h.reg.Register(p, 9600))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.reg.Shutdown(ctx))

	assert.Empty(t, h.reg.Devices())
	for _, p := range []string{"/dev/ttyA", "/dev/ttyB", "/dev/ttyC"} {
		assert.True(t, h.opener.transport(p).isClosed(), p)
	}
	h.reg.Wait()
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.reg.Register("/dev/ttyX", 9600)
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, collector.ErrAlreadyRegistered))
	}
	assert.Equal(t, 1, ok)
}
