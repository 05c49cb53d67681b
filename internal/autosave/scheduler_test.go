package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type fakeTimers struct {
	mu     sync.Mutex
	armed  []*fakeTimer
	delays []time.Duration
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer := &fakeTimer{fn: fn}
	f.armed = append(f.armed, timer)
	f.delays = append(f.delays, d)
	return timer
}

// fire runs the most recently armed timer if it is still active.
func (f *fakeTimers) fire() bool {
	f.mu.Lock()
	if len(f.armed) == 0 {
		f.mu.Unlock()
		return false
	}
	timer := f.armed[len(f.armed)-1]
	f.mu.Unlock()
	if timer.stopped {
		return false
	}
	timer.stopped = true
	timer.fn()
	return true
}

type saveRecorder struct {
	mu    sync.Mutex
	calls int
	errs  []error
	hook  func(call int)
}

func (r *saveRecorder) save(context.Context) error {
	r.mu.Lock()
	r.calls++
	call := r.calls
	var err error
	if len(r.errs) > 0 {
		err = r.errs[0]
		r.errs = r.errs[1:]
	}
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return err
}

func (r *saveRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newScheduler(t *testing.T, rec *saveRecorder, ready ReadyFunc, opts ...Option) (*Scheduler, *fakeTimers) {
	t.Helper()
	timers := &fakeTimers{}
	opts = append([]Option{WithAfterFunc(timers.afterFunc)}, opts...)
	return New("test", rec.save, ready, opts...), timers
}

func TestScheduleDebouncesIntoOneSave(t *testing.T) {
	rec := &saveRecorder{}
	s, timers := newScheduler(t, rec, nil, WithDelay(50*time.Millisecond))

	s.Schedule()
	s.Schedule()
	s.Schedule()

	require.Len(t, timers.armed, 3)
	assert.True(t, timers.armed[0].stopped)
	assert.True(t, timers.armed[1].stopped)
	assert.Equal(t, 50*time.Millisecond, timers.delays[2])

	require.True(t, timers.fire())
	assert.Equal(t, 1, rec.count())
	assert.False(t, s.Pending())
	assert.False(t, s.Status().LastSaved.IsZero())
}

func TestStaleTimerDoesNotSave(t *testing.T) {
	rec := &saveRecorder{}
	s, timers := newScheduler(t, rec, nil)

	s.Schedule()
	stale := timers.armed[0]
	s.Schedule()

	stale.fn()
	assert.Equal(t, 0, rec.count())
}

func TestFireSkipsWhenNothingToSave(t *testing.T) {
	rec := &saveRecorder{}
	s, timers := newScheduler(t, rec, func() bool { return false })

	s.Schedule()
	timers.fire()
	assert.Equal(t, 0, rec.count())
}

func TestCancelIssuesNoSave(t *testing.T) {
	rec := &saveRecorder{}
	s, timers := newScheduler(t, rec, nil)

	s.Schedule()
	armed := timers.armed[0]
	s.Cancel()

	assert.True(t, armed.stopped)
	armed.fn()
	assert.Equal(t, 0, rec.count())
	assert.False(t, s.Pending())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("server unavailable")
	rec := &saveRecorder{errs: []error{boom, boom, boom}}
	var statuses []Status
	s, timers := newScheduler(t, rec, nil, WithStatusListener(func(st Status) {
		statuses = append(statuses, st)
	}))

	s.Schedule()
	for i := 0; i < 3; i++ {
		require.True(t, timers.fire(), "attempt %d", i+1)
	}
	assert.Equal(t, 3, rec.count())

	status := s.Status()
	assert.True(t, status.Disabled)
	assert.Equal(t, 3, status.Failures)
	assert.ErrorIs(t, status.LastError, boom)
	require.Len(t, statuses, 3)
	assert.False(t, statuses[1].Disabled)
	assert.True(t, statuses[2].Disabled)

	s.Schedule()
	assert.False(t, timers.fire())
	assert.Equal(t, 3, rec.count())

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 4, rec.count())
	status = s.Status()
	assert.False(t, status.Disabled)
	assert.Zero(t, status.Failures)
	assert.NoError(t, status.LastError)

	s.Schedule()
	require.True(t, timers.fire())
	assert.Equal(t, 5, rec.count())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	boom := errors.New("timeout")
	rec := &saveRecorder{errs: []error{boom, boom, nil, boom, boom}}
	s, timers := newScheduler(t, rec, nil)

	s.Schedule()
	for i := 0; i < 3; i++ {
		require.True(t, timers.fire())
	}
	assert.Zero(t, s.Status().Failures)

	s.Schedule()
	require.True(t, timers.fire())
	require.True(t, timers.fire())
	assert.Equal(t, 2, s.Status().Failures)
	assert.False(t, s.Status().Disabled)
}

func TestManualFailureKeepsBreakerOpen(t *testing.T) {
	boom := errors.New("still down")
	rec := &saveRecorder{errs: []error{boom, boom}}
	s, timers := newScheduler(t, rec, nil, WithMaxFailures(1))

	s.Schedule()
	timers.fire()
	require.True(t, s.Status().Disabled)

	err := s.Flush(context.Background())
	require.ErrorIs(t, err, boom)
	assert.True(t, s.Status().Disabled)
}

func TestFlushBypassesReadyAndCancelsTimer(t *testing.T) {
	rec := &saveRecorder{}
	s, timers := newScheduler(t, rec, func() bool { return false })

	s.Schedule()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, rec.count())
	assert.False(t, timers.fire())
}

func TestChangeDuringSaveCoalescesIntoOneFollowUp(t *testing.T) {
	rec := &saveRecorder{}
	s, timers := newScheduler(t, rec, nil)

	rec.hook = func(call int) {
		if call != 1 {
			return
		}
		for i := 0; i < 3; i++ {
			s.Schedule()
			timers.fire()
		}
	}

	s.Schedule()
	require.True(t, timers.fire())
	assert.Equal(t, 1, rec.count(), "saves for the same target overlapped")
	require.True(t, s.Pending())

	require.True(t, timers.fire())
	assert.Equal(t, 2, rec.count())
	assert.False(t, s.Pending())
}

func TestFlushWaitsForInFlightSave(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	calls, active, maxActive := 0, 0, 0
	save := func(context.Context) error {
		mu.Lock()
		calls++
		first := calls == 1
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}
	timers := &fakeTimers{}
	s := New("test", save, nil, WithAfterFunc(timers.afterFunc))

	s.Schedule()
	go timers.fire()
	<-started

	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(context.Background()) }()

	select {
	case <-flushed:
		t.Fatal("flush ran while a save was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-flushed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, maxActive)
}

func TestFlushHonoursContextWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	save := func(context.Context) error {
		close(started)
		<-release
		return nil
	}
	timers := &fakeTimers{}
	s := New("test", save, nil, WithAfterFunc(timers.afterFunc))
	defer close(release)

	s.Schedule()
	go timers.fire()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Flush(ctx), context.Canceled)
}

func TestStopRefusesFurtherWork(t *testing.T) {
	rec := &saveRecorder{}
	s, timers := newScheduler(t, rec, nil)

	s.Schedule()
	s.Stop()
	assert.False(t, timers.fire())
	s.Schedule()
	assert.Len(t, timers.armed, 1)
	assert.ErrorIs(t, s.Flush(context.Background()), ErrStopped)
	assert.Equal(t, 0, rec.count())
}
