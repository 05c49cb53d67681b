// Package autosave debounces save requests for one logical target and guards
// the target's persistence calls with a consecutive-failure circuit breaker.
package autosave

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	DefaultDelay       = 3 * time.Second
	DefaultMaxFailures = 3
)

// ErrStopped is returned by Flush once the scheduler has been stopped.
var ErrStopped = errors.New("autosave stopped")

// SaveFunc performs one consolidated save of the target.
type SaveFunc func(ctx context.Context) error

// ReadyFunc reports whether the target still has something to save when the
// debounce timer elapses.
type ReadyFunc func() bool

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a timer that calls f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// Status is the observable state of a scheduler.
type Status struct {
	Saving    bool
	Failures  int
	Disabled  bool
	LastError error
	LastSaved time.Time
}

type Option func(*Scheduler)

// WithDelay sets the debounce delay. Non-positive values keep the default.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithMaxFailures sets how many consecutive automatic failures open the breaker.
func WithMaxFailures(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxFailures = n
		}
	}
}

func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.afterFunc = fn
		}
	}
}

// WithStatusListener registers fn to receive the status after every save.
// fn runs outside the scheduler's lock.
func WithStatusListener(fn func(Status)) Option {
	return func(s *Scheduler) {
		s.onStatus = fn
	}
}

// WithContext sets the context automatic saves run under.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}

// Scheduler serializes saves for one target. A debounced save runs only when
// ready reports true; a request arriving while a save is in flight is folded
// into exactly one follow-up save.
type Scheduler struct {
	name        string
	save        SaveFunc
	ready       ReadyFunc
	delay       time.Duration
	maxFailures int
	afterFunc   AfterFunc
	onStatus    func(Status)
	baseCtx     context.Context
	now         func() time.Time

	mu        sync.Mutex
	timer     Timer
	timerGen  uint64
	inFlight  bool
	done      chan struct{}
	followUp  bool
	failures  int
	disabled  bool
	stopped   bool
	lastErr   error
	lastSaved time.Time
}

func New(name string, save SaveFunc, ready ReadyFunc, opts ...Option) *Scheduler {
	if ready == nil {
		ready = func() bool { return true }
	}
	s := &Scheduler{
		name:        name,
		save:        save,
		ready:       ready,
		delay:       DefaultDelay,
		maxFailures: DefaultMaxFailures,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		baseCtx: context.Background(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule (re)starts the debounce timer. It does nothing while the breaker
// is open or after Stop.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.disabled {
		return
	}
	s.armLocked()
}

// Cancel drops a pending debounced save. A follow-up captured for an
// in-flight save survives: the in-flight save may not carry the current
// state, and the follow-up still has to pass the ready check.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

// Stop cancels the timer and refuses further work. An in-flight save is left
// to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.disarmLocked()
	s.followUp = false
}

// Pending reports whether a debounced save is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Flush runs a user-initiated save now. It bypasses both the ready check and
// the breaker, waiting for any in-flight save first. Success closes the
// breaker and resets the failure count.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	for s.inFlight {
		done := s.done
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.disarmLocked()
	s.beginLocked()
	s.mu.Unlock()

	err := s.save(ctx)

	s.mu.Lock()
	s.finishLocked()
	if err != nil {
		s.lastErr = err
	} else {
		if s.disabled {
			log.Printf("autosave %s: re-enabled after manual save", s.name)
		}
		s.succeedLocked()
	}
	s.followUpLocked()
	status := s.statusLocked()
	s.mu.Unlock()

	s.notify(status)
	return err
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.stopped || s.disabled {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.inFlight {
		s.followUp = true
		s.mu.Unlock()
		return
	}
	if !s.ready() {
		s.mu.Unlock()
		return
	}
	s.beginLocked()
	s.mu.Unlock()

	err := s.save(s.baseCtx)

	s.mu.Lock()
	s.finishLocked()
	if err != nil {
		s.failures++
		s.lastErr = err
		if s.failures >= s.maxFailures {
			s.disabled = true
			s.followUp = false
			s.disarmLocked()
			log.Printf("autosave %s: disabled after %d consecutive failures: %v", s.name, s.failures, err)
		} else {
			log.Printf("autosave %s: save failed (%d/%d), retrying: %v", s.name, s.failures, s.maxFailures, err)
			s.followUp = false
			s.armLocked()
		}
	} else {
		s.succeedLocked()
		s.followUpLocked()
	}
	status := s.statusLocked()
	s.mu.Unlock()

	s.notify(status)
}

func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.timer = s.afterFunc(s.delay, func() { s.fire(gen) })
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Scheduler) beginLocked() {
	s.inFlight = true
	s.done = make(chan struct{})
}

func (s *Scheduler) finishLocked() {
	s.inFlight = false
	close(s.done)
}

func (s *Scheduler) succeedLocked() {
	s.failures = 0
	s.disabled = false
	s.lastErr = nil
	s.lastSaved = s.now()
}

// followUpLocked arms one debounced save for a request captured while the
// previous save was in flight, unless a timer is already pending.
func (s *Scheduler) followUpLocked() {
	if !s.followUp {
		return
	}
	s.followUp = false
	if s.stopped || s.disabled || s.timer != nil {
		return
	}
	s.armLocked()
}

func (s *Scheduler) statusLocked() Status {
	return Status{
		Saving:    s.inFlight,
		Failures:  s.failures,
		Disabled:  s.disabled,
		LastError: s.lastErr,
		LastSaved: s.lastSaved,
	}
}

func (s *Scheduler) notify(status Status) {
	if s.onStatus != nil {
		s.onStatus(status)
	}
}
