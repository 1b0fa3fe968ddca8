// Package turn drives the countdown that ends each voting window. The
// scheduler owns no game state itself; on expiry it calls a resolve
// callback supplied by the owner and either restarts the countdown or
// stops for good.
package turn

import (
	"sync"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateResolving
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateResolving:
		return "resolving"
	case StateFinished:
		return "finished"
	default:
		return "idle"
	}
}

// ResolveFunc resolves one turn and reports whether the game concluded.
// It runs synchronously on the tick goroutine and receives the
// generation of the expired window; owners pass it back to Valid to
// detect a Reset that raced the resolve. It must not call back into
// the scheduler except through Valid.
type ResolveFunc func(gen int) (finished bool)

const defaultTick = 100 * time.Millisecond

// Scheduler counts one voting window down on a fixed cadence. The
// cadence is independent of the configured seconds-per-move.
type Scheduler struct {
	mu        sync.Mutex
	state     State
	interval  time.Duration
	remaining time.Duration
	tick      time.Duration
	gen       int // bumped by Reset to invalidate an in-flight resolve

	resolve ResolveFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a paused scheduler. Close must be called to release the
// tick goroutine.
func New(interval time.Duration, resolve ResolveFunc) *Scheduler {
	return newWithTick(interval, defaultTick, resolve)
}

func newWithTick(interval, tick time.Duration, resolve ResolveFunc) *Scheduler {
	s := &Scheduler{
		state:     StateIdle,
		interval:  interval,
		remaining: interval,
		tick:      tick,
		resolve:   resolve,
		stopCh:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.onTick()
		}
	}
}

func (s *Scheduler) onTick() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.remaining -= s.tick
	if s.remaining > 0 {
		s.mu.Unlock()
		return
	}
	s.state = StateResolving
	gen := s.gen
	s.mu.Unlock()

	finished := s.resolve(gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// Reset raced the resolve; its state wins.
		return
	}
	if finished {
		s.state = StateFinished
		s.remaining = 0
		return
	}
	s.remaining = s.interval
	s.state = StateRunning
}

// Start begins or resumes the countdown. No-op once Finished.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		s.state = StateRunning
	}
}

// Pause freezes the remaining time without resetting it.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StateIdle
	}
}

// Reset restores the full interval and pauses, from any state
// including Finished. An optional new interval takes effect when > 0.
func (s *Scheduler) Reset(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval > 0 {
		s.interval = interval
	}
	s.remaining = s.interval
	s.state = StateIdle
	s.gen++
}

// Valid reports whether the window identified by gen is still the
// current one, i.e. no Reset has happened since it expired.
func (s *Scheduler) Valid(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining reports the time left in the current window.
func (s *Scheduler) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Paused reports whether the countdown is currently frozen.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateIdle
}

// Close stops the tick goroutine. Idempotent.
func (s *Scheduler) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
