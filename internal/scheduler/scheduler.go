// Package scheduler limits how long callbacks may run back-to-back inside one
// host task. Once the accumulated time since the last task boundary exceeds
// the budget, further callbacks are deferred into a fresh host task. This only
// affects latency and fairness, never which callbacks run.
package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var deferralsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "modloader_scheduler_deferrals_total",
		Help: "Number of times pending callbacks were moved into a new host task.",
	},
)

func init() {
	prometheus.MustRegister(deferralsTotal)
}

// Poster starts fn in a new host task.
type Poster interface {
	Post(fn func())
}

// Scheduler runs callbacks inline until the task budget is used up. It is not
// safe for concurrent use; all calls happen on the host thread.
type Scheduler struct {
	budget    time.Duration
	poster    Poster
	now       func() time.Time
	taskStart time.Time
	queue     []func()
	// draining is set while a flush is scheduled or running.
	draining bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a scheduler. A negative budget runs every callback inline; a
// zero budget runs every callback in its own task.
func New(budget time.Duration, poster Poster, opts ...Option) *Scheduler {
	s := &Scheduler{
		budget: budget,
		poster: poster,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Budget returns the configured task budget.
func (s *Scheduler) Budget() time.Duration { return s.budget }

// MarkTaskStart records that a new host task has begun.
func (s *Scheduler) MarkTaskStart() {
	s.taskStart = s.now()
}

// Run executes fn now if the current task is still within budget, otherwise
// queues it for a later task. Queued callbacks keep their order.
func (s *Scheduler) Run(fn func()) {
	if s.budget < 0 {
		fn()
		return
	}
	if s.taskStart.IsZero() {
		s.taskStart = s.now()
	}
	if !s.draining && len(s.queue) == 0 && s.budget > 0 && s.now().Sub(s.taskStart) < s.budget {
		fn()
		return
	}
	s.queue = append(s.queue, fn)
	if !s.draining {
		s.postFlush()
	}
}

// Wrap returns a function that routes each invocation of fn through Run.
func (s *Scheduler) Wrap(fn func()) func() {
	return func() { s.Run(fn) }
}

// Pending returns the number of queued callbacks.
func (s *Scheduler) Pending() int { return len(s.queue) }

func (s *Scheduler) postFlush() {
	s.draining = true
	deferralsTotal.Inc()
	s.poster.Post(s.flush)
}

func (s *Scheduler) flush() {
	s.taskStart = s.now()
	for len(s.queue) > 0 {
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		fn()
		if len(s.queue) > 0 && (s.budget == 0 || s.now().Sub(s.taskStart) >= s.budget) {
			s.postFlush()
			return
		}
	}
	s.draining = false
}
