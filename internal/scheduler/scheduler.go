// Package scheduler runs fixed-period housekeeping tasks from the main
// loop. Tasks run synchronously inside Tick and never overlap.
package scheduler

import (
	"fmt"
	"time"

	"github.com/banshee-data/opticalflow/internal/monitoring"
)

// Task is one periodic callback.
type Task func(now time.Time)

type entry struct {
	name   string
	period time.Duration
	// periodFn, when set, is read after every run to pick the next period.
	periodFn func() time.Duration
	task     Task
	next     time.Time
	runs     uint64
}

// Scheduler holds (task, period) entries. It is driven by Tick from a
// single goroutine.
type Scheduler struct {
	entries []*entry
	started bool
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Every registers task to run every period. The first run is one period
// after the first Tick.
func (s *Scheduler) Every(name string, period time.Duration, task Task) error {
	if period <= 0 {
		return fmt.Errorf("task %q: period must be positive, got %v", name, period)
	}
	s.entries = append(s.entries, &entry{name: name, period: period, task: task})
	return nil
}

// EveryDynamic registers task with a period re-read from periodFn after
// every run, so a changed parameter takes effect on the next interval.
func (s *Scheduler) EveryDynamic(name string, periodFn func() time.Duration, task Task) error {
	p := periodFn()
	if p <= 0 {
		return fmt.Errorf("task %q: period must be positive, got %v", name, p)
	}
	s.entries = append(s.entries, &entry{name: name, period: p, periodFn: periodFn, task: task})
	return nil
}

// Tick runs every task whose deadline has passed, in registration order.
// A task late by more than one period runs once and is rescheduled from
// now rather than replayed.
func (s *Scheduler) Tick(now time.Time) {
	if !s.started {
		for _, e := range s.entries {
			e.next = now.Add(e.period)
		}
		s.started = true
		return
	}
	for _, e := range s.entries {
		if e.next.IsZero() {
			e.next = now.Add(e.period)
			continue
		}
		if now.Before(e.next) {
			continue
		}
		e.task(now)
		e.runs++
		if e.periodFn != nil {
			if p := e.periodFn(); p > 0 {
				e.period = p
			} else {
				monitoring.Logf("scheduler: task %q returned period %v, keeping %v", e.name, p, e.period)
			}
		}
		e.next = e.next.Add(e.period)
		if !e.next.After(now) {
			e.next = now.Add(e.period)
		}
	}
}

// Runs reports how often the named task has run.
func (s *Scheduler) Runs(name string) uint64 {
	for _, e := range s.entries {
		if e.name == name {
			return e.runs
		}
	}
	return 0
}

// Period reports the current period of the named task.
func (s *Scheduler) Period(name string) (time.Duration, bool) {
	for _, e := range s.entries {
		if e.name == name {
			return e.period, true
		}
	}
	return 0, false
}
