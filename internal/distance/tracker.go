// Package distance polls a range sensor and keeps the latest raw and
// low-pass filtered ground distance.
package distance

import (
	"sync"
	"time"

	"github.com/banshee-data/opticalflow/internal/monitoring"
	"github.com/banshee-data/opticalflow/internal/timeutil"
)

// Valid measurement range in metres.
const (
	MinDistance = 0.3
	MaxDistance = 10.0
)

// DefaultAlpha is the weight of a new sample in the filtered value.
const DefaultAlpha = 0.3

// Driver is a range sensor that measures on request.
type Driver interface {
	// Trigger starts a measurement.
	Trigger() error
	// Readback returns the last completed measurement in metres; ok is
	// false when none completed since the previous Readback.
	Readback() (meters float64, ok bool, err error)
}

// Tracker alternates Trigger and Readback on each Poll and filters the
// results. Read and Age may be called from other goroutines.
type Tracker struct {
	driver Driver
	clock  timeutil.Clock
	alpha  float64

	triggered bool // Poll state: next call reads back

	mu       sync.Mutex
	raw      float64
	filtered float64
	valid    bool
	primed   bool
	measured time.Time

	errors monitoring.Counter
}

// NewTracker returns a Tracker over driver. alpha outside (0, 1] uses
// DefaultAlpha; a nil clock uses the real clock.
func NewTracker(driver Driver, clock timeutil.Clock, alpha float64) *Tracker {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{driver: driver, clock: clock, alpha: alpha}
}

// Poll runs one step of the trigger/readback cycle. It is the body of the
// distance scheduler task.
func (t *Tracker) Poll(time.Time) {
	if !t.triggered {
		t.triggered = true
		if err := t.driver.Trigger(); err != nil {
			t.logError("trigger", err)
		}
		return
	}
	t.triggered = false

	m, ok, err := t.driver.Readback()
	if err != nil {
		t.logError("readback", err)
		return
	}
	if ok {
		t.Update(m)
	}
}

// Update records one measurement. Values outside [MinDistance,
// MaxDistance] mark the distance invalid and leave the filter untouched.
func (t *Tracker) Update(m float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.measured = t.clock.Now()
	if m < MinDistance || m > MaxDistance {
		t.valid = false
		return
	}
	t.raw = m
	if !t.primed {
		t.filtered = m
		t.primed = true
	} else {
		t.filtered += t.alpha * (m - t.filtered)
	}
	t.valid = true
}

// Read returns the filtered and raw distance and whether the last
// measurement was valid.
func (t *Tracker) Read() (filtered, raw float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filtered, t.raw, t.valid
}

// Age returns the time since the last measurement, valid or not. It is
// zero before the first one.
func (t *Tracker) Age() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.measured.IsZero() {
		return 0
	}
	return t.clock.Since(t.measured)
}

// Ground returns the distance to report: -1 when invalid, otherwise the
// filtered or raw value.
func (t *Tracker) Ground(useFiltered bool) float64 {
	filtered, raw, ok := t.Read()
	switch {
	case !ok:
		return -1
	case useFiltered:
		return filtered
	}
	return raw
}

func (t *Tracker) logError(op string, err error) {
	if n, log := t.errors.Inc(50); log {
		monitoring.Logf("distance: %s failed (%d errors): %v", op, n, err)
	}
}
