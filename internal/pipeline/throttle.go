package pipeline

import "time"

// ThroughputSamples is the frame-plus-drop count after which a window's
// frame rate is computed.
const ThroughputSamples = 100

// Throttler counts processing cycles and decides which ones emit.
type Throttler struct {
	counter uint32
}

// Next advances the cycle counter and reports whether the new value is a
// multiple of factor. A zero factor never emits; configuration rejects it
// before the pipeline starts.
func (t *Throttler) Next(factor uint32) (uint32, bool) {
	t.counter++
	if factor == 0 {
		return t.counter, false
	}
	return t.counter, t.counter%factor == 0
}

// Counter returns the current cycle counter.
func (t *Throttler) Counter() uint32 { return t.counter }

// Throughput tracks processed and skipped frames over a wall-time window.
type Throughput struct {
	frames  uint64
	skipped uint64
	start   time.Time
}

// NewThroughput starts a window at now.
func NewThroughput(now time.Time) Throughput {
	return Throughput{start: now}
}

// Add counts one processed frame and the frames skipped before it.
func (w *Throughput) Add(skipped uint64) {
	w.frames++
	w.skipped += skipped
}

// Sample returns frames and skipped frames per second once more than
// ThroughputSamples have been counted, then starts a new window at now.
func (w *Throughput) Sample(now time.Time) (fps, skippedPerSec float64, ok bool) {
	if w.frames+w.skipped <= ThroughputSamples {
		return 0, 0, false
	}
	secs := now.Sub(w.start).Seconds()
	if secs > 0 {
		fps = float64(w.frames) / secs
		skippedPerSec = float64(w.skipped) / secs
	}
	*w = Throughput{start: now}
	return fps, skippedPerSec, true
}
