// Package cache keeps the preprocessed form of the two most recent frames
// so an estimator that needs preprocessing does the work once per frame.
package cache

import (
	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/flow"
)

// Slots is the number of preprocessed images kept.
const Slots = 2

// Handle names one slot of a Manager.
type Handle int

// NoHandle marks a pair position without a slot.
const NoHandle Handle = -1

type slot struct {
	tag      uint32
	assigned bool
	prepared flow.Prepared
}

// Stats counts cache outcomes since the Manager was created.
type Stats struct {
	Hits         uint64
	Preprocessed uint64
}

// Manager owns exactly Slots preprocessed images. Storage is allocated once
// and overwritten in place. A Manager is used from one goroutine.
type Manager struct {
	slots [Slots]slot
	stats Stats
}

// New returns a Manager with every slot unassigned.
func New() *Manager {
	return &Manager{}
}

// Lease is the slot assignment for one processing cycle. Position i of the
// lease matches position i of the camera.Pair it was resolved for. A slot
// is referenced by at most one position.
type Lease struct {
	m       *Manager
	handles [2]Handle
	inUse   [Slots]bool
}

// Resolve assigns slots to both buffers of pair. Each buffer's Meta is set
// to its frame number. A buffer whose Meta already matched is looked up by
// tag; anything not found is preprocessed into the first slot not already
// taken this cycle. Slot work is skipped when e does not need
// preprocessing; Meta is still updated.
func (m *Manager) Resolve(pair camera.Pair, e flow.Estimator) Lease {
	l := Lease{m: m, handles: [2]Handle{NoHandle, NoHandle}}
	usePrepared := e != nil && e.NeedsPreprocessing()

	for i, b := range pair {
		if b == nil {
			continue
		}
		if b.Meta != b.FrameNumber {
			b.Meta = b.FrameNumber
			continue
		}
		if !usePrepared {
			continue
		}
		for j := range m.slots {
			if !l.inUse[j] && m.slots[j].assigned && m.slots[j].tag == b.FrameNumber {
				l.take(i, Handle(j))
				m.stats.Hits++
				break
			}
		}
	}
	if !usePrepared {
		return l
	}

	for i, b := range pair {
		if b == nil || l.handles[i] != NoHandle {
			continue
		}
		h := l.free()
		if h == NoHandle {
			// unreachable with two buffers and two slots
			continue
		}
		l.take(i, h)
		s := &m.slots[h]
		e.Preprocess(&b.Image, &s.prepared)
		s.tag = b.FrameNumber
		s.assigned = true
		m.stats.Preprocessed++
	}
	return l
}

func (l *Lease) take(i int, h Handle) {
	l.handles[i] = h
	l.inUse[h] = true
}

func (l *Lease) free() Handle {
	for j := range l.inUse {
		if !l.inUse[j] {
			return Handle(j)
		}
	}
	return NoHandle
}

// Handle returns the slot assigned to pair position i, or NoHandle.
func (l Lease) Handle(i int) Handle {
	if i < 0 || i >= len(l.handles) {
		return NoHandle
	}
	return l.handles[i]
}

// Prepared returns the preprocessed image for pair position i, or nil.
func (l Lease) Prepared(i int) *flow.Prepared {
	h := l.Handle(i)
	if h == NoHandle || l.m == nil {
		return nil
	}
	return &l.m.slots[h].prepared
}

// View returns what an estimator reads for position i of pair.
func (l Lease) View(pair camera.Pair, i int) flow.View {
	v := flow.View{Prepared: l.Prepared(i)}
	if b := pair[i]; b != nil {
		v.Image = &b.Image
	}
	return v
}

// Tag reports the frame number held by slot h.
func (m *Manager) Tag(h Handle) (uint32, bool) {
	if h < 0 || int(h) >= Slots {
		return 0, false
	}
	return m.slots[h].tag, m.slots[h].assigned
}

// Stats returns the cache counters.
func (m *Manager) Stats() Stats {
	return m.stats
}
