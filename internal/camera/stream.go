package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/opticalflow/internal/timeutil"
)

// MinBuffers is the smallest pool that lets capture continue while a pair
// is on loan.
const MinBuffers = 3

// Buffer is one captured image plus its metadata.
type Buffer struct {
	// FrameNumber increases by one for every completed capture.
	FrameNumber uint32
	// Meta is owned by the consumer. The pipeline sets it to FrameNumber once
	// the frame has been seen, so Meta == FrameNumber marks a revisit.
	Meta      uint32
	Param     CaptureParams
	Timestamp time.Time
	Image     Image

	valid     bool
	loaned    bool
	capturing bool
}

// Pair is a loaned pair of buffers, newest first.
type Pair [2]*Buffer

// Newest returns the most recent frame of the pair.
func (p Pair) Newest() *Buffer { return p[0] }

// Previous returns the older frame of the pair.
func (p Pair) Previous() *Buffer { return p[1] }

// StreamStats counts capture-side events.
type StreamStats struct {
	Captured uint64 // frames completed
	Overruns uint64 // captures skipped because no buffer was free
	Pairs    uint64 // pairs handed to the consumer
}

// Stream is a fixed pool of image buffers with pair handoff.
type Stream struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	buffers  []Buffer
	capacity int
	param    CaptureParams

	nextFrame     uint32
	lastDelivered uint32
	delivered     bool

	lastBrightness float64
	stats          StreamStats
}

// NewStream allocates n buffers sized for param.
func NewStream(n int, param CaptureParams, clock timeutil.Clock) (*Stream, error) {
	if n < MinBuffers {
		return nil, fmt.Errorf("need at least %d buffers, got %d", MinBuffers, n)
	}
	capacity := param.Width * param.Height
	if err := param.Validate(capacity); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Stream{
		clock:     clock,
		buffers:   make([]Buffer, n),
		capacity:  capacity,
		param:     param,
		nextFrame: 1,
	}
	for i := range s.buffers {
		s.buffers[i].Image = Image{Pix: make([]uint8, capacity)}
	}
	return s, nil
}

// ScheduleParams applies new capture parameters to subsequent frames.
func (s *Stream) ScheduleParams(p CaptureParams) error {
	if err := p.Validate(s.capacity); err != nil {
		return err
	}
	s.mu.Lock()
	s.param = p
	s.mu.Unlock()
	return nil
}

// Params returns the parameters used for the next capture.
func (s *Stream) Params() CaptureParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.param
}

// newer reports whether frame number a was captured after b, tolerating
// wraparound.
func newer(a, b uint32) bool { return int32(a-b) > 0 }

// recent returns the indices of the two most recent valid buffers, or -1.
func (s *Stream) recent() (int, int) {
	first, second := -1, -1
	for i := range s.buffers {
		b := &s.buffers[i]
		if !b.valid || b.capturing {
			continue
		}
		switch {
		case first < 0 || newer(b.FrameNumber, s.buffers[first].FrameNumber):
			second = first
			first = i
		case second < 0 || newer(b.FrameNumber, s.buffers[second].FrameNumber):
			second = i
		}
	}
	return first, second
}

// claim picks the buffer to overwrite: an unused one if any, otherwise the
// oldest that is neither loaned nor one of the two most recent frames.
func (s *Stream) claim() int {
	first, second := s.recent()
	pick := -1
	for i := range s.buffers {
		b := &s.buffers[i]
		if b.loaned || b.capturing || i == first || i == second {
			continue
		}
		if !b.valid {
			return i
		}
		if pick < 0 || newer(s.buffers[pick].FrameNumber, b.FrameNumber) {
			pick = i
		}
	}
	return pick
}

// Capture fills the next free buffer using fill and publishes it as the
// newest frame. It returns false when every buffer is busy; the frame is
// dropped and counted as an overrun.
func (s *Stream) Capture(fill func(img *Image, param CaptureParams)) bool {
	s.mu.Lock()
	idx := s.claim()
	if idx < 0 {
		s.stats.Overruns++
		s.mu.Unlock()
		return false
	}
	b := &s.buffers[idx]
	b.capturing = true
	b.valid = false
	param := s.param
	b.Param = param
	b.Image.Width = param.Width
	b.Image.Height = param.Height
	b.Image.Pix = b.Image.Pix[:cap(b.Image.Pix)]
	s.mu.Unlock()

	fill(&b.Image, param)
	brightness := b.Image.Mean()

	s.mu.Lock()
	b.FrameNumber = s.nextFrame
	s.nextFrame++
	b.Timestamp = s.clock.Now()
	b.capturing = false
	b.valid = true
	s.lastBrightness = brightness
	s.stats.Captured++
	s.mu.Unlock()
	return true
}

// SkipFrame advances the frame counter without producing a buffer, the way
// a sensor frame lost in transfer does.
func (s *Stream) SkipFrame() {
	s.mu.Lock()
	s.nextFrame++
	s.mu.Unlock()
}

// TryGetPair loans the two most recent frames, newest first, when a frame
// newer than the last delivered one exists. It never blocks.
func (s *Stream) TryGetPair() (Pair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first, second := s.recent()
	if first < 0 || second < 0 {
		return Pair{}, false
	}
	a, b := &s.buffers[first], &s.buffers[second]
	if s.delivered && !newer(a.FrameNumber, s.lastDelivered) {
		return Pair{}, false
	}
	if a.loaned || b.loaned {
		return Pair{}, false
	}
	a.loaned = true
	b.loaned = true
	s.lastDelivered = a.FrameNumber
	s.delivered = true
	s.stats.Pairs++
	return Pair{a, b}, true
}

// ReturnPair releases a loaned pair. Nil entries are ignored.
func (s *Stream) ReturnPair(p Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range p {
		if b != nil {
			b.loaned = false
		}
	}
}

// LastBrightness returns the mean pixel value of the latest capture.
func (s *Stream) LastBrightness() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBrightness
}

// Stats returns a snapshot of the capture counters.
func (s *Stream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
