package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/flow"
)

// countingEstimator records every preprocessing call by the frame number
// written into the first pixel.
type countingEstimator struct {
	needs bool
	calls map[uint8]int
}

func newCounting(needs bool) *countingEstimator {
	return &countingEstimator{needs: needs, calls: map[uint8]int{}}
}

func (c *countingEstimator) Name() string             { return "counting" }
func (c *countingEstimator) NeedsPreprocessing() bool { return c.needs }
func (c *countingEstimator) Capability() float64      { return 1 }
func (c *countingEstimator) Preprocess(img *camera.Image, dst *flow.Prepared) {
	c.calls[img.Pix[0]]++
	dst.Levels[0].Width = int(img.Pix[0])
}
func (c *countingEstimator) Estimate(_, _ flow.View, _ flow.Compensation, _ []flow.Correspondence) int {
	return 0
}

func buffer(frame uint32) *camera.Buffer {
	b := &camera.Buffer{FrameNumber: frame, Image: *camera.NewImage(4, 4)}
	b.Image.Pix[0] = uint8(frame)
	return b
}

func TestResolve_NewPairPreprocessesBoth(t *testing.T) {
	m := New()
	e := newCounting(true)
	pair := camera.Pair{buffer(2), buffer(1)}

	l := m.Resolve(pair, e)

	assert.Equal(t, uint32(2), pair[0].Meta)
	assert.Equal(t, uint32(1), pair[1].Meta)
	assert.NotEqual(t, l.Handle(0), l.Handle(1))
	assert.Equal(t, 2, l.Prepared(0).Levels[0].Width)
	assert.Equal(t, 1, l.Prepared(1).Levels[0].Width)
	assert.Equal(t, map[uint8]int{1: 1, 2: 1}, e.calls)
}

func TestResolve_RevisitedFrameHitsCache(t *testing.T) {
	m := New()
	e := newCounting(true)
	b1, b2, b3 := buffer(1), buffer(2), buffer(3)

	m.Resolve(camera.Pair{b2, b1}, e)
	l := m.Resolve(camera.Pair{b3, b2}, e)

	assert.Equal(t, map[uint8]int{1: 1, 2: 1, 3: 1}, e.calls)
	assert.Equal(t, uint64(1), m.Stats().Hits)
	assert.Equal(t, 3, l.Prepared(0).Levels[0].Width)
	assert.Equal(t, 2, l.Prepared(1).Levels[0].Width)

	tag, ok := m.Tag(l.Handle(1))
	require.True(t, ok)
	assert.Equal(t, uint32(2), tag)
}

func TestResolve_MetaSetButSlotEvicted(t *testing.T) {
	m := New()
	e := newCounting(true)
	stale := buffer(7)
	stale.Meta = 7 // seen before, but no slot holds it

	l := m.Resolve(camera.Pair{buffer(8), stale}, e)
	assert.Equal(t, 1, e.calls[7])
	assert.NotNil(t, l.Prepared(1))
}

func TestResolve_SkipsWorkWithoutPreprocessing(t *testing.T) {
	m := New()
	e := newCounting(false)
	pair := camera.Pair{buffer(2), buffer(1)}

	l := m.Resolve(pair, e)

	assert.Empty(t, e.calls)
	assert.Equal(t, NoHandle, l.Handle(0))
	assert.Nil(t, l.Prepared(1))
	assert.Equal(t, uint32(2), pair[0].Meta, "meta still tracks the frame")

	v := l.View(pair, 0)
	assert.Same(t, &pair[0].Image, v.Image)
	assert.Nil(t, v.Prepared)
}

func TestResolve_StreamSequence(t *testing.T) {
	s, err := camera.NewStream(5, camera.CaptureParams{Width: 4, Height: 4, Binning: 1}, nil)
	require.NoError(t, err)
	m := New()
	e := newCounting(true)

	var frame uint8
	capture := func() {
		frame++
		n := frame
		require.True(t, s.Capture(func(img *camera.Image, _ camera.CaptureParams) { img.Pix[0] = n }))
	}

	capture()
	for cycle := 0; cycle < 40; cycle++ {
		// bursts of one to three frames between pairs
		for i := 0; i <= cycle%3; i++ {
			capture()
		}
		pair, ok := s.TryGetPair()
		require.True(t, ok)

		l := m.Resolve(pair, e)
		require.NotEqual(t, l.Handle(0), l.Handle(1), "cycle %d", cycle)
		for i := range pair {
			require.Equal(t, pair[i].Image.Pix[0], uint8(l.Prepared(i).Levels[0].Width))
		}
		s.ReturnPair(pair)
	}

	for id, n := range e.calls {
		assert.LessOrEqual(t, n, 1, "frame %d preprocessed %d times", id, n)
	}
	assert.Positive(t, m.Stats().Hits)
}
