package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/opticalflow/internal/cache"
	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/config"
	"github.com/banshee-data/opticalflow/internal/flow"
)

// stubEstimator returns a fixed correspondence set and remembers what it
// was asked to compare.
type stubEstimator struct {
	name  string
	calls int
	prev  *camera.Image
	cur   *camera.Image
	comp  flow.Compensation
}

func (s *stubEstimator) Name() string { return s.name }
func (s *stubEstimator) NeedsPreprocessing() bool { return false }
func (s *stubEstimator) Preprocess(*camera.Image, *flow.Prepared) {}
func (s *stubEstimator) Capability() float64 { return 4 }
func (s *stubEstimator) Estimate(prev, cur flow.View, comp flow.Compensation, out []flow.Correspondence) int {
	s.calls++
	s.prev, s.cur, s.comp = prev.Image, cur.Image, comp
	n := len(out)
	for i := 0; i < n; i++ {
		out[i] = flow.Correspondence{AtX: i, AtY: i, X: 1, Y: 0, Quality: 1}
	}
	return n
}

func bufferPair(newBin, prevBin int) camera.Pair {
	return camera.Pair{
		&camera.Buffer{FrameNumber: 2, Param: camera.CaptureParams{Width: 8, Height: 8, Binning: newBin}, Image: *camera.NewImage(8, 8)},
		&camera.Buffer{FrameNumber: 1, Param: camera.CaptureParams{Width: 8, Height: 8, Binning: prevBin}, Image: *camera.NewImage(8, 8)},
	}
}

func TestDispatcher_Track(t *testing.T) {
	tests := []struct {
		name    string
		frames  []uint32
		dropped uint64
	}{
		{"contiguous", []uint32{1, 2, 3, 4}, 0},
		{"one gap", []uint32{10, 11, 13, 14}, 1},
		{"going backwards", []uint32{10, 9}, 0},
		{"repeat", []uint32{5, 5, 6}, 0},
		{"wraparound", []uint32{0xfffffffe, 0xffffffff, 1}, 1},
		{"first frame is the baseline", []uint32{500, 501}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(nil, nil)
			for _, f := range tt.frames {
				d.Track(f)
			}
			assert.Equal(t, tt.dropped, d.Dropped())
		})
	}
}

func TestDispatcher_Select(t *testing.T) {
	block, klt := &stubEstimator{name: "block"}, &stubEstimator{name: "klt"}
	d := NewDispatcher(block, klt)

	p := config.EmptyFlowConfig().Resolve()
	assert.Same(t, block, d.Select(&p))
	p.Algorithm = config.AlgorithmKLT
	assert.Same(t, klt, d.Select(&p))
}

func TestDispatcher_DefaultEstimators(t *testing.T) {
	d := NewDispatcher(nil, nil)
	assert.Equal(t, "block", d.Block.Name())
	assert.Equal(t, "klt", d.KLT.Name())
}

func TestDispatcher_EstimatePassesPreviousFirst(t *testing.T) {
	est := &stubEstimator{name: "block"}
	d := NewDispatcher(est, nil)
	pair := bufferPair(4, 4)
	lease := cache.New().Resolve(pair, est)

	out := make([]flow.Correspondence, flow.MaxCorrespondences)
	comp := flow.Compensation{XRatePx: 0.5}
	n := d.Estimate(est, pair, lease, comp, out)

	assert.Equal(t, flow.MaxCorrespondences, n)
	require.Equal(t, 1, est.calls)
	assert.Same(t, &pair.Previous().Image, est.prev)
	assert.Same(t, &pair.Newest().Image, est.cur)
	assert.Equal(t, comp, est.comp)
}

func TestDispatcher_BinningMismatchYieldsNothing(t *testing.T) {
	est := &stubEstimator{name: "block"}
	d := NewDispatcher(est, nil)
	pair := bufferPair(2, 4)
	lease := cache.New().Resolve(pair, est)

	out := make([]flow.Correspondence, flow.MaxCorrespondences)
	n := d.Estimate(est, pair, lease, flow.Compensation{}, out)
	assert.Zero(t, n)
	assert.Zero(t, est.calls)

	_, _, q := flow.Extract(out, n, 0.3, 0.5)
	assert.Zero(t, q)
}

func TestOutlierPolicy(t *testing.T) {
	p := config.EmptyFlowConfig().Resolve()
	ratio, floor := OutlierPolicy(&p)
	assert.Equal(t, p.OutlierThresholdRatio, ratio)
	assert.Equal(t, p.OutlierThresholdBlock, floor)

	p.Algorithm = config.AlgorithmKLT
	ratio, floor = OutlierPolicy(&p)
	assert.Equal(t, p.OutlierThresholdRatio, ratio)
	assert.Equal(t, p.OutlierThresholdKLT, floor)
}
