package pipeline

import (
	"github.com/banshee-data/opticalflow/internal/cache"
	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/config"
	"github.com/banshee-data/opticalflow/internal/flow"
)

// Dispatcher selects the estimator for a cycle, runs it and keeps the
// frame-continuity count.
type Dispatcher struct {
	Block flow.Estimator
	KLT   flow.Estimator

	lastFrame uint32
	seen      bool
	dropped   uint64
}

// NewDispatcher returns a Dispatcher over the two estimators. Nil
// estimators get the default tuning.
func NewDispatcher(block, klt flow.Estimator) *Dispatcher {
	if block == nil {
		block = flow.NewBlockMatcher(flow.DefaultBlockParams())
	}
	if klt == nil {
		klt = flow.NewKLT(flow.DefaultKLTParams())
	}
	return &Dispatcher{Block: block, KLT: klt}
}

// Select returns the estimator chosen by p.
func (d *Dispatcher) Select(p *config.Params) flow.Estimator {
	if p.UseKLT() {
		return d.KLT
	}
	return d.Block
}

// Track records the newest frame number and returns how many frames were
// skipped since the previous one. A number that does not advance counts
// as no gap. The first frame seen is the baseline, so frames before it
// are never counted as dropped.
func (d *Dispatcher) Track(frame uint32) uint64 {
	if !d.seen {
		d.seen = true
		d.lastFrame = frame
		return 0
	}
	gap := int64(int32(frame - d.lastFrame))
	d.lastFrame = frame
	if gap <= 1 {
		return 0
	}
	skipped := uint64(gap - 1)
	d.dropped += skipped
	return skipped
}

// Dropped returns the total frames skipped since creation.
func (d *Dispatcher) Dropped() uint64 { return d.dropped }

// Estimate runs e on the pair, previous frame first. Frames captured at
// different binning yield no correspondences.
func (d *Dispatcher) Estimate(e flow.Estimator, pair camera.Pair, lease cache.Lease, comp flow.Compensation, out []flow.Correspondence) int {
	if pair.Newest().Param.Binning != pair.Previous().Param.Binning {
		return 0
	}
	if len(out) > flow.MaxCorrespondences {
		out = out[:flow.MaxCorrespondences]
	}
	return e.Estimate(lease.View(pair, 1), lease.View(pair, 0), comp, out)
}

// OutlierPolicy returns the relative outlier ratio and the absolute
// minimum threshold of the selected algorithm.
func OutlierPolicy(p *config.Params) (ratio, minThreshold float64) {
	if p.UseKLT() {
		return p.OutlierThresholdRatio, p.OutlierThresholdKLT
	}
	return p.OutlierThresholdRatio, p.OutlierThresholdBlock
}
