package flow

import "github.com/banshee-data/opticalflow/internal/camera"

// MaxCorrespondences bounds the number of raw results per frame pair.
const MaxCorrespondences = 32

// Correspondence is one candidate match between the previous and current
// image. (AtX, AtY) is the anchor in the previous image; (X, Y) is the
// displacement in pixels with the rotational component already removed.
// Quality <= 0 marks a rejected match.
type Correspondence struct {
	AtX     int
	AtY     int
	X       float64
	Y       float64
	Quality float64
}

// Compensation holds the rotation between two frames expressed in the
// image frame: pixel shifts for pitch/roll and radians for yaw.
type Compensation struct {
	XRatePx float64
	YRatePx float64
	ZRateFr float64
}

// At returns the predicted displacement caused by rotation for a point at
// offset (dx, dy) from the image centre.
func (c Compensation) At(dx, dy float64) (float64, float64) {
	return c.XRatePx - c.ZRateFr*dy, c.YRatePx + c.ZRateFr*dx
}

// View is what an estimator reads for one frame: the raw image and, for
// estimators that need it, the cached preprocessing of that image.
type View struct {
	Image    *camera.Image
	Prepared *Prepared
}

// Estimator is one flow-estimation strategy.
type Estimator interface {
	// Name identifies the strategy in logs and telemetry.
	Name() string
	// NeedsPreprocessing reports whether Estimate reads View.Prepared.
	NeedsPreprocessing() bool
	// Preprocess derives the cached representation of img into dst.
	Preprocess(img *camera.Image, dst *Prepared)
	// Estimate measures motion from prev to cur and writes at most len(out)
	// correspondences, returning how many were written.
	Estimate(prev, cur View, comp Compensation, out []Correspondence) int
	// Capability is the largest displacement, in pixels per frame, the
	// estimator can represent.
	Capability() float64
}
