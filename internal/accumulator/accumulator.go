// Package accumulator integrates per-frame flow observations over an
// output window and renders the two telemetry views of that window.
package accumulator

import (
	"math"
	"time"
)

// InvalidDistance is the ground distance reported when no valid range
// measurement is available.
const InvalidDistance = -1.0

// FrameRecord is one resolved observation for a frame pair. Rates are in
// the image frame, rad/s.
type FrameRecord struct {
	Dt             float64 // seconds between the two frames
	DroppedDt      float64 // seconds between the previous pair and this one
	XRate          float64
	YRate          float64
	ZRate          float64
	GyroTemp       float64 // °C
	Quality        uint8
	PixelFlowX     float64 // px per frame, rotation removed
	PixelFlowY     float64
	RadPerPixel    float64
	GroundDistance float64 // metres, InvalidDistance when unknown
	DistanceAge    time.Duration
	MaxPxFrame     float64 // estimator capability, px per frame
}

// DistanceValid reports whether the record carries a usable ground distance.
func (r FrameRecord) DistanceValid() bool {
	return r.GroundDistance >= 0
}

// OutputFlow is the linear view of a window.
type OutputFlow struct {
	FlowX          int16   // integrated flow, deci-pixels
	FlowY          int16
	FlowCompMX     float64 // metric velocity, m/s
	FlowCompMY     float64
	Quality        uint8
	GroundDistance float64
	LowConfidence  bool
}

// OutputFlowRad is the integrated angular view of a window.
type OutputFlowRad struct {
	IntegrationTime   time.Duration
	IntegratedX       float64 // rad
	IntegratedY       float64
	IntegratedXGyro   float64 // rad
	IntegratedYGyro   float64
	IntegratedZGyro   float64
	Temperature       float64
	Quality           uint8
	TimeDeltaDistance time.Duration
	GroundDistance    float64
	LowConfidence     bool
}

// Accumulator folds FrameRecords into window sums. The zero value is an
// empty window. It is not safe for concurrent use.
type Accumulator struct {
	frames int
	valid  int

	fullTime  float64
	validTime float64
	distTime  float64

	pxX, pxY   float64
	radX, radY float64
	mX, mY     float64
	gyroX      float64
	gyroY      float64
	gyroZ      float64
	qualSum    int

	last     FrameRecord
	haveLast bool
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Valid reports whether r contributes to the flow sums: nonzero quality
// and flow inside the estimator's capability on both axes.
func Valid(r FrameRecord) bool {
	if r.Quality == 0 {
		return false
	}
	return math.Abs(r.PixelFlowX) < r.MaxPxFrame && math.Abs(r.PixelFlowY) < r.MaxPxFrame
}

// Feed adds one record to the window.
func (a *Accumulator) Feed(r FrameRecord) {
	a.last = r
	a.haveLast = true
	a.frames++
	a.fullTime += r.Dt + r.DroppedDt

	if !Valid(r) {
		return
	}
	a.valid++
	a.validTime += r.Dt
	a.qualSum += int(r.Quality)

	a.pxX += r.PixelFlowX
	a.pxY += r.PixelFlowY
	a.radX += r.PixelFlowX * r.RadPerPixel
	a.radY += r.PixelFlowY * r.RadPerPixel
	a.gyroX += r.XRate * r.Dt
	a.gyroY += r.YRate * r.Dt
	a.gyroZ += r.ZRate * r.Dt

	if r.DistanceValid() && r.Dt > 0 {
		a.mX += r.PixelFlowX * r.RadPerPixel * r.GroundDistance
		a.mY += r.PixelFlowY * r.RadPerPixel * r.GroundDistance
		a.distTime += r.Dt
	}
}

// Frames returns the number of records fed since the last Reset.
func (a *Accumulator) Frames() int { return a.frames }

// ValidFrames returns how many of those records contributed to the sums.
func (a *Accumulator) ValidFrames() int { return a.valid }

// confident applies the minimum valid ratio, in percent of fed frames.
func (a *Accumulator) confident(minValidPercent int) bool {
	if a.valid == 0 {
		return false
	}
	return a.valid*100 >= a.frames*minValidPercent
}

func (a *Accumulator) groundDistance() float64 {
	if !a.haveLast || !a.last.DistanceValid() {
		return InvalidDistance
	}
	return a.last.GroundDistance
}

func (a *Accumulator) quality() uint8 {
	return uint8(a.qualSum / a.valid)
}

// LinearOutput renders the window as integrated pixel flow plus metric
// velocity. Below the minimum valid ratio the flow is zero, the quality
// is zero and LowConfidence is set. The ground distance is always the
// latest one seen.
func (a *Accumulator) LinearOutput(minValidPercent int) OutputFlow {
	out := OutputFlow{GroundDistance: a.groundDistance()}
	if !a.confident(minValidPercent) {
		out.LowConfidence = true
		return out
	}
	out.FlowX = deci(a.pxX)
	out.FlowY = deci(a.pxY)
	out.Quality = a.quality()
	if a.distTime > 0 {
		out.FlowCompMX = a.mX / a.distTime
		out.FlowCompMY = a.mY / a.distTime
	}
	return out
}

// AngularOutput renders the window as integrated angles. The same
// confidence rule as LinearOutput applies; temperature and distance age
// come from the latest record regardless.
func (a *Accumulator) AngularOutput(minValidPercent int) OutputFlowRad {
	out := OutputFlowRad{GroundDistance: a.groundDistance()}
	if a.haveLast {
		out.Temperature = a.last.GyroTemp
		out.TimeDeltaDistance = a.last.DistanceAge
	}
	if !a.confident(minValidPercent) {
		out.LowConfidence = true
		return out
	}
	out.IntegrationTime = time.Duration(math.Round(a.validTime * float64(time.Second)))
	out.IntegratedX = a.radX
	out.IntegratedY = a.radY
	out.IntegratedXGyro = a.gyroX
	out.IntegratedYGyro = a.gyroY
	out.IntegratedZGyro = a.gyroZ
	out.Quality = a.quality()
	return out
}

// Reset empties the window.
func (a *Accumulator) Reset() {
	*a = Accumulator{}
}

func deci(px float64) int16 {
	v := math.Round(px * 10)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, v)))
}
