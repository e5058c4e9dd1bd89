package pipeline

import "github.com/banshee-data/opticalflow/internal/flow"

// PixelPitchMM is the sensor pixel size before binning.
const PixelPitchMM = 0.006

// Rates are angular rates in rad/s.
type Rates struct {
	X, Y, Z float64
}

// RemapGyro converts sensor-frame gyro rates to the image frame. The gyro
// is mounted rotated by 90° relative to the imager.
func RemapGyro(sx, sy, sz float64) Rates {
	return Rates{X: sy, Y: -sx, Z: sz}
}

// FocalLengthPx converts a focal length in millimetres to pixels at the
// given binning.
func FocalLengthPx(focalMM float64, binning int) float64 {
	if binning <= 0 {
		binning = 1
	}
	return focalMM / (float64(binning) * PixelPitchMM)
}

// Compensate returns the image motion that rotation alone produces between
// two frames dt seconds apart.
func Compensate(r Rates, focalPx, dt float64) flow.Compensation {
	return flow.Compensation{
		XRatePx: -r.Y * focalPx * dt,
		YRatePx: r.X * focalPx * dt,
		ZRateFr: -r.Z * dt,
	}
}
