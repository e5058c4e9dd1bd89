package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemapGyro(t *testing.T) {
	assert.Equal(t, Rates{X: 2, Y: -1, Z: 3}, RemapGyro(1, 2, 3))
}

func TestFocalLengthPx(t *testing.T) {
	assert.InDelta(t, 16/0.024, FocalLengthPx(16, 4), 1e-9)
	assert.InDelta(t, 16/0.006, FocalLengthPx(16, 1), 1e-9)
	assert.InDelta(t, 16/0.006, FocalLengthPx(16, 0), 1e-9, "binning below 1 treated as 1")
}

func TestCompensate(t *testing.T) {
	r := RemapGyro(1, 2, 3)
	c := Compensate(r, 100, 0.01)

	// x_rate_px = -y*f*dt, y_rate_px = x*f*dt, z = -z*dt
	assert.InDelta(t, 1, c.XRatePx, 1e-12)
	assert.InDelta(t, 2, c.YRatePx, 1e-12)
	assert.InDelta(t, -0.03, c.ZRateFr, 1e-12)
}

func TestCompensate_NoRotation(t *testing.T) {
	c := Compensate(Rates{}, 666, 0.02)
	assert.Zero(t, c.XRatePx)
	assert.Zero(t, c.YRatePx)
	assert.Zero(t, c.ZRateFr)
}
