package accumulator

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func record(q uint8, fx, fy float64) FrameRecord {
	return FrameRecord{
		Dt:             0.01,
		DroppedDt:      0.002,
		XRate:          0.5,
		YRate:          -0.5,
		ZRate:          1,
		GyroTemp:       31.5,
		Quality:        q,
		PixelFlowX:     fx,
		PixelFlowY:     fy,
		RadPerPixel:    0.01,
		GroundDistance: 2,
		DistanceAge:    40 * time.Millisecond,
		MaxPxFrame:     4,
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		r    FrameRecord
		want bool
	}{
		{"good", record(200, 1, -1), true},
		{"zero quality", record(0, 1, -1), false},
		{"x beyond capability", record(200, 4, 0), false},
		{"y beyond capability", record(200, 0, -5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.r))
		})
	}
}

func TestLinearOutput(t *testing.T) {
	a := New()
	for i := 0; i < 4; i++ {
		a.Feed(record(100, 1.5, -0.5))
	}
	a.Feed(record(0, 3, 3))

	got := a.LinearOutput(50)
	want := OutputFlow{
		FlowX:          60,
		FlowY:          -20,
		FlowCompMX:     1.5 * 0.01 * 2 / 0.01,
		FlowCompMY:     -0.5 * 0.01 * 2 / 0.01,
		Quality:        100,
		GroundDistance: 2,
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(x, y float64) bool { return x-y < 1e-9 && y-x < 1e-9 })); diff != "" {
		t.Errorf("LinearOutput mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5, a.Frames())
	assert.Equal(t, 4, a.ValidFrames())
}

func TestAngularOutput(t *testing.T) {
	a := New()
	a.Feed(record(80, 1, 2))
	a.Feed(record(120, 1, 2))

	got := a.AngularOutput(50)
	assert.False(t, got.LowConfidence)
	assert.Equal(t, 20*time.Millisecond, got.IntegrationTime)
	assert.InDelta(t, 0.02, got.IntegratedX, 1e-12)
	assert.InDelta(t, 0.04, got.IntegratedY, 1e-12)
	assert.InDelta(t, 0.01, got.IntegratedXGyro, 1e-12)
	assert.InDelta(t, -0.01, got.IntegratedYGyro, 1e-12)
	assert.InDelta(t, 0.02, got.IntegratedZGyro, 1e-12)
	assert.Equal(t, uint8(100), got.Quality)
	assert.Equal(t, 31.5, got.Temperature)
	assert.Equal(t, 40*time.Millisecond, got.TimeDeltaDistance)
}

func TestLowConfidence(t *testing.T) {
	a := New()
	a.Feed(record(100, 1, 1))
	a.Feed(record(0, 1, 1))
	a.Feed(record(0, 1, 1))

	// 1 of 3 valid is 33%
	lin := a.LinearOutput(50)
	assert.True(t, lin.LowConfidence)
	assert.Zero(t, lin.FlowX)
	assert.Zero(t, lin.Quality)
	assert.Equal(t, 2.0, lin.GroundDistance, "distance is forwarded regardless")

	rad := a.AngularOutput(50)
	assert.True(t, rad.LowConfidence)
	assert.Zero(t, rad.IntegratedX)

	assert.False(t, a.LinearOutput(30).LowConfidence)
}

func TestInvalidDistance(t *testing.T) {
	a := New()
	r := record(150, 1, 1)
	r.GroundDistance = InvalidDistance
	a.Feed(r)

	out := a.LinearOutput(0)
	assert.False(t, out.LowConfidence)
	assert.Equal(t, int16(10), out.FlowX)
	assert.Zero(t, out.FlowCompMX, "no metric flow without distance")
	assert.Equal(t, InvalidDistance, out.GroundDistance)
}

func TestResetLaw(t *testing.T) {
	empty := New()
	wantLin := empty.LinearOutput(50)
	wantRad := empty.AngularOutput(50)
	assert.True(t, wantLin.LowConfidence)
	assert.Equal(t, InvalidDistance, wantLin.GroundDistance)

	a := New()
	for i := 0; i < 10; i++ {
		a.Feed(record(200, 0.5, 0.5))
	}
	first := a.LinearOutput(50)
	assert.False(t, first.LowConfidence)

	a.Reset()
	if diff := cmp.Diff(wantLin, a.LinearOutput(50)); diff != "" {
		t.Errorf("linear after reset (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantRad, a.AngularOutput(50)); diff != "" {
		t.Errorf("angular after reset (-want +got):\n%s", diff)
	}
	assert.Zero(t, a.Frames())
}

func TestDeciSaturates(t *testing.T) {
	assert.Equal(t, int16(32767), deci(1e6))
	assert.Equal(t, int16(-32768), deci(-1e6))
	assert.Equal(t, int16(-12), deci(-1.2))
}
