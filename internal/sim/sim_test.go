package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/serialmux"
)

func TestFloor_Translates(t *testing.T) {
	a := camera.NewImage(32, 32)
	b := camera.NewImage(32, 32)
	f := Floor{Contrast: 1}
	f.Render(a, 0, 0)
	f.Render(b, 3, 2)

	for y := 2; y < 32; y++ {
		for x := 3; x < 32; x++ {
			require.Equal(t, a.At(x-3, y-2), b.At(x, y))
		}
	}

	Floor{}.Render(a, 0, 0)
	assert.Equal(t, uint8(128), a.At(5, 5))
}

func TestCamera_CapturesPairs(t *testing.T) {
	s, err := camera.NewStream(5, camera.CaptureParams{Width: 16, Height: 16, Binning: 4}, nil)
	require.NoError(t, err)
	c := NewCamera(s, 1, 0)

	require.True(t, c.CaptureOne())
	require.True(t, c.CaptureOne())
	pair, ok := s.TryGetPair()
	require.True(t, ok)
	assert.Equal(t, pair.Previous().Image.At(4, 4), pair.Newest().Image.At(5, 4))
	s.ReturnPair(pair)
}

func TestRangefinder(t *testing.T) {
	r := NewRangefinder(1.5, 0, 1)
	_, ok, _ := r.Readback()
	assert.False(t, ok)

	require.NoError(t, r.Trigger())
	v, ok, err := r.Readback()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)
}

func TestGyroAndLED(t *testing.T) {
	x, y, z, temp := Gyro{X: 1, Y: 2, Z: 3, Temp: 25}.Read()
	assert.Equal(t, []float64{1, 2, 3, 25}, []float64{x, y, z, temp})

	var led LED
	led.SetStatus(0.5)
	led.SetStatus(0.55)
	assert.Equal(t, 0.5, led.Level(), "small changes are ignored")
	led.SetStatus(0.9)
	assert.Equal(t, 0.9, led.Level())
}

func TestNeighbourFlow(t *testing.T) {
	gen := NeighbourFlow(3)
	line := gen()
	assert.Equal(t, serialmux.LineFlow, serialmux.ClassifyLine(line))
	assert.Contains(t, line, `"sensor_id":3`)
}
