package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		speedMPS float64
		unit     string
		want     float64
	}{
		{10, MPS, 10},
		{10, MPH, 22.3694},
		{10, KMPH, 36},
		{10, KPH, 36},
		{0.25, KPH, 0.9},
		{5, MPH, 11.1847},
		{0, MPH, 0},
		{10, "furlongs", 10},
	}
	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			assert.InDelta(t, tt.want, ConvertSpeed(tt.speedMPS, tt.unit), 1e-4)
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		assert.True(t, IsValid(u), u)
	}
	for _, u := range []string{"", "MPH", "Kph", "m/s", Degrees} {
		assert.False(t, IsValid(u), u)
	}
}

func TestGetValidUnitsString(t *testing.T) {
	assert.Equal(t, "mps, mph, kmph, kph", GetValidUnitsString())
}

func TestConvertAngle(t *testing.T) {
	assert.InDelta(t, 180, ConvertAngle(math.Pi, Degrees), 1e-9)
	assert.InDelta(t, -5.7296, ConvertAngle(-0.1, Degrees), 1e-4)
	assert.Equal(t, 0.25, ConvertAngle(0.25, Radians))
	assert.Equal(t, 0.25, ConvertAngle(0.25, "grad"))
}
