// Package units converts the metric quantities recorded with flow windows
// into display units.
package units

import (
	"math"
	"strings"
)

// Speed units. Ground speed is stored in m/s.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid speed units.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if unit is a speed unit.
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns the speed units for error messages.
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed in m/s to targetUnits. Unknown units
// leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.23694
	case KMPH, KPH:
		return speedMPS * 3.6
	}
	return speedMPS
}

// Angle units for integrated flow and gyro angles, stored in radians.
const (
	Radians = "rad"
	Degrees = "deg"
)

// ConvertAngle converts radians to targetUnits. Unknown units leave the
// value in radians.
func ConvertAngle(rad float64, targetUnits string) float64 {
	if targetUnits == Degrees {
		return rad * 180 / math.Pi
	}
	return rad
}
