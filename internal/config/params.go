package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnknownParam is returned for parameter names not in the table.
var ErrUnknownParam = errors.New("unknown parameter")

// Params is the resolved, read-mostly parameter snapshot consumed by the
// pipeline. It is mutated only by inbound parameter writes, on the same
// goroutine that runs the pipeline.
type Params struct {
	Algorithm             string
	OutlierThresholdRatio float64
	OutlierThresholdBlock float64
	OutlierThresholdKLT   float64
	MinValidRatio         int

	FocalLengthMM float64
	ImageWidth    int
	Binning       int

	SensorID             int
	SerialThrottleFactor uint32
	VideoRate            time.Duration
	USBSendVideo         bool
	USBSendFlow          bool
	USBSendQualZero      bool
	USBSendGyro          bool
	SystemSendState      bool

	SonarFiltered bool
}

// Resolve builds a Params snapshot, applying defaults for unset fields.
// Call Validate first; Resolve itself never fails.
func (c *FlowConfig) Resolve() Params {
	return Params{
		Algorithm:             c.GetAlgorithm(),
		OutlierThresholdRatio: c.GetOutlierThresholdRatio(),
		OutlierThresholdBlock: c.GetOutlierThresholdBlock(),
		OutlierThresholdKLT:   c.GetOutlierThresholdKLT(),
		MinValidRatio:         c.GetMinValidRatio(),
		FocalLengthMM:         c.GetFocalLengthMM(),
		ImageWidth:            c.GetImageWidth(),
		Binning:               c.GetBinning(),
		SensorID:              c.GetSensorID(),
		SerialThrottleFactor:  uint32(c.GetSerialThrottleFactor()),
		VideoRate:             time.Duration(c.GetVideoRateMS()) * time.Millisecond,
		USBSendVideo:          c.GetUSBSendVideo(),
		USBSendFlow:           c.GetUSBSendFlow(),
		USBSendQualZero:       c.GetUSBSendQualZero(),
		USBSendGyro:           c.GetUSBSendGyro(),
		SystemSendState:       c.GetSystemSendState(),
		SonarFiltered:         c.GetSonarFiltered(),
	}
}

// UseKLT reports whether the feature-tracking estimator is selected.
func (p *Params) UseKLT() bool { return p.Algorithm == AlgorithmKLT }

// Validate checks the invariants the pipeline relies on.
func (p *Params) Validate() error {
	if p.SerialThrottleFactor == 0 {
		return ErrZeroThrottle
	}
	if p.Algorithm != AlgorithmBlock && p.Algorithm != AlgorithmKLT {
		return fmt.Errorf("unknown algorithm %q", p.Algorithm)
	}
	if p.FocalLengthMM <= 0 {
		return fmt.Errorf("focal length must be positive, got %f", p.FocalLengthMM)
	}
	return nil
}

// Parameter values travel as float32-compatible numbers on the telemetry
// link; booleans are nonzero/zero and the algorithm is 0 (block) or 1 (klt).
type paramEntry struct {
	name string
	get  func(*Params) float64
	set  func(*Params, float64) error
}

func boolParam(name string, field func(*Params) *bool) paramEntry {
	return paramEntry{
		name: name,
		get: func(p *Params) float64 {
			if *field(p) {
				return 1
			}
			return 0
		},
		set: func(p *Params, v float64) error {
			*field(p) = v != 0
			return nil
		},
	}
}

// wholeIn reports whether v is an integer in [lo, hi]. NaN is never.
func wholeIn(v, lo, hi float64) bool {
	return v >= lo && v <= hi && v == math.Trunc(v)
}

func nonNegative(name string, field func(*Params) *float64) paramEntry {
	return paramEntry{
		name: name,
		get:  func(p *Params) float64 { return *field(p) },
		set: func(p *Params, v float64) error {
			if v < 0 || math.IsNaN(v) {
				return fmt.Errorf("%s must be non-negative, got %g", name, v)
			}
			*field(p) = v
			return nil
		},
	}
}

var paramTable = []paramEntry{
	{
		name: "algorithm",
		get: func(p *Params) float64 {
			if p.UseKLT() {
				return 1
			}
			return 0
		},
		set: func(p *Params, v float64) error {
			switch v {
			case 0:
				p.Algorithm = AlgorithmBlock
			case 1:
				p.Algorithm = AlgorithmKLT
			default:
				return fmt.Errorf("algorithm must be 0 (block) or 1 (klt), got %g", v)
			}
			return nil
		},
	},
	nonNegative("outlier_threshold_ratio", func(p *Params) *float64 { return &p.OutlierThresholdRatio }),
	nonNegative("outlier_threshold_block", func(p *Params) *float64 { return &p.OutlierThresholdBlock }),
	nonNegative("outlier_threshold_klt", func(p *Params) *float64 { return &p.OutlierThresholdKLT }),
	{
		name: "min_valid_ratio",
		get:  func(p *Params) float64 { return float64(p.MinValidRatio) },
		set: func(p *Params, v float64) error {
			if !(v >= 0 && v <= 100) {
				return fmt.Errorf("min_valid_ratio must be between 0 and 100, got %g", v)
			}
			p.MinValidRatio = int(v)
			return nil
		},
	},
	{
		name: "focal_length_mm",
		get:  func(p *Params) float64 { return p.FocalLengthMM },
		set: func(p *Params, v float64) error {
			if v <= 0 || math.IsNaN(v) {
				return fmt.Errorf("focal_length_mm must be positive, got %g", v)
			}
			p.FocalLengthMM = v
			return nil
		},
	},
	{
		name: "binning",
		get:  func(p *Params) float64 { return float64(p.Binning) },
		set: func(p *Params, v float64) error {
			switch v {
			case 1, 2, 4:
				p.Binning = int(v)
				return nil
			}
			return fmt.Errorf("binning must be 1, 2 or 4, got %g", v)
		},
	},
	{
		name: "sensor_id",
		get:  func(p *Params) float64 { return float64(p.SensorID) },
		set: func(p *Params, v float64) error {
			if !wholeIn(v, 0, math.MaxUint8) {
				return fmt.Errorf("sensor_id must be an integer in 0..255, got %g", v)
			}
			p.SensorID = int(v)
			return nil
		},
	},
	{
		name: "serial_throttle_factor",
		get:  func(p *Params) float64 { return float64(p.SerialThrottleFactor) },
		set: func(p *Params, v float64) error {
			if !wholeIn(v, 1, math.MaxUint32) {
				return fmt.Errorf("%w, got %g", ErrZeroThrottle, v)
			}
			p.SerialThrottleFactor = uint32(v)
			return nil
		},
	},
	{
		name: "video_rate_ms",
		get:  func(p *Params) float64 { return float64(p.VideoRate / time.Millisecond) },
		set: func(p *Params, v float64) error {
			if !wholeIn(v, 1, math.MaxUint32) {
				return fmt.Errorf("video_rate_ms must be an integer in 1..%d, got %g", uint32(math.MaxUint32), v)
			}
			p.VideoRate = time.Duration(v) * time.Millisecond
			return nil
		},
	},
	boolParam("usb_send_video", func(p *Params) *bool { return &p.USBSendVideo }),
	boolParam("usb_send_flow", func(p *Params) *bool { return &p.USBSendFlow }),
	boolParam("usb_send_qual_0", func(p *Params) *bool { return &p.USBSendQualZero }),
	boolParam("usb_send_gyro", func(p *Params) *bool { return &p.USBSendGyro }),
	boolParam("system_send_state", func(p *Params) *bool { return &p.SystemSendState }),
	boolParam("sonar_filtered", func(p *Params) *bool { return &p.SonarFiltered }),
}

// ParamCount returns the number of transmittable parameters.
func ParamCount() int { return len(paramTable) }

// ParamAt returns the name and current value of the i-th parameter; ok is
// false when i is outside 0..ParamCount()-1.
func (p *Params) ParamAt(i int) (name string, v float64, ok bool) {
	if i < 0 || i >= len(paramTable) {
		return "", 0, false
	}
	e := paramTable[i]
	return e.name, e.get(p), true
}

// ParamIndex returns the table index of name, or -1.
func ParamIndex(name string) int {
	for i, e := range paramTable {
		if e.name == name {
			return i
		}
	}
	return -1
}

// Get returns the current value of the named parameter.
func (p *Params) Get(name string) (float64, error) {
	i := ParamIndex(name)
	if i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return paramTable[i].get(p), nil
}

// Set validates and applies a new value. On error the previous value is kept.
func (p *Params) Set(name string, v float64) error {
	i := ParamIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return paramTable[i].set(p, v)
}
