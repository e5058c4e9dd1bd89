package config

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	algo := AlgorithmKLT
	rate := 200
	cfg := &FlowConfig{Algorithm: &algo, VideoRateMS: &rate}

	p := cfg.Resolve()
	assert.True(t, p.UseKLT())
	assert.Equal(t, 200*time.Millisecond, p.VideoRate)
	assert.Equal(t, uint32(10), p.SerialThrottleFactor)
	require.NoError(t, p.Validate())
}

func TestParamsValidate_ZeroThrottle(t *testing.T) {
	p := EmptyFlowConfig().Resolve()
	p.SerialThrottleFactor = 0
	assert.ErrorIs(t, p.Validate(), ErrZeroThrottle)
}

func TestParamsGetSet(t *testing.T) {
	p := EmptyFlowConfig().Resolve()

	require.NoError(t, p.Set("algorithm", 1))
	assert.Equal(t, AlgorithmKLT, p.Algorithm)
	v, err := p.Get("algorithm")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	require.NoError(t, p.Set("usb_send_gyro", 1))
	assert.True(t, p.USBSendGyro)
	require.NoError(t, p.Set("usb_send_gyro", 0))
	assert.False(t, p.USBSendGyro)

	require.NoError(t, p.Set("video_rate_ms", 40))
	assert.Equal(t, 40*time.Millisecond, p.VideoRate)

	require.NoError(t, p.Set("serial_throttle_factor", 3))
	assert.Equal(t, uint32(3), p.SerialThrottleFactor)
}

func TestParamsSet_RejectsInvalidKeepsOldValue(t *testing.T) {
	p := EmptyFlowConfig().Resolve()

	err := p.Set("serial_throttle_factor", 0)
	assert.ErrorIs(t, err, ErrZeroThrottle)
	assert.Equal(t, uint32(10), p.SerialThrottleFactor)

	assert.Error(t, p.Set("algorithm", 2))
	assert.Equal(t, AlgorithmBlock, p.Algorithm)

	assert.Error(t, p.Set("min_valid_ratio", 101))
	assert.Equal(t, 50, p.MinValidRatio)

	assert.Error(t, p.Set("binning", 3))
	assert.Equal(t, 4, p.Binning)

	assert.Error(t, p.Set("focal_length_mm", -4))
	assert.Equal(t, 16.0, p.FocalLengthMM)

	err = p.Set("no_such_param", 1)
	assert.True(t, errors.Is(err, ErrUnknownParam))
	_, err = p.Get("no_such_param")
	assert.True(t, errors.Is(err, ErrUnknownParam))
}

func TestParamTable(t *testing.T) {
	p := EmptyFlowConfig().Resolve()
	seen := map[string]bool{}
	for i := 0; i < ParamCount(); i++ {
		name, _, ok := p.ParamAt(i)
		require.True(t, ok)
		assert.False(t, seen[name], "duplicate parameter %q", name)
		seen[name] = true
		assert.Equal(t, i, ParamIndex(name))
	}
	assert.Equal(t, -1, ParamIndex("missing"))
	assert.True(t, seen["serial_throttle_factor"])

	for _, i := range []int{-1, ParamCount()} {
		name, v, ok := p.ParamAt(i)
		assert.False(t, ok, "index %d", i)
		assert.Empty(t, name)
		assert.Zero(t, v)
	}
}

func TestParamsSet_RejectsValuesOutsideFieldRange(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"serial_throttle_factor", 4294967296},
		{"serial_throttle_factor", 1e20},
		{"serial_throttle_factor", 2.5},
		{"serial_throttle_factor", math.NaN()},
		{"serial_throttle_factor", math.Inf(1)},
		{"video_rate_ms", 1e19},
		{"video_rate_ms", 4294967296},
		{"video_rate_ms", 0.5},
		{"video_rate_ms", math.NaN()},
		{"min_valid_ratio", math.NaN()},
		{"sensor_id", 256},
		{"sensor_id", -1},
		{"sensor_id", 1.5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s=%g", tt.name, tt.value), func(t *testing.T) {
			p := EmptyFlowConfig().Resolve()
			before, err := p.Get(tt.name)
			require.NoError(t, err)

			assert.Error(t, p.Set(tt.name, tt.value))
			after, err := p.Get(tt.name)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			require.NoError(t, p.Validate())
		})
	}

	p := EmptyFlowConfig().Resolve()
	assert.ErrorIs(t, p.Set("serial_throttle_factor", 4294967296), ErrZeroThrottle)
	require.NoError(t, p.Set("serial_throttle_factor", math.MaxUint32))
	assert.Equal(t, uint32(math.MaxUint32), p.SerialThrottleFactor)
	require.NoError(t, p.Set("video_rate_ms", math.MaxUint32))
	assert.Positive(t, p.VideoRate)
	require.NoError(t, p.Set("sensor_id", 255))
	assert.Equal(t, 255, p.SensorID)
}
