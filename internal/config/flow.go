package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical flow defaults file.
const DefaultConfigPath = "config/flow.defaults.json"

// Algorithm names accepted by the "algorithm" option.
const (
	AlgorithmBlock = "block"
	AlgorithmKLT   = "klt"
)

// ErrZeroThrottle is returned when the telemetry throttle factor is zero.
// The emission cadence is a modulo of the cycle counter, so zero is fatal.
var ErrZeroThrottle = errors.New("serial_throttle_factor must be a positive integer")

// FlowConfig represents the root configuration for the flow sensor. Every
// field is optional; the Get* methods supply the defaults.
type FlowConfig struct {
	// Algorithm params
	Algorithm             *string  `json:"algorithm,omitempty"` // "block" or "klt"
	OutlierThresholdRatio *float64 `json:"outlier_threshold_ratio,omitempty"`
	OutlierThresholdBlock *float64 `json:"outlier_threshold_block,omitempty"`
	OutlierThresholdKLT   *float64 `json:"outlier_threshold_klt,omitempty"`
	MinValidRatio         *int     `json:"min_valid_ratio,omitempty"` // percent of frames in a window

	// Optics
	FocalLengthMM *float64 `json:"focal_length_mm,omitempty"`
	ImageWidth    *int     `json:"image_width,omitempty"`
	Binning       *int     `json:"binning,omitempty"`

	// Output
	SensorID             *int  `json:"sensor_id,omitempty"`
	SerialThrottleFactor *int  `json:"serial_throttle_factor,omitempty"`
	VideoRateMS          *int  `json:"video_rate_ms,omitempty"`
	USBSendVideo         *bool `json:"usb_send_video,omitempty"`
	USBSendFlow          *bool `json:"usb_send_flow,omitempty"`
	USBSendQualZero      *bool `json:"usb_send_qual_0,omitempty"`
	USBSendGyro          *bool `json:"usb_send_gyro,omitempty"`
	SystemSendState      *bool `json:"system_send_state,omitempty"`

	// Distance
	SonarFiltered *bool `json:"sonar_filtered,omitempty"`
}

// EmptyFlowConfig returns a FlowConfig with all fields set to nil.
func EmptyFlowConfig() *FlowConfig {
	return &FlowConfig{}
}

// LoadFlowConfig loads a FlowConfig from a JSON file.
// Fields omitted from the file keep their defaults, so partial configs are safe.
func LoadFlowConfig(path string) (*FlowConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFlowConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Intended for test setup.
func MustLoadDefaultConfig() *FlowConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadFlowConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *FlowConfig) Validate() error {
	if c.Algorithm != nil {
		switch *c.Algorithm {
		case AlgorithmBlock, AlgorithmKLT:
		default:
			return fmt.Errorf("algorithm must be %q or %q, got %q", AlgorithmBlock, AlgorithmKLT, *c.Algorithm)
		}
	}

	if c.SerialThrottleFactor != nil && *c.SerialThrottleFactor <= 0 {
		return fmt.Errorf("%w, got %d", ErrZeroThrottle, *c.SerialThrottleFactor)
	}

	if c.OutlierThresholdRatio != nil && *c.OutlierThresholdRatio < 0 {
		return fmt.Errorf("outlier_threshold_ratio must be non-negative, got %f", *c.OutlierThresholdRatio)
	}
	if c.OutlierThresholdBlock != nil && *c.OutlierThresholdBlock < 0 {
		return fmt.Errorf("outlier_threshold_block must be non-negative, got %f", *c.OutlierThresholdBlock)
	}
	if c.OutlierThresholdKLT != nil && *c.OutlierThresholdKLT < 0 {
		return fmt.Errorf("outlier_threshold_klt must be non-negative, got %f", *c.OutlierThresholdKLT)
	}

	if c.MinValidRatio != nil && (*c.MinValidRatio < 0 || *c.MinValidRatio > 100) {
		return fmt.Errorf("min_valid_ratio must be between 0 and 100, got %d", *c.MinValidRatio)
	}

	if c.FocalLengthMM != nil && *c.FocalLengthMM <= 0 {
		return fmt.Errorf("focal_length_mm must be positive, got %f", *c.FocalLengthMM)
	}

	if c.ImageWidth != nil && *c.ImageWidth <= 0 {
		return fmt.Errorf("image_width must be positive, got %d", *c.ImageWidth)
	}

	if c.Binning != nil {
		switch *c.Binning {
		case 1, 2, 4:
		default:
			return fmt.Errorf("binning must be 1, 2 or 4, got %d", *c.Binning)
		}
	}

	if c.VideoRateMS != nil && *c.VideoRateMS <= 0 {
		return fmt.Errorf("video_rate_ms must be positive, got %d", *c.VideoRateMS)
	}

	return nil
}

// GetAlgorithm returns the algorithm value or the default.
func (c *FlowConfig) GetAlgorithm() string {
	if c.Algorithm == nil {
		return AlgorithmBlock
	}
	return *c.Algorithm
}

// GetOutlierThresholdRatio returns the outlier_threshold_ratio value or the default.
func (c *FlowConfig) GetOutlierThresholdRatio() float64 {
	if c.OutlierThresholdRatio == nil {
		return 0.3
	}
	return *c.OutlierThresholdRatio
}

// GetOutlierThresholdBlock returns the outlier_threshold_block value or the default.
func (c *FlowConfig) GetOutlierThresholdBlock() float64 {
	if c.OutlierThresholdBlock == nil {
		return 0.5
	}
	return *c.OutlierThresholdBlock
}

// GetOutlierThresholdKLT returns the outlier_threshold_klt value or the default.
func (c *FlowConfig) GetOutlierThresholdKLT() float64 {
	if c.OutlierThresholdKLT == nil {
		return 0.2
	}
	return *c.OutlierThresholdKLT
}

// GetMinValidRatio returns the min_valid_ratio value or the default.
func (c *FlowConfig) GetMinValidRatio() int {
	if c.MinValidRatio == nil {
		return 50
	}
	return *c.MinValidRatio
}

// GetFocalLengthMM returns the focal_length_mm value or the default.
func (c *FlowConfig) GetFocalLengthMM() float64 {
	if c.FocalLengthMM == nil {
		return 16.0
	}
	return *c.FocalLengthMM
}

// GetImageWidth returns the image_width value or the default.
func (c *FlowConfig) GetImageWidth() int {
	if c.ImageWidth == nil {
		return 64
	}
	return *c.ImageWidth
}

// GetBinning returns the binning value or the default.
func (c *FlowConfig) GetBinning() int {
	if c.Binning == nil {
		return 4
	}
	return *c.Binning
}

// GetSensorID returns the sensor_id value or the default.
func (c *FlowConfig) GetSensorID() int {
	if c.SensorID == nil {
		return 77
	}
	return *c.SensorID
}

// GetSerialThrottleFactor returns the serial_throttle_factor value or the default.
func (c *FlowConfig) GetSerialThrottleFactor() int {
	if c.SerialThrottleFactor == nil {
		return 10
	}
	return *c.SerialThrottleFactor
}

// GetVideoRateMS returns the video_rate_ms value or the default.
func (c *FlowConfig) GetVideoRateMS() int {
	if c.VideoRateMS == nil {
		return 150
	}
	return *c.VideoRateMS
}

// GetUSBSendVideo returns the usb_send_video value or the default.
func (c *FlowConfig) GetUSBSendVideo() bool {
	if c.USBSendVideo == nil {
		return true
	}
	return *c.USBSendVideo
}

// GetUSBSendFlow returns the usb_send_flow value or the default.
func (c *FlowConfig) GetUSBSendFlow() bool {
	if c.USBSendFlow == nil {
		return true
	}
	return *c.USBSendFlow
}

// GetUSBSendQualZero returns the usb_send_qual_0 value or the default.
func (c *FlowConfig) GetUSBSendQualZero() bool {
	if c.USBSendQualZero == nil {
		return false
	}
	return *c.USBSendQualZero
}

// GetUSBSendGyro returns the usb_send_gyro value or the default.
func (c *FlowConfig) GetUSBSendGyro() bool {
	if c.USBSendGyro == nil {
		return false
	}
	return *c.USBSendGyro
}

// GetSystemSendState returns the system_send_state value or the default.
func (c *FlowConfig) GetSystemSendState() bool {
	if c.SystemSendState == nil {
		return true
	}
	return *c.SystemSendState
}

// GetSonarFiltered returns the sonar_filtered value or the default.
func (c *FlowConfig) GetSonarFiltered() bool {
	if c.SonarFiltered == nil {
		return false
	}
	return *c.SonarFiltered
}
