// Package telemetry defines the outbound messages of the sensor, the
// channels they travel on and the links that carry them. Messages are
// encoded as one JSON object per line with a "type" discriminator.
package telemetry

// EncapsulatedChunk is the payload size of one EncapsulatedData message.
const EncapsulatedChunk = 252

// ImageRaw8U identifies an 8-bit grayscale image stream in a handshake.
const ImageRaw8U = 1

// Message is implemented by every outbound message.
type Message interface {
	Type() string
}

// OpticalFlow is the linear flow output of one window.
type OpticalFlow struct {
	TimeUsec       uint64  `json:"time_usec"`
	SensorID       uint8   `json:"sensor_id"`
	FlowX          int16   `json:"flow_x"`
	FlowY          int16   `json:"flow_y"`
	FlowCompMX     float64 `json:"flow_comp_m_x"`
	FlowCompMY     float64 `json:"flow_comp_m_y"`
	Quality        uint8   `json:"quality"`
	GroundDistance float64 `json:"ground_distance"`
}

func (OpticalFlow) Type() string { return "optical_flow" }

// OpticalFlowRad is the integrated angular flow output of one window.
type OpticalFlowRad struct {
	TimeUsec            uint64  `json:"time_usec"`
	SensorID            uint8   `json:"sensor_id"`
	IntegrationTimeUs   uint32  `json:"integration_time_us"`
	IntegratedX         float64 `json:"integrated_x"`
	IntegratedY         float64 `json:"integrated_y"`
	IntegratedXGyro     float64 `json:"integrated_xgyro"`
	IntegratedYGyro     float64 `json:"integrated_ygyro"`
	IntegratedZGyro     float64 `json:"integrated_zgyro"`
	Temperature         int16   `json:"temperature"` // centi-degrees Celsius
	Quality             uint8   `json:"quality"`
	TimeDeltaDistanceUs uint32  `json:"time_delta_distance_us"`
	Distance            float64 `json:"distance"`
}

func (OpticalFlowRad) Type() string { return "optical_flow_rad" }

// Debug vector names.
const (
	DebugTiming   = "TIMING"
	DebugExposure = "EXPOSURE"
	DebugGyro     = "GYRO"
)

// DebugVect is a named three-value diagnostic.
type DebugVect struct {
	Name     string  `json:"name"`
	TimeUsec uint64  `json:"time_usec"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}

func (DebugVect) Type() string { return "debug_vect" }

// DataTransmissionHandshake announces a chunked image transfer.
type DataTransmissionHandshake struct {
	StreamType uint8  `json:"stream_type"`
	Size       uint32 `json:"size"`
	Width      uint16 `json:"width"`
	Height     uint16 `json:"height"`
	Packets    uint16 `json:"packets"`
	Payload    uint8  `json:"payload"`
	JpgQuality uint8  `json:"jpg_quality"`
}

func (DataTransmissionHandshake) Type() string { return "data_transmission_handshake" }

// EncapsulatedData is one chunk of an image transfer. Data is base64 in JSON.
type EncapsulatedData struct {
	Seqnr uint16 `json:"seqnr"`
	Data  []byte `json:"data"`
}

func (EncapsulatedData) Type() string { return "encapsulated_data" }

// Heartbeat is the periodic system state message.
type Heartbeat struct {
	TimeUsec   uint64 `json:"time_usec"`
	SensorID   uint8  `json:"sensor_id"`
	Algorithm  string `json:"algorithm"`
	FramesSeen uint64 `json:"frames_seen"`
	Uptime     uint64 `json:"uptime_s"`
}

func (Heartbeat) Type() string { return "heartbeat" }

// ParamValue reports one parameter.
type ParamValue struct {
	Name  string  `json:"param_id"`
	Value float64 `json:"param_value"`
	Index int     `json:"param_index"`
	Count int     `json:"param_count"`
}

func (ParamValue) Type() string { return "param_value" }

// Forwarded is a line received from another sensor and relayed verbatim.
type Forwarded struct {
	Raw string
}

func (Forwarded) Type() string { return "forwarded" }
