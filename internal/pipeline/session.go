package pipeline

import (
	"errors"
	"time"

	"github.com/banshee-data/opticalflow/internal/accumulator"
	"github.com/banshee-data/opticalflow/internal/cache"
	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/config"
	"github.com/banshee-data/opticalflow/internal/flow"
	"github.com/banshee-data/opticalflow/internal/telemetry"
	"github.com/banshee-data/opticalflow/internal/timeutil"
)

// FrameSource loans pairs of captured frames.
type FrameSource interface {
	TryGetPair() (camera.Pair, bool)
	ReturnPair(camera.Pair)
	LastBrightness() float64
}

// CaptureControl is implemented by frame sources whose capture parameters
// can change at runtime.
type CaptureControl interface {
	Params() camera.CaptureParams
	ScheduleParams(camera.CaptureParams) error
}

// Gyro reads sensor-frame angular rates in rad/s and temperature in °C.
type Gyro interface {
	Read() (x, y, z, temp float64)
}

// RangeSource is the ground distance collaborator.
type RangeSource interface {
	// Poll runs one step of the measurement cycle.
	Poll(now time.Time)
	// Ground returns metres, or -1 without a valid measurement.
	Ground(filtered bool) float64
	// Age is the time since the last measurement.
	Age() time.Duration
}

// StatusIndicator shows the output quality, 0..1.
type StatusIndicator interface {
	SetStatus(level float64)
}

// RecordSink receives every FrameRecord as it is fed to the accumulator.
type RecordSink interface {
	PublishRecord(accumulator.FrameRecord)
}

// WindowRecorder persists each emitted window.
type WindowRecorder interface {
	RecordWindow(Window) error
}

// Window is everything emitted for one output window.
type Window struct {
	Time        time.Time
	Counter     uint32
	Algorithm   string
	Frames      int
	ValidFrames int
	Linear      accumulator.OutputFlow
	Angular     accumulator.OutputFlowRad
	ComputeTime time.Duration
	// FPS and SkippedFPS are zero unless a throughput sample was taken.
	FPS        float64
	SkippedFPS float64
}

// Config holds the dependencies of a Session. Params, Frames and Hub are
// required.
type Config struct {
	Params   *config.Params
	Frames   FrameSource
	Hub      *telemetry.Hub
	Gyro     Gyro        // nil reads zero rates
	Range    RangeSource // nil reports no distance
	Status   StatusIndicator
	Recorder WindowRecorder
	Sinks    []RecordSink
	Clock    timeutil.Clock

	// Estimators; nil uses the default tuning.
	Block flow.Estimator
	KLT   flow.Estimator

	// Inbound lines per channel, for commands and forwarding.
	Inbound map[telemetry.Channel]<-chan string
}

// Stats summarises a Session.
type Stats struct {
	Processed uint64
	Emitted   uint64
	Dropped   uint64
	Counter   uint32
	Cache     cache.Stats
	Forwarded uint64
	Commands  uint64
}

// Session holds every piece of mutable pipeline state. It is driven from
// one goroutine: Poll and the scheduled tasks must not run concurrently.
type Session struct {
	params   *config.Params
	frames   FrameSource
	hub      *telemetry.Hub
	gyro     Gyro
	rng      RangeSource
	status   StatusIndicator
	recorder WindowRecorder
	sinks    []RecordSink
	clock    *timeutil.BootClock

	cache      *cache.Manager
	dispatcher *Dispatcher
	acc        *accumulator.Accumulator
	throttle   Throttler
	throughput Throughput

	results       [flow.MaxCorrespondences]flow.Correspondence
	lastProcessed time.Time
	lastExposure  camera.CaptureParams
	lastRates     Rates

	// copy of the previous image of the latest pair, for video export
	video      camera.Image
	videoValid bool

	inbound   map[telemetry.Channel]<-chan string
	pending   []string
	paramTx   paramStream
	processed uint64
	emitted   uint64
	forwarded uint64
	commands  uint64
}

// NewSession validates cfg and returns a Session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Params == nil || cfg.Frames == nil || cfg.Hub == nil {
		return nil, errors.New("pipeline: Params, Frames and Hub are required")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	boot := timeutil.NewBootClock(clock)
	s := &Session{
		params:        cfg.Params,
		frames:        cfg.Frames,
		hub:           cfg.Hub,
		gyro:          cfg.Gyro,
		rng:           cfg.Range,
		status:        cfg.Status,
		recorder:      cfg.Recorder,
		sinks:         cfg.Sinks,
		clock:         boot,
		cache:         cache.New(),
		dispatcher:    NewDispatcher(cfg.Block, cfg.KLT),
		acc:           accumulator.New(),
		throughput:    NewThroughput(boot.Boot()),
		lastProcessed: boot.Boot(),
		inbound:       cfg.Inbound,
		paramTx:       paramStream{cursor: -1},
	}
	return s, nil
}

// Params returns the live parameter set.
func (s *Session) Params() *config.Params { return s.params }

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Processed: s.processed,
		Emitted:   s.emitted,
		Dropped:   s.dispatcher.Dropped(),
		Counter:   s.throttle.Counter(),
		Cache:     s.cache.Stats(),
		Forwarded: s.forwarded,
		Commands:  s.commands,
	}
}

// Poll processes one frame pair if the source has a fresh one. It returns
// whether a pair was processed and never blocks.
func (s *Session) Poll() bool {
	pair, ok := s.frames.TryGetPair()
	if !ok {
		return false
	}
	s.process(pair)
	return true
}

func (s *Session) readGyro() (Rates, float64) {
	if s.gyro == nil {
		return Rates{}, 0
	}
	x, y, z, temp := s.gyro.Read()
	return RemapGyro(x, y, z), temp
}

func (s *Session) groundDistance() (float64, time.Duration) {
	if s.rng == nil {
		return accumulator.InvalidDistance, 0
	}
	return s.rng.Ground(s.params.SonarFiltered), s.rng.Age()
}

func (s *Session) process(pair camera.Pair) {
	p := s.params
	start := s.clock.Now()
	newest, prev := pair.Newest(), pair.Previous()

	rates, temp := s.readGyro()
	skipped := s.dispatcher.Track(newest.FrameNumber)
	est := s.dispatcher.Select(p)
	lease := s.cache.Resolve(pair, est)

	dt := newest.Timestamp.Sub(prev.Timestamp).Seconds()
	droppedDt := prev.Timestamp.Sub(s.lastProcessed).Seconds()
	s.lastProcessed = newest.Timestamp

	focalPx := FocalLengthPx(p.FocalLengthMM, newest.Param.Binning)
	comp := Compensate(rates, focalPx, dt)
	n := s.dispatcher.Estimate(est, pair, lease, comp, s.results[:])

	ratio, minThreshold := OutlierPolicy(p)
	fx, fy, quality := flow.Extract(s.results[:], n, ratio, minThreshold)

	if p.USBSendVideo {
		Annotate(&prev.Image, s.results[:n], p.ImageWidth)
		s.keepVideoFrame(&prev.Image)
	}
	s.lastExposure = newest.Param
	s.frames.ReturnPair(pair)

	ground, age := s.groundDistance()
	record := accumulator.FrameRecord{
		Dt:             dt,
		DroppedDt:      droppedDt,
		XRate:          rates.X,
		YRate:          rates.Y,
		ZRate:          rates.Z,
		GyroTemp:       temp,
		Quality:        quality,
		PixelFlowX:     fx,
		PixelFlowY:     fy,
		RadPerPixel:    1 / focalPx,
		GroundDistance: ground,
		DistanceAge:    age,
		MaxPxFrame:     est.Capability(),
	}
	for _, sink := range s.sinks {
		sink.PublishRecord(record)
	}
	s.acc.Feed(record)
	s.processed++
	s.lastRates = rates

	compute := s.clock.Since(start)
	s.throughput.Add(skipped)
	counter, emit := s.throttle.Next(p.SerialThrottleFactor)
	if traceEnabled() {
		tracef("frame=%d counter=%d est=%s n=%d flow=(%.2f,%.2f) q=%d skipped=%d compute=%v",
			newest.FrameNumber, counter, est.Name(), n, fx, fy, quality, skipped, compute)
	}
	if emit {
		s.emit(counter, est.Name(), compute)
	}
	if counter%2 == 1 {
		s.forward()
	}
}

func (s *Session) keepVideoFrame(img *camera.Image) {
	n := img.Size()
	if cap(s.video.Pix) < n {
		s.video.Pix = make([]uint8, n)
	}
	s.video.Pix = s.video.Pix[:n]
	copy(s.video.Pix, img.Pix[:n])
	s.video.Width, s.video.Height = img.Width, img.Height
	s.videoValid = true
}

// emit sends one window. Every step is attempted regardless of earlier
// send failures, which the hub absorbs.
func (s *Session) emit(counter uint32, algorithm string, compute time.Duration) {
	p := s.params
	now := s.clock.Now()
	us := s.clock.Micros()
	w := Window{Time: now, Counter: counter, Algorithm: algorithm, ComputeTime: compute}

	if fps, skipped, ok := s.throughput.Sample(now); ok {
		w.FPS, w.SkippedFPS = fps, skipped
		s.hub.Send(telemetry.Secondary, telemetry.DebugVect{
			Name: telemetry.DebugTiming, TimeUsec: us,
			X: float64(compute.Microseconds()), Y: fps, Z: skipped,
		})
		diagf("throughput fps=%.1f skipped/s=%.1f compute=%v", fps, skipped, compute)
	}

	s.hub.Send(telemetry.Secondary, telemetry.DebugVect{
		Name: telemetry.DebugExposure, TimeUsec: us,
		X: s.lastExposure.Exposure, Y: s.lastExposure.AnalogGain, Z: s.frames.LastBrightness(),
	})

	w.Frames, w.ValidFrames = s.acc.Frames(), s.acc.ValidFrames()
	w.Linear = s.acc.LinearOutput(p.MinValidRatio)
	w.Angular = s.acc.AngularOutput(p.MinValidRatio)
	if s.status != nil {
		s.status.SetStatus(float64(w.Linear.Quality) / 255)
	}

	lin, rad := flowMessages(us, uint8(p.SensorID), w.Linear, w.Angular)
	s.hub.Send(telemetry.Primary, lin)
	s.hub.Send(telemetry.Primary, rad)
	if p.USBSendFlow && (w.Linear.Quality > 0 || p.USBSendQualZero) {
		s.hub.Send(telemetry.Secondary, lin)
		s.hub.Send(telemetry.Secondary, rad)
	}

	if p.USBSendGyro {
		s.hub.Send(telemetry.Secondary, telemetry.DebugVect{
			Name: telemetry.DebugGyro, TimeUsec: us,
			X: s.lastRates.X, Y: s.lastRates.Y, Z: s.lastRates.Z,
		})
	}

	if s.recorder != nil {
		if err := s.recorder.RecordWindow(w); err != nil {
			opsf("record window %d: %v", counter, err)
		}
	}
	s.acc.Reset()
	s.emitted++
}

func flowMessages(us uint64, sensorID uint8, lin accumulator.OutputFlow, rad accumulator.OutputFlowRad) (telemetry.OpticalFlow, telemetry.OpticalFlowRad) {
	return telemetry.OpticalFlow{
			TimeUsec:       us,
			SensorID:       sensorID,
			FlowX:          lin.FlowX,
			FlowY:          lin.FlowY,
			FlowCompMX:     lin.FlowCompMX,
			FlowCompMY:     lin.FlowCompMY,
			Quality:        lin.Quality,
			GroundDistance: lin.GroundDistance,
		}, telemetry.OpticalFlowRad{
			TimeUsec:            us,
			SensorID:            sensorID,
			IntegrationTimeUs:   uint32(rad.IntegrationTime.Microseconds()),
			IntegratedX:         rad.IntegratedX,
			IntegratedY:         rad.IntegratedY,
			IntegratedXGyro:     rad.IntegratedXGyro,
			IntegratedYGyro:     rad.IntegratedYGyro,
			IntegratedZGyro:     rad.IntegratedZGyro,
			Temperature:         int16(rad.Temperature * 100),
			Quality:             rad.Quality,
			TimeDeltaDistanceUs: uint32(rad.TimeDeltaDistance.Microseconds()),
			Distance:            rad.GroundDistance,
		}
}
