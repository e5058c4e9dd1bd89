package pipeline

import (
	"fmt"
	"time"

	"github.com/banshee-data/opticalflow/internal/config"
	"github.com/banshee-data/opticalflow/internal/scheduler"
	"github.com/banshee-data/opticalflow/internal/telemetry"
)

// Housekeeping periods.
const (
	DistancePeriod = 50 * time.Millisecond
	StatePeriod    = time.Second
	ReceivePeriod  = 500 * time.Millisecond
	ParamsPeriod   = 100 * time.Millisecond
)

// Task names as registered on the scheduler.
const (
	TaskDistance = "distance"
	TaskState    = "system-state"
	TaskReceive  = "receive"
	TaskParams   = "params"
	TaskVideo    = "video"
)

// MaxPendingForward bounds the queue of inbound flow lines awaiting
// forwarding; the oldest are dropped first.
const MaxPendingForward = 16

// RegisterTasks adds the housekeeping tasks to sch.
func (s *Session) RegisterTasks(sch *scheduler.Scheduler) error {
	if s.rng != nil {
		if err := sch.Every(TaskDistance, DistancePeriod, s.rng.Poll); err != nil {
			return err
		}
	}
	for _, t := range []struct {
		name   string
		period time.Duration
		fn     scheduler.Task
	}{
		{TaskState, StatePeriod, s.sendState},
		{TaskReceive, ReceivePeriod, func(time.Time) { s.receive() }},
		{TaskParams, ParamsPeriod, func(time.Time) { s.sendNextParam() }},
	} {
		if err := sch.Every(t.name, t.period, t.fn); err != nil {
			return err
		}
	}
	return sch.EveryDynamic(TaskVideo, func() time.Duration { return s.params.VideoRate }, func(time.Time) { s.sendVideo() })
}

func (s *Session) sendState(time.Time) {
	if !s.params.SystemSendState {
		return
	}
	hb := telemetry.Heartbeat{
		TimeUsec:   s.clock.Micros(),
		SensorID:   uint8(s.params.SensorID),
		Algorithm:  s.params.Algorithm,
		FramesSeen: s.processed,
		Uptime:     s.clock.Micros() / 1e6,
	}
	s.hub.Send(telemetry.Primary, hb)
	s.hub.Send(telemetry.Secondary, hb)
}

func (s *Session) sendVideo() {
	if !s.videoValid || !s.params.USBSendVideo {
		return
	}
	s.hub.SendImage(telemetry.Secondary, s.video.Width, s.video.Height, s.video.Pix)
}

// receive drains every inbound channel without blocking. Commands run
// immediately; flow lines from the secondary link are queued for
// forwarding.
func (s *Session) receive() {
	for ch, lines := range s.inbound {
	drain:
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					delete(s.inbound, ch)
					break drain
				}
				s.handleLine(ch, line)
			default:
				break drain
			}
		}
	}
}

func (s *Session) queueForward(line string) {
	if len(s.pending) >= MaxPendingForward {
		copy(s.pending, s.pending[1:])
		s.pending = s.pending[:len(s.pending)-1]
	}
	s.pending = append(s.pending, line)
}

// forward relays queued flow lines from other sensors on the primary link.
func (s *Session) forward() {
	s.receive()
	for _, line := range s.pending {
		s.hub.Send(telemetry.Primary, telemetry.Forwarded{Raw: line})
		s.forwarded++
	}
	s.pending = s.pending[:0]
}

// paramStream walks the parameter table one entry per params tick after a
// full list request.
type paramStream struct {
	cursor  int
	channel telemetry.Channel
}

func (s *Session) sendNextParam() {
	if s.paramTx.cursor < 0 {
		return
	}
	if s.paramTx.cursor >= config.ParamCount() {
		s.paramTx.cursor = -1
		return
	}
	s.sendParam(s.paramTx.channel, s.paramTx.cursor)
	s.paramTx.cursor++
	if s.paramTx.cursor >= config.ParamCount() {
		s.paramTx.cursor = -1
	}
}

func (s *Session) sendParam(ch telemetry.Channel, i int) {
	name, v, ok := s.params.ParamAt(i)
	if !ok {
		opsf("param index %d out of range", i)
		return
	}
	s.hub.Send(ch, telemetry.ParamValue{Name: name, Value: v, Index: i, Count: config.ParamCount()})
}

func (s *Session) String() string {
	st := s.Stats()
	return fmt.Sprintf("processed=%d emitted=%d dropped=%d forwarded=%d", st.Processed, st.Emitted, st.Dropped, st.Forwarded)
}
