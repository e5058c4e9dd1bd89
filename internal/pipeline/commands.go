package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/banshee-data/opticalflow/internal/config"
	"github.com/banshee-data/opticalflow/internal/serialmux"
	"github.com/banshee-data/opticalflow/internal/telemetry"
)

// Inbound command names.
const (
	CmdParamSet         = "param_set"
	CmdParamRequestList = "param_request_list"
	CmdParamRequestRead = "param_request_read"
)

// Command is one inbound JSON command line.
type Command struct {
	Cmd   string  `json:"cmd"`
	Name  string  `json:"name,omitempty"`
	Value float64 `json:"value,omitempty"`
	Index *int    `json:"index,omitempty"`
}

func (s *Session) handleLine(ch telemetry.Channel, line string) {
	switch serialmux.ClassifyLine(line) {
	case serialmux.LineCommand:
		var c Command
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			opsf("bad command on %s: %v", ch, err)
			return
		}
		s.HandleCommand(ch, c)
	case serialmux.LineFlow:
		if ch == telemetry.Secondary {
			s.queueForward(strings.TrimSpace(line))
		}
	}
}

// HandleCommand executes c as received on ch. Replies go back on ch.
func (s *Session) HandleCommand(ch telemetry.Channel, c Command) {
	s.commands++
	switch c.Cmd {
	case CmdParamRequestList:
		s.paramTx = paramStream{cursor: 0, channel: ch}
	case CmdParamRequestRead:
		var i int
		if c.Index != nil && *c.Index >= 0 {
			i = *c.Index
		} else {
			i = config.ParamIndex(c.Name)
		}
		s.sendParam(ch, i)
	case CmdParamSet:
		i := config.ParamIndex(c.Name)
		if i < 0 {
			opsf("param_set: unknown parameter %q", c.Name)
			return
		}
		oldBinning := s.params.Binning
		if err := s.params.Set(c.Name, c.Value); err != nil {
			opsf("param_set %s=%g rejected: %v", c.Name, c.Value, err)
		} else {
			diagf("param_set %s=%g", c.Name, c.Value)
			if s.params.Binning != oldBinning {
				s.applyBinning()
			}
		}
		// echo the value in effect so the sender sees rejections too
		s.sendParam(ch, i)
	default:
		opsf("unknown command %q on %s", c.Cmd, ch)
	}
}

// applyBinning pushes a changed binning parameter to the capture side.
// Frames already captured keep their binning; the pair that straddles the
// change yields no flow.
func (s *Session) applyBinning() {
	cc, ok := s.frames.(CaptureControl)
	if !ok {
		return
	}
	p := cc.Params()
	p.Binning = s.params.Binning
	if err := cc.ScheduleParams(p); err != nil {
		opsf("apply binning %d: %v", s.params.Binning, err)
	}
}
