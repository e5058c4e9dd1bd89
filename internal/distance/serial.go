package distance

import (
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/opticalflow/internal/serialmux"
)

// SerialDriver reads a range finder that prints one reading in metres per
// line. Trigger writes TriggerCommand when it is non-empty; sensors that
// stream continuously need none.
type SerialDriver struct {
	mux            serialmux.Mux
	TriggerCommand string

	id    string
	lines chan string

	mu     sync.Mutex
	closed bool
}

// NewSerialDriver subscribes to mux. Close releases the subscription.
func NewSerialDriver(mux serialmux.Mux) *SerialDriver {
	id, lines := mux.Subscribe()
	return &SerialDriver{mux: mux, id: id, lines: lines}
}

func (d *SerialDriver) Trigger() error {
	if d.TriggerCommand == "" {
		return nil
	}
	return d.mux.SendCommand(d.TriggerCommand)
}

// Readback drains queued lines and returns the newest parseable reading.
func (d *SerialDriver) Readback() (float64, bool, error) {
	var (
		latest float64
		found  bool
	)
	for {
		select {
		case line, ok := <-d.lines:
			if !ok {
				return latest, found, nil
			}
			if serialmux.ClassifyLine(line) != serialmux.LineDistance {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
			if err != nil {
				continue
			}
			latest, found = v, true
		default:
			return latest, found, nil
		}
	}
}

func (d *SerialDriver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.mux.Unsubscribe(d.id)
}
