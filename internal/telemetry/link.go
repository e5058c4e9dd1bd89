package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/opticalflow/internal/monitoring"
	"github.com/banshee-data/opticalflow/internal/serialmux"
)

// ErrLinkClosed is returned by links after Close.
var ErrLinkClosed = errors.New("telemetry link closed")

// Channel identifies a logical output link.
type Channel int

const (
	// Primary is the autopilot link; flow is always sent here.
	Primary Channel = iota
	// Secondary is the USB debug link: diagnostics, video and optional flow.
	Secondary
)

func (c Channel) String() string {
	switch c {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Link carries messages to one peer.
type Link interface {
	Send(Message) error
}

// Encode renders m as one JSON line body with its type first.
func Encode(m Message) ([]byte, error) {
	if f, ok := m.(Forwarded); ok {
		return []byte(f.Raw), nil
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	head := fmt.Sprintf(`{"type":%q`, m.Type())
	if len(body) > 2 {
		head += ","
	}
	return append([]byte(head), body[1:]...), nil
}

// SerialLink writes JSON lines to a serial mux.
type SerialLink struct {
	mux serialmux.Mux

	mu     sync.Mutex
	closed bool
}

// NewSerialLink returns a link writing to mux.
func NewSerialLink(mux serialmux.Mux) *SerialLink {
	return &SerialLink{mux: mux}
}

func (l *SerialLink) Send(m Message) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLinkClosed
	}
	line, err := Encode(m)
	if err != nil {
		return err
	}
	return l.mux.SendCommand(string(line))
}

// Close stops further sends; the mux is owned by the caller.
func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Hub routes messages to channels. Sends are best effort: failures are
// counted and logged, never returned.
type Hub struct {
	mu     sync.RWMutex
	links  map[Channel]Link
	logf   func(format string, v ...interface{})
	failed monitoring.Counter
	sent   monitoring.Counter
}

// NewHub returns a Hub with no links. logf receives send failures; nil
// uses monitoring.Logf.
func NewHub(logf func(format string, v ...interface{})) *Hub {
	if logf == nil {
		logf = monitoring.Prefixed("telemetry: ")
	}
	return &Hub{links: make(map[Channel]Link), logf: logf}
}

// Attach sets the link for c, replacing any previous one. A nil link
// detaches c.
func (h *Hub) Attach(c Channel, l Link) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l == nil {
		delete(h.links, c)
		return
	}
	h.links[c] = l
}

// Send delivers m on c. Messages for a channel without a link are dropped.
func (h *Hub) Send(c Channel, m Message) {
	h.mu.RLock()
	l := h.links[c]
	h.mu.RUnlock()
	if l == nil {
		return
	}
	if err := l.Send(m); err != nil {
		if n, log := h.failed.Inc(100); log {
			h.logf("send %s on %s failed (%d failures): %v", m.Type(), c, n, err)
		}
		return
	}
	h.sent.Inc(0)
}

// Failures returns the number of failed sends.
func (h *Hub) Failures() uint64 { return h.failed.Load() }

// Sent returns the number of delivered sends.
func (h *Hub) Sent() uint64 { return h.sent.Load() }
