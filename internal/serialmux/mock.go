package serialmux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// MockSerialPort feeds generated lines to the reader side and discards
// writes. It backs links in -dev mode.
type MockSerialPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	cancel  context.CancelFunc
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// keep the tail only; the port runs for the life of the process
	if m.written.Len() > 64<<10 {
		m.written.Reset()
	}
	return m.written.Write(p)
}

// Written returns what was written since the last truncation.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func (m *MockSerialPort) Close() error {
	m.cancel()
	m.w.Close()
	return m.r.Close()
}

// NewMockSerialMux returns a mux whose port produces gen() every period.
// Empty strings from gen are skipped. A nil gen produces no input.
func NewMockSerialMux(gen func() string, period time.Duration) *SerialMux[*MockSerialPort] {
	ctx, cancel := context.WithCancel(context.Background())
	r, w := io.Pipe()
	port := &MockSerialPort{r: r, w: w, cancel: cancel}

	if gen != nil && period > 0 {
		go func() {
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					line := gen()
					if line == "" {
						continue
					}
					if _, err := io.WriteString(w, line+"\n"); err != nil {
						return
					}
				}
			}
		}()
	}
	return NewSerialMux(port)
}

// TestableSerialPort is an in-memory port with injectable failures.
type TestableSerialPort struct {
	mu sync.Mutex

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// ReadError and WriteError fail the next call once.
	ReadError  error
	WriteError error
	CloseError error
	// ShortWrite makes writes report one byte fewer than given.
	ShortWrite bool

	Closed      bool
	WriteCalls  int
	ReadTimeout time.Duration

	// BlockReads makes Read wait for data or Close instead of returning EOF.
	BlockReads bool

	readCond *sync.Cond
}

func NewTestableSerialPort() *TestableSerialPort {
	t := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	t.readCond = sync.NewCond(&t.mu)
	return t
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	for t.BlockReads && !t.Closed && t.ReadBuffer.Len() == 0 {
		t.readCond.Wait()
	}
	if t.Closed {
		return 0, errPortClosed
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.WriteCalls++
	if t.Closed {
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.ShortWrite && len(p) > 0 {
		return t.WriteBuffer.Write(p[:len(p)-1])
	}
	return t.WriteBuffer.Write(p)
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData queues data for Read.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.readCond.Signal()
}

// GetWrittenData returns a copy of everything written.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.WriteBuffer.Bytes())
}

// MockOpener is a PortOpener that returns Port and records each call.
type MockOpener struct {
	mu    sync.Mutex
	Port  SerialPorter
	Error error
	Calls []string
}

func (m *MockOpener) Open(path string, _ PortOptions) (SerialPorter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, path)
	if m.Error != nil {
		return nil, m.Error
	}
	return m.Port, nil
}
