// Package sim provides simulated sensors for running the pipeline without
// hardware: a camera looking at a translating textured floor, a gyro with
// constant rates, a range finder and a status LED that logs.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/monitoring"
)

// Floor renders a smooth periodic texture at a sub-pixel offset.
type Floor struct {
	// Contrast scales the texture amplitude; 0 gives a flat image.
	Contrast float64
}

// Render writes the texture shifted by (ox, oy) into img.
func (f Floor) Render(img *camera.Image, ox, oy float64) {
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			fx, fy := float64(x)-ox, float64(y)-oy
			v := 128 + f.Contrast*(30*math.Sin(2*math.Pi*fx/17)+
				30*math.Sin(2*math.Pi*fy/23)+
				30*math.Sin(2*math.Pi*(fx+fy)/29)+
				30*math.Sin(2*math.Pi*(fx-fy)/13))
			img.Pix[y*img.Width+x] = uint8(math.Max(0, math.Min(255, math.Round(v))))
		}
	}
}

// Camera captures frames of a Floor moving at a constant pixel velocity.
type Camera struct {
	Stream *camera.Stream
	Floor  Floor
	// VX, VY are the image motion in pixels per frame.
	VX, VY float64

	mu     sync.Mutex
	frames int
}

// NewCamera returns a camera filling stream.
func NewCamera(stream *camera.Stream, vx, vy float64) *Camera {
	return &Camera{Stream: stream, Floor: Floor{Contrast: 1}, VX: vx, VY: vy}
}

// CaptureOne captures the next frame. It returns false when the stream had
// no free buffer.
func (c *Camera) CaptureOne() bool {
	c.mu.Lock()
	n := c.frames
	c.mu.Unlock()

	ok := c.Stream.Capture(func(img *camera.Image, _ camera.CaptureParams) {
		c.Floor.Render(img, c.VX*float64(n), c.VY*float64(n))
	})
	c.mu.Lock()
	c.frames++
	c.mu.Unlock()
	return ok
}

// Run captures one frame per period until ctx is done.
func (c *Camera) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.CaptureOne()
		}
	}
}

// Gyro returns constant sensor-frame rates in rad/s.
type Gyro struct {
	X, Y, Z float64
	Temp    float64
}

func (g Gyro) Read() (x, y, z, temp float64) {
	return g.X, g.Y, g.Z, g.Temp
}

// Rangefinder is a distance.Driver at a fixed height with Gaussian noise.
type Rangefinder struct {
	Height float64
	Noise  float64

	mu        sync.Mutex
	rng       *rand.Rand
	triggered bool
}

// NewRangefinder returns a rangefinder seeded with seed.
func NewRangefinder(height, noise float64, seed int64) *Rangefinder {
	return &Rangefinder{Height: height, Noise: noise, rng: rand.New(rand.NewSource(seed))}
}

func (r *Rangefinder) Trigger() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggered = true
	return nil
}

func (r *Rangefinder) Readback() (float64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.triggered {
		return 0, false, nil
	}
	r.triggered = false
	return r.Height + r.rng.NormFloat64()*r.Noise, true, nil
}

// LED logs status changes of at least a tenth of full scale.
type LED struct {
	mu    sync.Mutex
	level float64
	set   bool
}

func (l *LED) SetStatus(level float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set && math.Abs(level-l.level) < 0.1 {
		return
	}
	l.level, l.set = level, true
	monitoring.Logf("led: %.2f", level)
}

// Level returns the last status set.
func (l *LED) Level() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// NeighbourFlow returns a generator of flow lines as another sensor on the
// secondary link would send them, for forwarding tests in dev mode.
func NeighbourFlow(sensorID int) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf(`{"type":"optical_flow","sensor_id":%d,"flow_x":%d,"flow_y":0,"quality":128}`, sensorID, n%20)
	}
}
