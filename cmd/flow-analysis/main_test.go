package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/opticalflow/internal/accumulator"
	"github.com/banshee-data/opticalflow/internal/db"
	"github.com/banshee-data/opticalflow/internal/pipeline"
	"github.com/banshee-data/opticalflow/internal/units"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func defaultOptions(t *testing.T, dbPath string) options {
	return options{
		DBPath:     dbPath,
		OutDir:     t.TempDir(),
		SpeedUnit:  units.MPS,
		AngleUnit:  units.Degrees,
		Limit:      100,
		PlotWidth:  4,
		PlotHeight: 3,
	}
}

// seed records n windows 100ms apart moving at 0.3, -0.4 m/s.
func seed(t *testing.T, n int) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flow.db")
	store, err := db.NewDB(path)
	require.NoError(t, err)
	defer store.Close()

	id, err := store.StartSession(77, "block", map[string]int{"serial_throttle_factor": 10}, t0)
	require.NoError(t, err)
	log := store.NewFlowLog(id)
	for i := 0; i < n; i++ {
		w := pipeline.Window{
			Time:        t0.Add(time.Duration(i) * 100 * time.Millisecond),
			Counter:     uint32(10 * (i + 1)),
			Algorithm:   "block",
			Frames:      10,
			ValidFrames: 10,
			Linear: accumulator.OutputFlow{
				FlowCompMX:     0.3,
				FlowCompMY:     -0.4,
				Quality:        uint8(100 + 10*i),
				GroundDistance: 1.5,
			},
			Angular: accumulator.OutputFlowRad{
				IntegrationTime: 100 * time.Millisecond,
				IntegratedX:     0.01,
				GroundDistance:  1.5,
			},
			ComputeTime: 2 * time.Millisecond,
		}
		if i == n-1 {
			w.FPS = 100
		}
		require.NoError(t, log.RecordWindow(w))
	}
	return path, id
}

func TestRun(t *testing.T) {
	path, id := seed(t, 5)
	o := defaultOptions(t, path)
	var out bytes.Buffer
	require.NoError(t, run(&out, o))

	assert.Contains(t, out.String(), "session "+id+": 5 windows over 400ms")
	assert.Contains(t, out.String(), "speed    mean 0.50 max 0.50 mps")
	assert.Contains(t, out.String(), "ground   median 1.50 m")
	for _, suffix := range []string{"_quality.png", "_speed.png", "_integrated.png"} {
		b, err := os.ReadFile(filepath.Join(o.OutDir, id+suffix))
		require.NoError(t, err, suffix)
		assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG")), suffix)
	}
	html, err := os.ReadFile(filepath.Join(o.OutDir, id+".html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "speed (mps)")
}

func TestRun_SkipOutputs(t *testing.T) {
	path, id := seed(t, 2)
	o := defaultOptions(t, path)
	o.Session = id
	o.SkipPNG, o.SkipHTML = true, true
	require.NoError(t, run(&bytes.Buffer{}, o))
	entries, err := os.ReadDir(o.OutDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_Errors(t *testing.T) {
	path, _ := seed(t, 1)

	o := defaultOptions(t, path)
	o.Session = "no-such-session"
	assert.ErrorContains(t, run(&bytes.Buffer{}, o), "has no windows")

	o = defaultOptions(t, path)
	o.SpeedUnit = "furlongs"
	assert.ErrorContains(t, run(&bytes.Buffer{}, o), "invalid speed units")

	o = defaultOptions(t, path)
	o.AngleUnit = "grad"
	assert.ErrorContains(t, run(&bytes.Buffer{}, o), "invalid angle units")

	o = defaultOptions(t, path)
	o.Limit = 0
	assert.Error(t, run(&bytes.Buffer{}, o))

	o = defaultOptions(t, path)
	o.OutDir = "/proc/self"
	assert.Error(t, run(&bytes.Buffer{}, o))

	empty := filepath.Join(t.TempDir(), "empty.db")
	store, err := db.NewDB(empty)
	require.NoError(t, err)
	store.Close()
	assert.ErrorContains(t, run(&bytes.Buffer{}, defaultOptions(t, empty)), "no sessions")
}

func TestSummarize(t *testing.T) {
	windows := []db.FlowWindow{
		{Time: t0, Quality: 100, FlowCompMX: 3, FlowCompMY: 4, GroundDistance: -1, ComputeTime: time.Millisecond},
		{Time: t0.Add(time.Second), Quality: 200, FlowCompMX: 0, FlowCompMY: 1, GroundDistance: 2, LowConfidence: true, FPS: 50, ComputeTime: 3 * time.Millisecond},
	}
	s := summarize(windows, units.KPH)
	assert.Equal(t, 2, s.Windows)
	assert.Equal(t, 1, s.LowConfidence)
	assert.Equal(t, time.Second, s.Duration)
	assert.InDelta(t, 150, s.MeanQuality, 1e-9)
	assert.InDelta(t, 10.8, s.MeanSpeed, 1e-9)
	assert.InDelta(t, 18, s.MaxSpeed, 1e-9)
	assert.InDelta(t, 50, s.MeanFPS, 1e-9)
	assert.Equal(t, 2*time.Millisecond, s.MeanCompute)
	assert.InDelta(t, 2, s.MedianGround, 1e-9)

	assert.Equal(t, -1.0, summarize(nil, units.MPS).MedianGround)
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	p, err := outputPath(dir, "../../escape", ".png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.png"), p)
}
