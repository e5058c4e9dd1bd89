package main

import (
	"fmt"
	"image/color"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/opticalflow/internal/db"
	"github.com/banshee-data/opticalflow/internal/units"
)

type summary struct {
	Windows       int
	LowConfidence int
	Duration      time.Duration
	MeanQuality   float64
	StdQuality    float64
	MeanSpeed     float64
	MaxSpeed      float64
	SpeedUnit     string
	MeanFPS       float64 // over windows that carried a throughput sample
	MeanCompute   time.Duration
	MedianGround  float64 // metres, -1 without a valid distance
}

func summarize(windows []db.FlowWindow, unit string) summary {
	s := summary{Windows: len(windows), SpeedUnit: unit, MedianGround: -1}
	if len(windows) == 0 {
		return s
	}
	s.Duration = windows[len(windows)-1].Time.Sub(windows[0].Time)

	quality := make([]float64, len(windows))
	speed := make([]float64, len(windows))
	var fps, ground []float64
	var compute time.Duration
	for i, w := range windows {
		quality[i] = float64(w.Quality)
		speed[i] = units.ConvertSpeed(w.Speed(), unit)
		if speed[i] > s.MaxSpeed {
			s.MaxSpeed = speed[i]
		}
		if w.LowConfidence {
			s.LowConfidence++
		}
		if w.FPS > 0 {
			fps = append(fps, w.FPS)
		}
		if w.GroundDistance >= 0 {
			ground = append(ground, w.GroundDistance)
		}
		compute += w.ComputeTime
	}
	s.MeanQuality, s.StdQuality = stat.MeanStdDev(quality, nil)
	s.MeanSpeed = stat.Mean(speed, nil)
	if len(fps) > 0 {
		s.MeanFPS = stat.Mean(fps, nil)
	}
	if len(ground) > 0 {
		s.MedianGround = median(ground)
	}
	s.MeanCompute = compute / time.Duration(len(windows))
	return s
}

func median(x []float64) float64 {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func (s summary) Print(w io.Writer, session string) {
	fmt.Fprintf(w, "session %s: %d windows over %v (%d low confidence)\n", session, s.Windows, s.Duration.Round(time.Millisecond), s.LowConfidence)
	fmt.Fprintf(w, "  quality  mean %.1f sd %.1f\n", s.MeanQuality, s.StdQuality)
	fmt.Fprintf(w, "  speed    mean %.2f max %.2f %s\n", s.MeanSpeed, s.MaxSpeed, s.SpeedUnit)
	if s.MeanFPS > 0 {
		fmt.Fprintf(w, "  fps      mean %.1f\n", s.MeanFPS)
	}
	fmt.Fprintf(w, "  compute  mean %v\n", s.MeanCompute)
	if s.MedianGround >= 0 {
		fmt.Fprintf(w, "  ground   median %.2f m\n", s.MedianGround)
	}
}

// seconds returns the window times relative to the first window.
func seconds(windows []db.FlowWindow) []float64 {
	out := make([]float64, len(windows))
	for i, w := range windows {
		out[i] = w.Time.Sub(windows[0].Time).Seconds()
	}
	return out
}

func newTimePlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

func addLine(p *plot.Plot, label string, xs, ys []float64, c color.Color) error {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func save(p *plot.Plot, o options, path string) error {
	return p.Save(vg.Length(o.PlotWidth)*vg.Inch, vg.Length(o.PlotHeight)*vg.Inch, path)
}

var (
	blue   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	orange = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	green  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	red    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

func plotQuality(windows []db.FlowWindow, o options, path string) error {
	xs := seconds(windows)
	quality := make([]float64, len(windows))
	valid := make([]float64, len(windows))
	for i, w := range windows {
		quality[i] = float64(w.Quality)
		if w.Frames > 0 {
			valid[i] = 255 * float64(w.ValidFrames) / float64(w.Frames)
		}
	}
	p := newTimePlot("Flow quality", "Quality (0-255)")
	if err := addLine(p, "quality", xs, quality, blue); err != nil {
		return err
	}
	if err := addLine(p, "valid frames (scaled)", xs, valid, orange); err != nil {
		return err
	}
	return save(p, o, path)
}

func plotSpeed(windows []db.FlowWindow, o options, path string) error {
	xs := seconds(windows)
	speed := make([]float64, len(windows))
	vx := make([]float64, len(windows))
	vy := make([]float64, len(windows))
	for i, w := range windows {
		speed[i] = units.ConvertSpeed(w.Speed(), o.SpeedUnit)
		vx[i] = units.ConvertSpeed(w.FlowCompMX, o.SpeedUnit)
		vy[i] = units.ConvertSpeed(w.FlowCompMY, o.SpeedUnit)
	}
	p := newTimePlot("Ground speed", "Speed ("+o.SpeedUnit+")")
	for _, l := range []struct {
		label string
		ys    []float64
		c     color.Color
	}{{"speed", speed, blue}, {"x", vx, orange}, {"y", vy, green}} {
		if err := addLine(p, l.label, xs, l.ys, l.c); err != nil {
			return err
		}
	}
	return save(p, o, path)
}

func plotIntegrated(windows []db.FlowWindow, o options, path string) error {
	xs := seconds(windows)
	ix := make([]float64, len(windows))
	iy := make([]float64, len(windows))
	gx := make([]float64, len(windows))
	gy := make([]float64, len(windows))
	for i, w := range windows {
		ix[i] = units.ConvertAngle(w.IntegratedX, o.AngleUnit)
		iy[i] = units.ConvertAngle(w.IntegratedY, o.AngleUnit)
		gx[i] = units.ConvertAngle(w.IntegratedXGyro, o.AngleUnit)
		gy[i] = units.ConvertAngle(w.IntegratedYGyro, o.AngleUnit)
	}
	p := newTimePlot("Integrated flow and gyro", "Angle ("+o.AngleUnit+")")
	for _, l := range []struct {
		label string
		ys    []float64
		c     color.Color
	}{{"flow x", ix, blue}, {"flow y", iy, orange}, {"gyro x", gx, green}, {"gyro y", gy, red}} {
		if err := addLine(p, l.label, xs, l.ys, l.c); err != nil {
			return err
		}
	}
	return save(p, o, path)
}
