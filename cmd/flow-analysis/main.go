// Command flow-analysis renders the recorded windows of one session as PNG
// plots and an interactive HTML chart, and prints summary statistics.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/opticalflow/internal/db"
	"github.com/banshee-data/opticalflow/internal/security"
	"github.com/banshee-data/opticalflow/internal/units"
)

type options struct {
	DBPath     string
	Session    string
	OutDir     string
	SpeedUnit  string
	AngleUnit  string
	Limit      int
	SkipPNG    bool
	SkipHTML   bool
	PlotWidth  float64 // inches
	PlotHeight float64
}

func main() {
	var o options
	flag.StringVar(&o.DBPath, "db", "flow.db", "Path to the flow window database")
	flag.StringVar(&o.Session, "session", "", "Session id (defaults to the latest)")
	flag.StringVar(&o.OutDir, "out", ".", "Output directory, under the working or temp directory")
	flag.StringVar(&o.SpeedUnit, "units", units.KPH, "Speed units: "+units.GetValidUnitsString())
	flag.StringVar(&o.AngleUnit, "angle-units", units.Degrees, "Angle units: rad or deg")
	flag.IntVar(&o.Limit, "limit", 20000, "Maximum number of windows")
	flag.BoolVar(&o.SkipPNG, "no-png", false, "Skip the PNG plots")
	flag.BoolVar(&o.SkipHTML, "no-html", false, "Skip the HTML chart")
	flag.Float64Var(&o.PlotWidth, "width", 14, "PNG width in inches")
	flag.Float64Var(&o.PlotHeight, "height", 6, "PNG height in inches")
	flag.Parse()

	if err := run(os.Stdout, o); err != nil {
		log.Fatalf("flow-analysis: %v", err)
	}
}

func (o options) validate() error {
	if !units.IsValid(o.SpeedUnit) {
		return fmt.Errorf("invalid speed units %q, want one of %s", o.SpeedUnit, units.GetValidUnitsString())
	}
	if o.AngleUnit != units.Radians && o.AngleUnit != units.Degrees {
		return fmt.Errorf("invalid angle units %q", o.AngleUnit)
	}
	if o.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", o.Limit)
	}
	return security.CheckExportPath(o.OutDir)
}

// outputPath names a file for session inside dir.
func outputPath(dir, session, suffix string) (string, error) {
	path := filepath.Join(dir, security.SanitizeFilename(session)+suffix)
	if err := security.CheckWithin(path, dir); err != nil {
		return "", err
	}
	return path, nil
}

func run(out io.Writer, o options) error {
	if err := o.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(o.OutDir, 0o755); err != nil {
		return err
	}

	store, err := db.OpenDB(o.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	session := o.Session
	if session == "" {
		if session, err = store.LatestSession(); err != nil {
			return err
		}
		if session == "" {
			return fmt.Errorf("no sessions in %s", o.DBPath)
		}
	}
	windows, err := store.Windows(db.WindowQuery{SessionID: session, Limit: o.Limit})
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		return fmt.Errorf("session %s has no windows", session)
	}

	s := summarize(windows, o.SpeedUnit)
	s.Print(out, session)

	if !o.SkipPNG {
		plots := []struct {
			suffix string
			render func([]db.FlowWindow, options, string) error
		}{
			{"_quality.png", plotQuality},
			{"_speed.png", plotSpeed},
			{"_integrated.png", plotIntegrated},
		}
		for _, p := range plots {
			path, err := outputPath(o.OutDir, session, p.suffix)
			if err != nil {
				return err
			}
			if err := p.render(windows, o, path); err != nil {
				return fmt.Errorf("plot %s: %w", path, err)
			}
			fmt.Fprintf(out, "wrote %s\n", path)
		}
	}

	if !o.SkipHTML {
		path, err := outputPath(o.OutDir, session, ".html")
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := db.RenderChart(f, session, windows, o.SpeedUnit); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return nil
}
