package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/opticalflow/internal/camera"
	"github.com/banshee-data/opticalflow/internal/config"
	"github.com/banshee-data/opticalflow/internal/db"
	"github.com/banshee-data/opticalflow/internal/distance"
	"github.com/banshee-data/opticalflow/internal/monitoring"
	"github.com/banshee-data/opticalflow/internal/pipeline"
	"github.com/banshee-data/opticalflow/internal/scheduler"
	"github.com/banshee-data/opticalflow/internal/serialmux"
	"github.com/banshee-data/opticalflow/internal/sim"
	"github.com/banshee-data/opticalflow/internal/telemetry"
	"github.com/banshee-data/opticalflow/internal/timeutil"
	"github.com/banshee-data/opticalflow/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run with a simulated camera, rangefinder and neighbour link")
	configPath    = flag.String("config", "", "Path to a JSON flow config (defaults when empty)")
	listen        = flag.String("listen", ":8080", "Listen address for the debug server")
	primaryPort   = flag.String("primary-port", "/dev/ttyACM0", "Serial port of the primary telemetry link (empty disables)")
	secondaryPort = flag.String("secondary-port", "", "Serial port of the secondary telemetry link (empty disables)")
	distancePort  = flag.String("distance-port", "", "Serial port of the rangefinder (empty disables)")
	dbPath        = flag.String("db", "flow.db", "Path to the flow window database")
	framePeriod   = flag.Duration("frame-period", 5*time.Millisecond, "Capture period of the simulated camera")
	idleSleep     = flag.Duration("idle-sleep", time.Millisecond, "Sleep between polls when no frame pair is ready")
	logOps        = flag.Bool("log-ops", true, "Log actionable pipeline faults")
	logDiag       = flag.Bool("log-diag", false, "Log per-window throughput and tuning")
	logTrace      = flag.Bool("log-trace", false, "Log every processed frame")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: flow [flags]\n       flow migrate <action> [args]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("flow " + version.String())
		return
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], *dbPath); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	pipeline.SetLogWriters(logWriter(*logOps), logWriter(*logDiag), logWriter(*logTrace))

	params, err := loadParams(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, params); err != nil {
		log.Fatalf("flow: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func logWriter(enabled bool) io.Writer {
	if enabled {
		return os.Stderr
	}
	return nil
}

// loadParams resolves the runtime parameters from path, or from the
// built-in defaults when path is empty.
func loadParams(path string) (*config.Params, error) {
	cfg := config.EmptyFlowConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadFlowConfig(path); err != nil {
			return nil, err
		}
	}
	p := cfg.Resolve()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// captureParams derives the initial capture settings from the parameters.
// The image is square.
func captureParams(p *config.Params) camera.CaptureParams {
	return camera.CaptureParams{
		Width:      p.ImageWidth,
		Height:     p.ImageWidth,
		Binning:    p.Binning,
		Exposure:   500,
		AnalogGain: 1,
	}
}

// openLink opens the serial link at path. Dev mode substitutes a mock
// driven by gen; an empty path yields a disabled link.
func openLink(path string, opts serialmux.PortOptions, dev bool, gen func() string) (serialmux.Mux, error) {
	switch {
	case dev:
		return serialmux.NewMockSerialMux(gen, 200*time.Millisecond), nil
	case path == "":
		return serialmux.NewDisabledSerialMux(), nil
	}
	return serialmux.OpenSerialMux(path, opts, nil)
}

type links struct {
	primary, secondary, distance serialmux.Mux
}

func (l links) each(fn func(name string, m serialmux.Mux)) {
	fn("primary", l.primary)
	fn("secondary", l.secondary)
	if l.distance != nil {
		fn("distance", l.distance)
	}
}

func openLinks(params *config.Params) (links, error) {
	var l links
	var err error
	if l.primary, err = openLink(*primaryPort, serialmux.TelemetryOptions(), *devMode, nil); err != nil {
		return l, fmt.Errorf("primary link: %w", err)
	}
	if l.secondary, err = openLink(*secondaryPort, serialmux.TelemetryOptions(), *devMode, sim.NeighbourFlow(params.SensorID+1)); err != nil {
		l.primary.Close()
		return l, fmt.Errorf("secondary link: %w", err)
	}
	if !*devMode && *distancePort != "" {
		if l.distance, err = serialmux.OpenSerialMux(*distancePort, serialmux.DistanceOptions(), nil); err != nil {
			l.primary.Close()
			l.secondary.Close()
			return l, fmt.Errorf("distance link: %w", err)
		}
	}
	return l, nil
}

func run(ctx context.Context, params *config.Params) error {
	ls, err := openLinks(params)
	if err != nil {
		return err
	}
	defer ls.each(func(name string, m serialmux.Mux) {
		if err := m.Close(); err != nil {
			log.Printf("close %s link: %v", name, err)
		}
	})

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	sessionID, err := store.StartSession(params.SensorID, params.Algorithm, params, time.Now())
	if err != nil {
		return err
	}

	stream, err := camera.NewStream(camera.MinBuffers+1, captureParams(params), nil)
	if err != nil {
		return err
	}

	hub := telemetry.NewHub(nil)
	primaryLink := telemetry.NewSerialLink(ls.primary)
	secondaryLink := telemetry.NewSerialLink(ls.secondary)
	defer primaryLink.Close()
	defer secondaryLink.Close()
	hub.Attach(telemetry.Primary, primaryLink)
	hub.Attach(telemetry.Secondary, secondaryLink)

	var rng pipeline.RangeSource
	switch {
	case *devMode:
		rng = distance.NewTracker(sim.NewRangefinder(1.5, 0.01, time.Now().UnixNano()), nil, distance.DefaultAlpha)
	case ls.distance != nil:
		driver := distance.NewSerialDriver(ls.distance)
		defer driver.Close()
		rng = distance.NewTracker(driver, nil, distance.DefaultAlpha)
	}

	// Inbound subscriptions are taken before the monitors start so no
	// line is missed.
	primaryID, primaryIn := ls.primary.Subscribe()
	defer ls.primary.Unsubscribe(primaryID)
	secondaryID, secondaryIn := ls.secondary.Subscribe()
	defer ls.secondary.Unsubscribe(secondaryID)

	latest := &pipeline.LatestRecord{}
	cfg := pipeline.Config{
		Params:   params,
		Frames:   stream,
		Hub:      hub,
		Range:    rng,
		Status:   &sim.LED{},
		Recorder: store.NewFlowLog(sessionID),
		Sinks:    []pipeline.RecordSink{latest},
		Inbound: map[telemetry.Channel]<-chan string{
			telemetry.Primary:   primaryIn,
			telemetry.Secondary: secondaryIn,
		},
	}
	if *devMode {
		cfg.Gyro = sim.Gyro{Z: 0.05, Temp: 36.5}
	}
	sess, err := pipeline.NewSession(cfg)
	if err != nil {
		return err
	}
	sch := scheduler.New()
	if err := sess.RegisterTasks(sch); err != nil {
		return err
	}
	log.Printf("flow %s: session %s, sensor %d, algorithm %s", version.String(), sessionID, params.SensorID, params.Algorithm)

	var wg sync.WaitGroup
	ls.each(func(name string, m serialmux.Mux) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor %s link: %v", name, err)
			}
			log.Printf("%s monitor routine terminated", name)
		}()
	})

	// The simulated camera stands in for the sensor in every mode until a
	// hardware capture driver exists.
	cam := sim.NewCamera(stream, 0.8, -0.3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := cam.Run(ctx, *framePeriod); err != nil && err != context.Canceled {
			log.Printf("camera stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	ls.each(func(name string, m serialmux.Mux) { m.AttachAdminRoutes(mux, name) })
	store.AttachAdminRoutes(mux)
	attachFlowRoutes(mux, latest)

	wg.Add(1)
	go func() {
		defer wg.Done()
		serve(ctx, mux)
	}()

	runLoop(ctx, sess, sch, timeutil.RealClock{}, *idleSleep)
	wg.Wait()

	st := sess.Stats()
	log.Printf("processed %d pairs, emitted %d windows, dropped %d frames", st.Processed, st.Emitted, st.Dropped)
	return nil
}

func serve(ctx context.Context, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    *listen,
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
