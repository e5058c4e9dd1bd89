package main

import (
	"context"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/opticalflow/internal/httputil"
	"github.com/banshee-data/opticalflow/internal/pipeline"
	"github.com/banshee-data/opticalflow/internal/scheduler"
	"github.com/banshee-data/opticalflow/internal/timeutil"
)

// runLoop drives the session from one goroutine until ctx is done: due
// housekeeping tasks first, then at most one frame pair. It sleeps for
// idle when no pair was ready.
func runLoop(ctx context.Context, sess *pipeline.Session, sch *scheduler.Scheduler, clock timeutil.Clock, idle time.Duration) {
	for ctx.Err() == nil {
		sch.Tick(clock.Now())
		if !sess.Poll() && idle > 0 {
			clock.Sleep(idle)
		}
	}
}

type latestResponse struct {
	Seq            uint64  `json:"seq"`
	Quality        uint8   `json:"quality"`
	PixelFlowX     float64 `json:"pixel_flow_x"`
	PixelFlowY     float64 `json:"pixel_flow_y"`
	XRate          float64 `json:"x_rate"`
	YRate          float64 `json:"y_rate"`
	ZRate          float64 `json:"z_rate"`
	GroundDistance float64 `json:"ground_distance"`
	DistanceAgeMS  int64   `json:"distance_age_ms"`
	Dt             float64 `json:"dt"`
}

func attachFlowRoutes(mux *http.ServeMux, latest *pipeline.LatestRecord) {
	debug := tsweb.Debugger(mux)
	debug.Handle("flow/latest", "Most recent frame record (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, seq := latest.Load()
		if seq == 0 {
			httputil.WriteError(w, http.StatusServiceUnavailable, "no frames processed yet")
			return
		}
		httputil.WriteJSONOK(w, latestResponse{
			Seq:            seq,
			Quality:        rec.Quality,
			PixelFlowX:     rec.PixelFlowX,
			PixelFlowY:     rec.PixelFlowY,
			XRate:          rec.XRate,
			YRate:          rec.YRate,
			ZRate:          rec.ZRate,
			GroundDistance: rec.GroundDistance,
			DistanceAgeMS:  rec.DistanceAge.Milliseconds(),
			Dt:             rec.Dt,
		})
	}))
}
