package db

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/opticalflow/internal/httputil"
	"github.com/banshee-data/opticalflow/internal/units"
)

const (
	echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"
	defaultChartLimit = 600
	maxChartLimit     = 20000
)

// AttachAdminRoutes mounts the database debug pages on mux: tailsql, a
// backup download, the stored windows as JSON and a chart of a session.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://flow.db", db.DB, &tailsql.DBOptions{
		Label: "Flow DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))
	debug.Handle("flow/sessions", "Recorded sessions (JSON)", http.HandlerFunc(db.handleSessions))
	debug.Handle("flow/windows", "Recorded flow windows (JSON)", http.HandlerFunc(db.handleWindows))
	debug.Handle("flow/chart", "Quality and ground speed of a session", http.HandlerFunc(db.handleChart))
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("flow-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		log.Printf("backup: write failed: %v", err)
	}
}

func (db *DB) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := db.Sessions()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

// windowQuery reads session (default: latest) and limit from r.
func (db *DB) windowQuery(r *http.Request) (WindowQuery, error) {
	q := WindowQuery{SessionID: r.URL.Query().Get("session")}
	limit, err := httputil.QueryLimit(r, defaultChartLimit, maxChartLimit)
	if err != nil {
		return q, err
	}
	q.Limit = limit
	if q.SessionID == "" {
		id, err := db.LatestSession()
		if err != nil {
			return q, err
		}
		q.SessionID = id
	}
	return q, nil
}

func (db *DB) handleWindows(w http.ResponseWriter, r *http.Request) {
	q, err := db.windowQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	windows, err := db.Windows(q)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if windows == nil {
		windows = []FlowWindow{}
	}
	httputil.WriteJSONOK(w, windows)
}

func (db *DB) handleChart(w http.ResponseWriter, r *http.Request) {
	q, err := db.windowQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.MPS
	}
	if !units.IsValid(unit) {
		http.Error(w, "units must be one of "+units.GetValidUnitsString(), http.StatusBadRequest)
		return
	}
	windows, err := db.Windows(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(windows) == 0 {
		http.Error(w, "no windows recorded for session", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := RenderChart(&buf, q.SessionID, windows, unit); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// RenderChart writes an HTML page charting quality and ground speed of
// windows, speed in unit.
func RenderChart(out io.Writer, title string, windows []FlowWindow, unit string) error {
	x := make([]string, len(windows))
	quality := make([]opts.LineData, len(windows))
	speed := make([]opts.LineData, len(windows))
	distance := make([]opts.LineData, len(windows))
	for i, fw := range windows {
		x[i] = fw.Time.Format("15:04:05.000")
		quality[i] = opts.LineData{Value: fw.Quality}
		speed[i] = opts.LineData{Value: units.ConvertSpeed(fw.Speed(), unit)}
		if fw.GroundDistance >= 0 {
			distance[i] = opts.LineData{Value: fw.GroundDistance}
		} else {
			distance[i] = opts.LineData{Value: "-"}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Optical flow", Width: "100%", Height: "720px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Optical flow", Subtitle: fmt.Sprintf("session=%s windows=%d", title, len(windows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).
		AddSeries("quality", quality).
		AddSeries("speed ("+unit+")", speed).
		AddSeries("ground distance (m)", distance)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(line)
	return page.Render(out)
}
