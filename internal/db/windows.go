package db

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/banshee-data/opticalflow/internal/monitoring"
	"github.com/banshee-data/opticalflow/internal/pipeline"
)

// FlowWindow is one stored output window.
type FlowWindow struct {
	ID              int64         `json:"id"`
	SessionID       string        `json:"session_id"`
	Time            time.Time     `json:"time"`
	Counter         uint32        `json:"counter"`
	Algorithm       string        `json:"algorithm"`
	Frames          int           `json:"frames"`
	ValidFrames     int           `json:"valid_frames"`
	FlowX           int16         `json:"flow_x"`
	FlowY           int16         `json:"flow_y"`
	FlowCompMX      float64       `json:"flow_comp_m_x"`
	FlowCompMY      float64       `json:"flow_comp_m_y"`
	Quality         uint8         `json:"quality"`
	GroundDistance  float64       `json:"ground_distance"`
	LowConfidence   bool          `json:"low_confidence"`
	IntegrationTime time.Duration `json:"integration_time"`
	IntegratedX     float64       `json:"integrated_x"`
	IntegratedY     float64       `json:"integrated_y"`
	IntegratedXGyro float64       `json:"integrated_x_gyro"`
	IntegratedYGyro float64       `json:"integrated_y_gyro"`
	IntegratedZGyro float64       `json:"integrated_z_gyro"`
	Temperature     float64       `json:"temperature"`
	ComputeTime     time.Duration `json:"compute_time"`
	FPS             float64       `json:"fps"`
	SkippedFPS      float64       `json:"skipped_fps"`
}

// Speed is the metric ground speed of the window in m/s.
func (w FlowWindow) Speed() float64 {
	return math.Hypot(w.FlowCompMX, w.FlowCompMY)
}

// FlowLog records the windows of one session. It implements
// pipeline.WindowRecorder.
type FlowLog struct {
	db      *DB
	session string
	written monitoring.Counter
}

// NewFlowLog returns a recorder writing into session.
func (db *DB) NewFlowLog(session string) *FlowLog {
	return &FlowLog{db: db, session: session}
}

// Session returns the session id windows are recorded under.
func (l *FlowLog) Session() string { return l.session }

// Written returns the number of windows stored.
func (l *FlowLog) Written() uint64 { return l.written.Load() }

func (l *FlowLog) RecordWindow(w pipeline.Window) error {
	_, err := l.db.Exec(`
		INSERT INTO flow_windows (
			session_id, time_unix_nanos, counter, algorithm, frames, valid_frames,
			flow_x, flow_y, flow_comp_m_x, flow_comp_m_y, quality, ground_distance, low_confidence,
			integration_us, integrated_x, integrated_y,
			integrated_x_gyro, integrated_y_gyro, integrated_z_gyro, temperature,
			compute_us, fps, skipped_fps
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.session, w.Time.UnixNano(), w.Counter, w.Algorithm, w.Frames, w.ValidFrames,
		w.Linear.FlowX, w.Linear.FlowY, w.Linear.FlowCompMX, w.Linear.FlowCompMY,
		w.Linear.Quality, w.Linear.GroundDistance, w.Linear.LowConfidence,
		w.Angular.IntegrationTime.Microseconds(), w.Angular.IntegratedX, w.Angular.IntegratedY,
		w.Angular.IntegratedXGyro, w.Angular.IntegratedYGyro, w.Angular.IntegratedZGyro, w.Angular.Temperature,
		w.ComputeTime.Microseconds(), w.FPS, w.SkippedFPS,
	)
	if err != nil {
		return fmt.Errorf("insert window %d: %w", w.Counter, err)
	}
	l.written.Inc(0)
	return nil
}

// WindowQuery selects stored windows. Zero fields do not filter; a zero
// Limit returns everything.
type WindowQuery struct {
	SessionID string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Windows returns the windows matching q in time order. With a Limit the
// most recent windows are kept.
func (db *DB) Windows(q WindowQuery) ([]FlowWindow, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if !q.Since.IsZero() {
		where = append(where, "time_unix_nanos >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		where = append(where, "time_unix_nanos < ?")
		args = append(args, q.Until.UnixNano())
	}

	query := `SELECT window_id, session_id, time_unix_nanos, counter, algorithm, frames, valid_frames,
		flow_x, flow_y, flow_comp_m_x, flow_comp_m_y, quality, ground_distance, low_confidence,
		integration_us, integrated_x, integrated_y,
		integrated_x_gyro, integrated_y_gyro, integrated_z_gyro, temperature,
		compute_us, fps, skipped_fps
		FROM flow_windows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY time_unix_nanos DESC, window_id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FlowWindow
	for rows.Next() {
		var (
			w                    FlowWindow
			ts                   int64
			integrationUs, cpuUs int64
		)
		if err := rows.Scan(&w.ID, &w.SessionID, &ts, &w.Counter, &w.Algorithm, &w.Frames, &w.ValidFrames,
			&w.FlowX, &w.FlowY, &w.FlowCompMX, &w.FlowCompMY, &w.Quality, &w.GroundDistance, &w.LowConfidence,
			&integrationUs, &w.IntegratedX, &w.IntegratedY,
			&w.IntegratedXGyro, &w.IntegratedYGyro, &w.IntegratedZGyro, &w.Temperature,
			&cpuUs, &w.FPS, &w.SkippedFPS); err != nil {
			return nil, err
		}
		w.Time = time.Unix(0, ts).UTC()
		w.IntegrationTime = time.Duration(integrationUs) * time.Microsecond
		w.ComputeTime = time.Duration(cpuUs) * time.Microsecond
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// newest first so LIMIT keeps the latest
	slices.Reverse(out)
	return out, nil
}
