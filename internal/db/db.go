// Package db stores emitted flow windows in SQLite so runs can be compared
// and replayed offline. The schema is managed by golang-migrate from the
// embedded migrations directory.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// pragmas are applied to every connection through the DSN.
const pragmas = "?_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=temp_store(MEMORY)" +
	"&_pragma=foreign_keys(1)"

type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the database at path without touching the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{DB: db, path: path}, nil
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string { return db.path }

// Session describes one run of the pipeline.
type Session struct {
	ID         string    `json:"session_id"`
	Started    time.Time `json:"started"`
	SensorID   int       `json:"sensor_id"`
	Algorithm  string    `json:"algorithm"`
	ConfigJSON string    `json:"config"`
}

// StartSession registers a new run and returns its id. cfg is stored as
// JSON for later reference.
func (db *DB) StartSession(sensorID int, algorithm string, cfg interface{}, now time.Time) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal session config: %w", err)
	}
	id := uuid.NewString()
	_, err = db.Exec(
		`INSERT INTO sessions (session_id, started_unix_nanos, sensor_id, algorithm, config_json)
		VALUES (?, ?, ?, ?, ?)`,
		id, now.UnixNano(), sensorID, algorithm, string(raw),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	log.Printf("flow log session %s started", id)
	return id, nil
}

// SessionSummary is a session plus aggregates over its windows.
type SessionSummary struct {
	Session
	Windows     int       `json:"windows"`
	MeanQuality float64   `json:"mean_quality"`
	LastWindow  time.Time `json:"last_window"`
}

// Sessions lists every session, newest first.
func (db *DB) Sessions() ([]SessionSummary, error) {
	rows, err := db.Query(`
		SELECT s.session_id, s.started_unix_nanos, s.sensor_id, s.algorithm, s.config_json,
			COUNT(w.window_id), COALESCE(AVG(w.quality), 0), COALESCE(MAX(w.time_unix_nanos), 0)
		FROM sessions s
		LEFT JOIN flow_windows w ON w.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_unix_nanos DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s             SessionSummary
			started, last int64
		)
		if err := rows.Scan(&s.ID, &started, &s.SensorID, &s.Algorithm, &s.ConfigJSON,
			&s.Windows, &s.MeanQuality, &last); err != nil {
			return nil, err
		}
		s.Started = time.Unix(0, started).UTC()
		if last > 0 {
			s.LastWindow = time.Unix(0, last).UTC()
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSession returns the id of the most recently started session, or ""
// when there is none.
func (db *DB) LatestSession() (string, error) {
	var id string
	err := db.QueryRow(`SELECT session_id FROM sessions ORDER BY started_unix_nanos DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}
