// Package recorder persists teleoperation sessions in SQLite: skin
// calibrations, so a restart can skip the calibration phase, and
// per-tick skin and gaze telemetry for offline analysis.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/recorder/migrations"
	"github.com/teslashibe/go-teleop/pkg/skin"
)

// ErrNotFound is returned when no matching row exists.
var ErrNotFound = errors.New("recorder: not found")

// Store is a SQLite session recorder.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Session is one bridge run.
type Session struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"started_at"`
}

// StartSession creates a session row and returns it.
func (s *Store) StartSession(ctx context.Context, label string) (Session, error) {
	sess := Session{
		ID:        uuid.NewString(),
		Label:     strings.TrimSpace(label),
		StartedAt: s.now().UTC(),
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (id, label, started_at) VALUES (?, ?, ?)`,
		sess.ID, sess.Label, toMillis(sess.StartedAt),
	)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		sess    Session
		started int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, label, started_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Label, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.StartedAt = fromMillis(started)
	return sess, nil
}

// SaveCalibration stores a skin calibration for the session.
func (s *Store) SaveCalibration(ctx context.Context, sessionID string, c skin.Calibration) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO calibrations (session_id, created_at, data) VALUES (?, ?, ?)`,
		sessionID, toMillis(s.now()), string(data),
	)
	if err != nil {
		return fmt.Errorf("insert calibration: %w", err)
	}
	return nil
}

// LatestCalibration returns the most recent calibration of any session.
func (s *Store) LatestCalibration(ctx context.Context) (skin.Calibration, time.Time, error) {
	var (
		data    string
		created int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT data, created_at FROM calibrations ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return skin.Calibration{}, time.Time{}, ErrNotFound
	}
	if err != nil {
		return skin.Calibration{}, time.Time{}, fmt.Errorf("get calibration: %w", err)
	}
	var c skin.Calibration
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return skin.Calibration{}, time.Time{}, fmt.Errorf("decode calibration: %w", err)
	}
	return c, fromMillis(created), nil
}

// SkinSample is one recorded skin tick.
type SkinSample struct {
	RecordedAt time.Time
	State      string
	Tactile    []float64
	Feedback   []float64
	Contacts   []bool
}

// RecordSkin appends a skin sample.
func (s *Store) RecordSkin(ctx context.Context, sessionID string, sample SkinSample) error {
	tactile, err := json.Marshal(sample.Tactile)
	if err != nil {
		return err
	}
	feedback, err := json.Marshal(sample.Feedback)
	if err != nil {
		return err
	}
	contacts, err := json.Marshal(sample.Contacts)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO skin_samples (session_id, recorded_at, state, tactile, feedback, contacts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, toMillis(sample.RecordedAt), sample.State,
		string(tactile), string(feedback), string(contacts),
	)
	if err != nil {
		return fmt.Errorf("insert skin sample: %w", err)
	}
	return nil
}

// SkinSamples returns the skin samples of a session in recording order.
func (s *Store) SkinSamples(ctx context.Context, sessionID string) ([]SkinSample, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT recorded_at, state, tactile, feedback, contacts
		 FROM skin_samples WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query skin samples: %w", err)
	}
	defer rows.Close()

	var out []SkinSample
	for rows.Next() {
		var (
			sample                      SkinSample
			at                          int64
			tactile, feedback, contacts string
		)
		if err := rows.Scan(&at, &sample.State, &tactile, &feedback, &contacts); err != nil {
			return nil, fmt.Errorf("scan skin sample: %w", err)
		}
		sample.RecordedAt = fromMillis(at)
		if err := json.Unmarshal([]byte(tactile), &sample.Tactile); err != nil {
			return nil, fmt.Errorf("decode tactile: %w", err)
		}
		if err := json.Unmarshal([]byte(feedback), &sample.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback: %w", err)
		}
		if err := json.Unmarshal([]byte(contacts), &sample.Contacts); err != nil {
			return nil, fmt.Errorf("decode contacts: %w", err)
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

// GazeSample is one recorded gaze tick.
type GazeSample struct {
	RecordedAt time.Time
	State      string
	Encoders   gaze.Posture
	Commanded  gaze.Velocities
	Left       gaze.EyeAngles
	Right      gaze.EyeAngles
}

// GazeSampleFromStatus converts a retargeter status.
func GazeSampleFromStatus(at time.Time, st gaze.Status) GazeSample {
	return GazeSample{
		RecordedAt: at,
		State:      st.State,
		Encoders:   st.Encoders,
		Commanded:  st.Commanded,
		Left:       st.Left,
		Right:      st.Right,
	}
}

// RecordGaze appends a gaze sample.
func (s *Store) RecordGaze(ctx context.Context, sessionID string, g GazeSample) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO gaze_samples (
		   session_id, recorded_at, state,
		   tilt, version, vergence,
		   cmd_tilt, cmd_version, cmd_vergence,
		   left_azimuth, left_elevation, right_azimuth, right_elevation
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, toMillis(g.RecordedAt), g.State,
		g.Encoders.Tilt, g.Encoders.Version, g.Encoders.Vergence,
		g.Commanded.Tilt, g.Commanded.Version, g.Commanded.Vergence,
		g.Left.Azimuth, g.Left.Elevation, g.Right.Azimuth, g.Right.Elevation,
	)
	if err != nil {
		return fmt.Errorf("insert gaze sample: %w", err)
	}
	return nil
}

// GazeSamples returns the gaze samples of a session in recording order.
func (s *Store) GazeSamples(ctx context.Context, sessionID string) ([]GazeSample, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT recorded_at, state, tilt, version, vergence,
		        cmd_tilt, cmd_version, cmd_vergence,
		        left_azimuth, left_elevation, right_azimuth, right_elevation
		 FROM gaze_samples WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query gaze samples: %w", err)
	}
	defer rows.Close()

	var out []GazeSample
	for rows.Next() {
		var (
			g  GazeSample
			at int64
		)
		if err := rows.Scan(&at, &g.State,
			&g.Encoders.Tilt, &g.Encoders.Version, &g.Encoders.Vergence,
			&g.Commanded.Tilt, &g.Commanded.Version, &g.Commanded.Vergence,
			&g.Left.Azimuth, &g.Left.Elevation, &g.Right.Azimuth, &g.Right.Elevation,
		); err != nil {
			return nil, fmt.Errorf("scan gaze sample: %w", err)
		}
		g.RecordedAt = fromMillis(at)
		out = append(out, g)
	}
	return out, rows.Err()
}

// Stats counts the rows recorded for a session.
type Stats struct {
	Calibrations int `json:"calibrations"`
	SkinSamples  int `json:"skin_samples"`
	GazeSamples  int `json:"gaze_samples"`
}

// SessionStats returns row counts for a session.
func (s *Store) SessionStats(ctx context.Context, sessionID string) (Stats, error) {
	var st Stats
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT
		  (SELECT COUNT(*) FROM calibrations WHERE session_id = ?),
		  (SELECT COUNT(*) FROM skin_samples WHERE session_id = ?),
		  (SELECT COUNT(*) FROM gaze_samples WHERE session_id = ?)`,
		sessionID, sessionID, sessionID,
	).Scan(&st.Calibrations, &st.SkinSamples, &st.GazeSamples)
	if err != nil {
		return Stats{}, fmt.Errorf("session stats: %w", err)
	}
	return st, nil
}
