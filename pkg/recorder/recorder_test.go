package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/skin"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "teleop.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(" "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "teleop.db")
	for i := 0; i < 2; i++ {
		store, err := Open(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		store.Close()
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 3, 9, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	sess, err := store.StartSession(context.Background(), "  glove trial ")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if sess.ID == "" || sess.Label != "glove trial" {
		t.Fatalf("session = %+v", sess)
	}

	got, err := store.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got != sess {
		t.Fatalf("session = %+v, want %+v", got, sess)
	}

	if _, err := store.GetSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, _, err := store.LatestCalibration(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	sess, _ := store.StartSession(context.Background(), "")
	base := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)

	older := skin.Calibration{Fingers: []skin.FingerCalibration{{Name: "thumb", Bias: []float64{0.1}}}}
	newer := skin.Calibration{Fingers: []skin.FingerCalibration{{
		Name:           "thumb",
		Bias:           []float64{0.05, 0.06},
		Std:            []float64{0.01, 0.02},
		DerivativeBias: []float64{0, 0.1},
		DerivativeStd:  []float64{0.3, 0.4},
		Working:        true,
	}}}

	store.now = func() time.Time { return base }
	if err := store.SaveCalibration(context.Background(), sess.ID, older); err != nil {
		t.Fatalf("save calibration: %v", err)
	}
	store.now = func() time.Time { return base.Add(time.Minute) }
	if err := store.SaveCalibration(context.Background(), sess.ID, newer); err != nil {
		t.Fatalf("save calibration: %v", err)
	}

	got, at, err := store.LatestCalibration(context.Background())
	if err != nil {
		t.Fatalf("latest calibration: %v", err)
	}
	if !at.Equal(base.Add(time.Minute)) {
		t.Errorf("created_at = %v, want %v", at, base.Add(time.Minute))
	}
	f := got.Fingers[0]
	if !f.Working || len(f.Bias) != 2 || f.DerivativeStd[1] != 0.4 {
		t.Errorf("calibration = %+v", f)
	}
}

func TestCalibrationRequiresSession(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	err := store.SaveCalibration(context.Background(), "no-such-session", skin.Calibration{})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestSkinSamples(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	sess, _ := store.StartSession(context.Background(), "")
	at := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

	samples := []SkinSample{
		{RecordedAt: at, State: "calibrating", Tactile: []float64{0, 0.1}, Feedback: []float64{0}, Contacts: []bool{false}},
		{RecordedAt: at.Add(10 * time.Millisecond), State: "running", Tactile: []float64{0.5, 0.6}, Feedback: []float64{73.2}, Contacts: []bool{true}},
	}
	for _, s := range samples {
		if err := store.RecordSkin(context.Background(), sess.ID, s); err != nil {
			t.Fatalf("record skin: %v", err)
		}
	}

	got, err := store.SkinSamples(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("skin samples: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2", len(got))
	}
	if got[1].State != "running" || got[1].Feedback[0] != 73.2 || !got[1].Contacts[0] || !got[1].RecordedAt.Equal(samples[1].RecordedAt) {
		t.Errorf("sample = %+v", got[1])
	}
}

func TestGazeSamples(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	sess, _ := store.StartSession(context.Background(), "")
	at := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

	st := gaze.Status{
		State:     "active",
		Encoders:  gaze.Posture{Tilt: 5, Version: 2, Vergence: 4},
		Commanded: gaze.Velocities{Tilt: 9.1},
		Left:      gaze.EyeAngles{Azimuth: -0.07, Elevation: 0.087},
		Right:     gaze.EyeAngles{Elevation: 0.087},
	}
	if err := store.RecordGaze(context.Background(), sess.ID, GazeSampleFromStatus(at, st)); err != nil {
		t.Fatalf("record gaze: %v", err)
	}

	got, err := store.GazeSamples(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("gaze samples: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d samples, want 1", len(got))
	}
	g := got[0]
	if g.State != "active" || g.Encoders != st.Encoders || g.Commanded != st.Commanded || g.Left != st.Left {
		t.Errorf("sample = %+v", g)
	}

	stats, err := store.SessionStats(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (Stats{GazeSamples: 1}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"no markers", "CREATE TABLE a (x);", "CREATE TABLE a (x);"},
		{"up only", "-- +migrate Up\nCREATE TABLE a (x);", "\nCREATE TABLE a (x);"},
		{"up and down", "-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;", "\nCREATE TABLE a (x);\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractUpMigration(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyMigrations_SkipsApplied(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	fsys := fstest.MapFS{
		"001_init.sql":  {Data: []byte("-- +migrate Up\nCREATE TABLE sessions (id TEXT);")},
		"900_extra.sql": {Data: []byte("CREATE TABLE extra (id TEXT);")},
		"README.md":     {Data: []byte("not sql")},
	}
	// 001_init.sql is already recorded; only the new file runs
	if err := applyMigrations(context.Background(), store.sqlDB, fsys); err != nil {
		t.Fatalf("apply: %v", err)
	}

	var n int
	if err := store.sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = '900_extra.sql'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("extra migration not recorded: n=%d err=%v", n, err)
	}

	bad := fstest.MapFS{"950_bad.sql": {Data: []byte("CREATE TABLEX nope;")}}
	err := applyMigrations(context.Background(), store.sqlDB, bad)
	if err == nil || !strings.Contains(err.Error(), "950_bad.sql") {
		t.Fatalf("expected failing migration error, got %v", err)
	}
}
