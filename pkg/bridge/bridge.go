// Package bridge runs the teleoperation loops. A skin loop turns raw
// tactile samples into vibrotactile commands for the operator's glove;
// a gaze loop turns the operator's eye gaze into eye joint velocities.
// Every tick, and every asynchronous command, runs under one mutex.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/recorder"
	"github.com/teslashibe/go-teleop/pkg/skin"
)

// Publisher delivers haptic output to the glove.
type Publisher interface {
	PublishVibrotactile(fingers []string, values []float64) error
	PublishContacts(fingers []string, inContact []bool, strength []float64) error
	PublishWorking(fingers []string, working []bool) error
}

// Recorder persists calibrations and telemetry.
type Recorder interface {
	SaveCalibration(ctx context.Context, sessionID string, c skin.Calibration) error
	RecordSkin(ctx context.Context, sessionID string, s recorder.SkinSample) error
	RecordGaze(ctx context.Context, sessionID string, g recorder.GazeSample) error
}

// StatusSink receives the per-tick snapshot, e.g. the dashboard hub.
type StatusSink interface {
	Publish(topic string, v any) error
}

// GazeSource provides the latest operator gaze.
type GazeSource interface {
	Target() gaze.Target
}

var _ Recorder = (*recorder.Store)(nil)

// ErrSkinDisabled and ErrGazeDisabled are returned by commands for a
// subsystem that was not configured.
var (
	ErrSkinDisabled = errors.New("bridge: skin loop not configured")
	ErrGazeDisabled = errors.New("bridge: gaze loop not configured")
)

// Config holds the loop parameters.
type Config struct {
	GazePeriod time.Duration `yaml:"gaze_period" json:"gaze_period"`

	// MaxStaleTicks is the number of consecutive skin ticks that may
	// reuse the last sample before the source is considered lost.
	MaxStaleTicks int `yaml:"max_stale_ticks" json:"max_stale_ticks"`

	// Telemetry is recorded and broadcast every RecordEvery ticks.
	RecordEvery int `yaml:"record_every" json:"record_every"`
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		GazePeriod:    20 * time.Millisecond,
		MaxStaleTicks: 50,
		RecordEvery:   10,
	}
}

// Deps are the collaborators of a bridge. Skin and Gaze may be nil to
// disable a loop; every other field is optional.
type Deps struct {
	Skin   *skin.Skin
	Source skin.SampleSource

	Gaze   *gaze.Retargeter
	Target GazeSource

	Publisher Publisher
	Recorder  Recorder
	SessionID string
	Status    StatusSink
}

// Bridge owns both loops.
type Bridge struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	skinMu     sync.Mutex
	skin       *skin.Skin
	source     skin.SampleSource
	skinState  SkinState
	calStart   time.Time
	calSamples int
	lastRaw    []float64
	staleTicks int
	tactile    []float64
	readErrs   uint64
	skinTicks  uint64
	fingers    []string

	gazeMu    sync.Mutex
	gaze      *gaze.Retargeter
	target    GazeSource
	gazeTicks uint64

	pub       Publisher
	rec       Recorder
	sessionID string
	status    StatusSink

	runMu   sync.Mutex
	runners []*Runner
}

// New wires a bridge.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Bridge, error) {
	if cfg.RecordEvery <= 0 {
		cfg.RecordEvery = 1
	}
	if cfg.MaxStaleTicks <= 0 {
		cfg.MaxStaleTicks = DefaultConfig().MaxStaleTicks
	}
	if deps.Skin != nil && deps.Source == nil {
		return nil, fmt.Errorf("bridge: skin loop needs a sample source")
	}
	if deps.Gaze != nil && cfg.GazePeriod <= 0 {
		return nil, fmt.Errorf("bridge: gaze period must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		cfg:       cfg,
		log:       logger,
		now:       time.Now,
		skin:      deps.Skin,
		source:    deps.Source,
		gaze:      deps.Gaze,
		target:    deps.Target,
		pub:       deps.Publisher,
		rec:       deps.Recorder,
		sessionID: deps.SessionID,
		status:    deps.Status,
	}
	if b.skin != nil {
		for _, f := range b.skin.Fingers() {
			b.fingers = append(b.fingers, f.Name)
		}
		b.tactile = make([]float64, b.skin.SensorCount())
	}
	return b, nil
}

// Run starts the configured loops and blocks until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	var wg sync.WaitGroup
	start := func(r *Runner) {
		b.runners = append(b.runners, r)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	b.runMu.Lock()
	if b.skin != nil {
		start(NewRunner("skin", b.skin.Config().SamplingTime, b.SkinTick, b.log))
	}
	if b.gaze != nil {
		start(NewRunner("gaze", b.cfg.GazePeriod, b.GazeTick, b.log))
	}
	b.runMu.Unlock()

	wg.Wait()
}

// Stats returns the diagnostics of the running loops.
func (b *Bridge) Stats() []RunnerStats {
	b.runMu.Lock()
	runners := append([]*Runner(nil), b.runners...)
	b.runMu.Unlock()

	out := make([]RunnerStats, len(runners))
	for i, r := range runners {
		out[i] = r.Stats()
	}
	return out
}

// Close homes and releases the eyes.
func (b *Bridge) Close(ctx context.Context) error {
	b.gazeMu.Lock()
	defer b.gazeMu.Unlock()
	if b.gaze == nil {
		return nil
	}
	return b.gaze.Close(ctx)
}

func (b *Bridge) publishStatus(topic string, v any) {
	if b.status == nil {
		return
	}
	if err := b.status.Publish(topic, v); err != nil {
		b.log.Debug("status broadcast failed", "topic", topic, "error", err)
	}
}

// Status is the whole bridge snapshot.
type Status struct {
	SessionID string        `json:"session_id,omitempty"`
	Skin      *SkinStatus   `json:"skin,omitempty"`
	Gaze      *gaze.Status  `json:"gaze,omitempty"`
	Runners   []RunnerStats `json:"runners"`
}

// Status returns the whole bridge snapshot.
func (b *Bridge) Status() Status {
	st := Status{SessionID: b.sessionID}
	if s, err := b.SkinStatus(); err == nil {
		st.Skin = &s
	}
	if g, err := b.GazeStatus(); err == nil {
		st.Gaze = &g
	}

	st.Runners = b.Stats()
	return st
}
