package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// STS servos report 4096 steps per revolution.
const (
	stepsPerRevolution = 4096
	degreesPerStep     = 360.0 / stepsPerRevolution
)

// ServoConfig maps one eye joint to a bus servo.
type ServoConfig struct {
	Name     string     `yaml:"name" json:"name"`
	ID       int        `yaml:"id" json:"id"`
	Center   int        `yaml:"center" json:"center"` // raw position at 0 degrees
	Inverted bool       `yaml:"inverted" json:"inverted"`
	Limit    JointLimit `yaml:"limit" json:"limit"`
}

// FeetechConfig configures the eye servo bus.
type FeetechConfig struct {
	Port     string        `yaml:"port" json:"port"`
	BaudRate int           `yaml:"baud_rate" json:"baud_rate"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Servos   []ServoConfig `yaml:"servos" json:"servos"`
}

// DefaultFeetechConfig returns a three-servo eye layout on IDs 1-3.
func DefaultFeetechConfig() FeetechConfig {
	limits := DefaultEyeLimits()
	names := DefaultAxisNames()
	servos := make([]ServoConfig, len(names))
	for i, name := range names {
		servos[i] = ServoConfig{Name: name, ID: i + 1, Center: stepsPerRevolution / 2, Limit: limits[i]}
	}
	return FeetechConfig{
		Port:     "/dev/ttyACM0",
		BaudRate: 1_000_000,
		Timeout:  100 * time.Millisecond,
		Servos:   servos,
	}
}

// rawToDegrees converts a raw servo position to a joint angle.
func (s ServoConfig) rawToDegrees(raw int) float64 {
	deg := float64(raw-s.Center) * degreesPerStep
	if s.Inverted {
		return -deg
	}
	return deg
}

// degreesToRaw converts a joint angle to a raw servo position.
func (s ServoConfig) degreesToRaw(deg float64) int {
	if s.Inverted {
		deg = -deg
	}
	raw := s.Center + int(deg/degreesPerStep+0.5*sign(deg))
	if raw < 0 {
		return 0
	}
	if raw > stepsPerRevolution-1 {
		return stepsPerRevolution - 1
	}
	return raw
}

// FeetechEyes drives the eye joints over a Feetech STS bus.
// STS servos only accept position targets, so velocity mode integrates
// the commanded velocity into a moving target on every VelocityMove.
type FeetechEyes struct {
	bus   *feetech.Bus
	group *feetech.ServoGroup
	cfg   FeetechConfig

	mu         sync.Mutex
	modes      []ControlMode
	targets    []float64
	velocities []float64
	lastMove   time.Time
	now        func() time.Time
}

// NewFeetechEyes opens the bus and enables torque on the eye servos.
func NewFeetechEyes(ctx context.Context, cfg FeetechConfig) (*FeetechEyes, error) {
	if len(cfg.Servos) == 0 {
		return nil, fmt.Errorf("robot: no eye servos configured")
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	ids := make([]int, len(cfg.Servos))
	for i, s := range cfg.Servos {
		ids[i] = s.ID
	}
	group := feetech.NewServoGroupByIDs(bus, ids...)
	if err := group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable torque: %w", err)
	}

	n := len(cfg.Servos)
	return &FeetechEyes{
		bus:        bus,
		group:      group,
		cfg:        cfg,
		modes:      make([]ControlMode, n),
		targets:    make([]float64, n),
		velocities: make([]float64, n),
		now:        time.Now,
	}, nil
}

// AxisNames returns the joint names in servo order.
func (e *FeetechEyes) AxisNames() []string {
	names := make([]string, len(e.cfg.Servos))
	for i, s := range e.cfg.Servos {
		names[i] = s.Name
	}
	return names
}

// Limits returns the configured range of axis.
func (e *FeetechEyes) Limits(axis int) (float64, float64, error) {
	if axis < 0 || axis >= len(e.cfg.Servos) {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownAxis, axis)
	}
	l := e.cfg.Servos[axis].Limit
	return l.Lower, l.Upper, nil
}

// Encoders reads all joint angles with one sync read.
func (e *FeetechEyes) Encoders(ctx context.Context) ([]float64, error) {
	raw, err := e.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	out := make([]float64, len(e.cfg.Servos))
	for i, s := range e.cfg.Servos {
		r, ok := raw[s.ID]
		if !ok {
			return nil, fmt.Errorf("read positions: servo %d did not answer", s.ID)
		}
		out[i] = s.rawToDegrees(int(r))
	}
	return out, nil
}

// SetControlMode switches axes between position and velocity mode.
// Entering velocity mode anchors the moving target at the current angle.
func (e *FeetechEyes) SetControlMode(ctx context.Context, axes []int, mode ControlMode) error {
	if err := checkCommand(len(e.cfg.Servos), axes); err != nil {
		return err
	}
	current, err := e.Encoders(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range axes {
		e.modes[a] = mode
		e.targets[a] = current[a]
		e.velocities[a] = 0
	}
	e.lastMove = time.Time{}
	return nil
}

// PositionMove writes absolute targets. STS sync writes carry no speed,
// so speeds are only validated.
func (e *FeetechEyes) PositionMove(ctx context.Context, axes []int, targets, speeds []float64) error {
	if err := checkCommand(len(e.cfg.Servos), axes, targets, speeds); err != nil {
		return err
	}

	e.mu.Lock()
	for i, a := range axes {
		if e.modes[a] != ModePosition {
			e.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrWrongMode, e.cfg.Servos[a].Name)
		}
		l := e.cfg.Servos[a].Limit
		e.targets[a] = clamp(targets[i], l.Lower, l.Upper)
	}
	pm := e.positionMap(axes)
	e.mu.Unlock()

	if err := e.group.SetPositions(ctx, pm); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// VelocityMove advances each axis target by its previous velocity times
// the elapsed time, stores the new velocities and writes the targets.
func (e *FeetechEyes) VelocityMove(ctx context.Context, axes []int, velocities []float64) error {
	if err := checkCommand(len(e.cfg.Servos), axes, velocities); err != nil {
		return err
	}

	e.mu.Lock()
	now := e.now()
	dt := 0.0
	if !e.lastMove.IsZero() {
		dt = now.Sub(e.lastMove).Seconds()
	}
	e.lastMove = now
	for i, a := range axes {
		if e.modes[a] != ModeVelocity {
			e.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrWrongMode, e.cfg.Servos[a].Name)
		}
		l := e.cfg.Servos[a].Limit
		e.targets[a] = clamp(e.targets[a]+e.velocities[a]*dt, l.Lower, l.Upper)
		e.velocities[a] = velocities[i]
	}
	pm := e.positionMap(axes)
	e.mu.Unlock()

	if err := e.group.SetPositions(ctx, pm); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// positionMap converts the targets of axes to raw positions. Caller holds mu.
func (e *FeetechEyes) positionMap(axes []int) feetech.PositionMap {
	pm := make(feetech.PositionMap, len(axes))
	for _, a := range axes {
		s := e.cfg.Servos[a]
		pm[s.ID] = s.degreesToRaw(e.targets[a])
	}
	return pm
}

// Close disables torque and releases the bus.
func (e *FeetechEyes) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	disableErr := e.group.DisableAll(ctx)
	if err := e.bus.Close(); err != nil {
		return err
	}
	if disableErr != nil {
		return fmt.Errorf("disable torque: %w", disableErr)
	}
	return nil
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
