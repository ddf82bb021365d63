package robot

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimEyes is an in-memory eye driver. Velocity commands are integrated
// over the time elapsed since the previous command; position commands
// take effect immediately.
type SimEyes struct {
	mu         sync.Mutex
	names      []string
	limits     []JointLimit
	positions  []float64
	velocities []float64
	modes      []ControlMode
	lastMove   time.Time
	closed     bool

	now func() time.Time
}

// NewSimEyes creates a simulated driver with the given joint names and limits.
func NewSimEyes(names []string, limits []JointLimit) *SimEyes {
	n := len(names)
	return &SimEyes{
		names:      append([]string(nil), names...),
		limits:     append([]JointLimit(nil), limits...),
		positions:  make([]float64, n),
		velocities: make([]float64, n),
		modes:      make([]ControlMode, n),
		now:        time.Now,
	}
}

// AxisNames returns the joint names.
func (s *SimEyes) AxisNames() []string {
	return append([]string(nil), s.names...)
}

// Limits returns the joint range of axis.
func (s *SimEyes) Limits(axis int) (float64, float64, error) {
	if axis < 0 || axis >= len(s.limits) {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownAxis, axis)
	}
	return s.limits[axis].Lower, s.limits[axis].Upper, nil
}

// Encoders returns the current joint positions.
func (s *SimEyes) Encoders(ctx context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.integrate()
	return append([]float64(nil), s.positions...), nil
}

// SetControlMode switches the mode of axes and stops their motion.
func (s *SimEyes) SetControlMode(ctx context.Context, axes []int, mode ControlMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkCommand(len(s.names), axes); err != nil {
		return err
	}
	s.integrate()
	for _, a := range axes {
		s.modes[a] = mode
		s.velocities[a] = 0
	}
	return nil
}

// PositionMove sets the joint positions directly.
func (s *SimEyes) PositionMove(ctx context.Context, axes []int, targets, speeds []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkCommand(len(s.names), axes, targets, speeds); err != nil {
		return err
	}
	for i, a := range axes {
		if s.modes[a] != ModePosition {
			return fmt.Errorf("%w: %s", ErrWrongMode, s.names[a])
		}
		s.positions[a] = clamp(targets[i], s.limits[a].Lower, s.limits[a].Upper)
	}
	return nil
}

// VelocityMove sets the joint velocities.
func (s *SimEyes) VelocityMove(ctx context.Context, axes []int, velocities []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkCommand(len(s.names), axes, velocities); err != nil {
		return err
	}
	s.integrate()
	for i, a := range axes {
		if s.modes[a] != ModeVelocity {
			return fmt.Errorf("%w: %s", ErrWrongMode, s.names[a])
		}
		s.velocities[a] = velocities[i]
	}
	return nil
}

// Velocities returns the last commanded velocities.
func (s *SimEyes) Velocities() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.velocities...)
}

// Mode returns the control mode of axis.
func (s *SimEyes) Mode(axis int) ControlMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes[axis]
}

// SetPositions overrides the joint positions.
func (s *SimEyes) SetPositions(positions []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.positions, positions)
}

// Close stops the driver.
func (s *SimEyes) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// integrate advances positions by velocity times elapsed time.
// Caller holds mu.
func (s *SimEyes) integrate() {
	now := s.now()
	if !s.lastMove.IsZero() {
		dt := now.Sub(s.lastMove).Seconds()
		for a := range s.positions {
			if s.modes[a] == ModeVelocity {
				s.positions[a] = clamp(s.positions[a]+s.velocities[a]*dt, s.limits[a].Lower, s.limits[a].Upper)
			}
		}
	}
	s.lastMove = now
}
