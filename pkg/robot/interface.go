// Package robot provides interfaces and implementations for the robot's
// eye joints.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. All angles are
// in degrees, all speeds in degrees per second.
package robot

import "context"

// ControlMode selects how the joints interpret commands.
type ControlMode int

const (
	// ModePosition drives joints to absolute targets.
	ModePosition ControlMode = iota
	// ModeVelocity drives joints at a commanded angular velocity.
	ModeVelocity
)

func (m ControlMode) String() string {
	switch m {
	case ModePosition:
		return "position"
	case ModeVelocity:
		return "velocity"
	default:
		return "unknown"
	}
}

// AxisInfo describes the joint layout.
type AxisInfo interface {
	AxisNames() []string
	Limits(axis int) (lower, upper float64, err error)
}

// EncoderReader reads joint positions.
// It fails if acquisition is unavailable.
type EncoderReader interface {
	Encoders(ctx context.Context) ([]float64, error)
}

// ModeController switches the control mode of a set of axes.
type ModeController interface {
	SetControlMode(ctx context.Context, axes []int, mode ControlMode) error
}

// PositionController moves axes to absolute targets at the given speeds.
type PositionController interface {
	PositionMove(ctx context.Context, axes []int, targets, speeds []float64) error
}

// VelocityController commands angular velocities.
type VelocityController interface {
	VelocityMove(ctx context.Context, axes []int, velocities []float64) error
}

// EyeDriver is the composite interface for the eye joint group.
type EyeDriver interface {
	AxisInfo
	EncoderReader
	ModeController
	PositionController
	VelocityController
	Close() error
}

// Ensure implementations satisfy EyeDriver
var (
	_ EyeDriver = (*FeetechEyes)(nil)
	_ EyeDriver = (*SimEyes)(nil)
)
