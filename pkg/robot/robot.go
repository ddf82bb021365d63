package robot

import (
	"errors"
	"fmt"
)

// Default eye joint names, in driver axis order.
const (
	AxisTilt     = "eyes_tilt"
	AxisVersion  = "eyes_vers"
	AxisVergence = "eyes_verg"
)

var (
	// ErrUnknownAxis is returned for an axis index outside the driver.
	ErrUnknownAxis = errors.New("robot: unknown axis")

	// ErrWrongMode is returned when a command does not match the axis control mode.
	ErrWrongMode = errors.New("robot: axis is in the wrong control mode")

	// ErrLengthMismatch is returned when command arrays differ in length.
	ErrLengthMismatch = errors.New("robot: command length mismatch")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("robot: driver closed")
)

// JointLimit is the allowed range of one joint, in degrees.
type JointLimit struct {
	Lower float64 `yaml:"lower" json:"lower"`
	Upper float64 `yaml:"upper" json:"upper"`
}

// DefaultEyeLimits returns the mechanical range of the eye joints in
// tilt, version, vergence order.
func DefaultEyeLimits() []JointLimit {
	return []JointLimit{
		{Lower: -30, Upper: 30},
		{Lower: -30, Upper: 30},
		{Lower: 0, Upper: 15},
	}
}

// DefaultAxisNames returns the eye joint names in driver order.
func DefaultAxisNames() []string {
	return []string{AxisTilt, AxisVersion, AxisVergence}
}

// checkCommand validates axes against n joints and the length of every value array.
func checkCommand(n int, axes []int, values ...[]float64) error {
	for _, a := range axes {
		if a < 0 || a >= n {
			return fmt.Errorf("%w: %d", ErrUnknownAxis, a)
		}
	}
	for _, v := range values {
		if len(v) != len(axes) {
			return fmt.Errorf("%w: %d axes, %d values", ErrLengthMismatch, len(axes), len(v))
		}
	}
	return nil
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
