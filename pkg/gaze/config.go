package gaze

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-teleop/pkg/robot"
)

// ConfigError reports an invalid static parameter.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gaze: config error: %s: %s", e.Field, e.Message)
}

// Config holds the gaze retargeting parameters. Angles are in degrees,
// velocities in degrees per second.
type Config struct {
	// Joint names
	TiltAxis     string `yaml:"tilt_axis" json:"tilt_axis"`
	VersionAxis  string `yaml:"version_axis" json:"version_axis"`
	VergenceAxis string `yaml:"vergence_axis" json:"vergence_axis"`

	// Limits, clipped against the joint limits reported by the driver
	MaxVelocity float64 `yaml:"max_velocity" json:"max_velocity"`
	MaxVergence float64 `yaml:"max_vergence" json:"max_vergence"`
	MaxVersion  float64 `yaml:"max_version" json:"max_version"`
	MaxTilt     float64 `yaml:"max_tilt" json:"max_tilt"`

	// tanh gain of the soft velocity envelope, per degree
	SaturationGain float64 `yaml:"saturation_gain" json:"saturation_gain"`

	// Velocity command per unit of image-plane error (rad/s)
	VelocityGain float64 `yaml:"velocity_gain" json:"velocity_gain"`

	// Deadzone on the image-plane error
	Deadzone                  float64       `yaml:"deadzone" json:"deadzone"`
	DeadzoneActivationOffset  float64       `yaml:"deadzone_activation_offset" json:"deadzone_activation_offset"`
	DeadzoneMinActivationTime time.Duration `yaml:"deadzone_min_activation_time" json:"deadzone_min_activation_time"`

	// Quantization step of the image angles sent to the headset
	MovementAccuracy float64 `yaml:"movement_accuracy" json:"movement_accuracy"`

	// Homing waits HomingTimeFactor times the estimated travel time,
	// never longer than HomingTimeout.
	HomingTimeFactor float64       `yaml:"homing_time_factor" json:"homing_time_factor"`
	HomingTimeout    time.Duration `yaml:"homing_timeout" json:"homing_timeout"`
}

// DefaultConfig returns the recommended gaze configuration.
func DefaultConfig() Config {
	return Config{
		TiltAxis:     robot.AxisTilt,
		VersionAxis:  robot.AxisVersion,
		VergenceAxis: robot.AxisVergence,

		MaxVelocity: 20,
		MaxVergence: 10,
		MaxVersion:  25,
		MaxTilt:     30,

		SaturationGain: 10,
		VelocityGain:   2.0,

		Deadzone:                  0.02,
		DeadzoneActivationOffset:  0.1,
		DeadzoneMinActivationTime: 500 * time.Millisecond,

		MovementAccuracy: 0.1,

		HomingTimeFactor: 3.0,
		HomingTimeout:    10 * time.Second,
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	if c.TiltAxis == "" || c.VersionAxis == "" || c.VergenceAxis == "" {
		return &ConfigError{Field: "axes", Message: "tilt, version and vergence axis names are required"}
	}
	positive := []struct {
		field string
		value float64
	}{
		{"max_velocity", c.MaxVelocity},
		{"max_vergence", c.MaxVergence},
		{"max_version", c.MaxVersion},
		{"max_tilt", c.MaxTilt},
		{"saturation_gain", c.SaturationGain},
		{"movement_accuracy", c.MovementAccuracy},
		{"homing_time_factor", c.HomingTimeFactor},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &ConfigError{Field: p.field, Message: "must be positive"}
		}
	}
	if c.VelocityGain < 0 {
		return &ConfigError{Field: "velocity_gain", Message: "must be non-negative"}
	}
	if c.Deadzone < 0 {
		return &ConfigError{Field: "deadzone", Message: "must be non-negative"}
	}
	if c.DeadzoneActivationOffset < 0 {
		return &ConfigError{Field: "deadzone_activation_offset", Message: "must be non-negative"}
	}
	if c.DeadzoneMinActivationTime < 0 {
		return &ConfigError{Field: "deadzone_min_activation_time", Message: "must be non-negative"}
	}
	if c.HomingTimeout <= 0 {
		return &ConfigError{Field: "homing_timeout", Message: "must be positive"}
	}
	return nil
}
