package skin

import (
	"fmt"
	"time"
)

// Raw sensor range. A reading of RawMax means no load.
const (
	RawMin      = 0.0
	RawMax      = 255.0
	NoLoadValue = 240.0
)

// TactileInfoLength is the number of entries in a finger descriptor:
// start, end, contact threshold multiplier, vibrotactile gain,
// vibrotactile derivative gain, derivative threshold multiplier.
const TactileInfoLength = 6

// FeedbackParamsLength is the number of nonlinear response coefficients.
const FeedbackParamsLength = 6

// ConfigError reports an invalid static parameter.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("skin: config error: %s: %s", e.Field, e.Message)
}

// FingerConfig is the static description of one fingertip.
type FingerConfig struct {
	Name        string    `yaml:"name" json:"name"`
	TactileInfo []float64 `yaml:"tactile_info" json:"tactile_info"`
}

// FingerParams is a validated, decoded FingerConfig.
type FingerParams struct {
	Name                          string
	Start                         int
	End                           int
	ContactThresholdMultiplier    float64
	VibrotactileGain              float64
	VibrotactileDerivativeGain    float64
	DerivativeThresholdMultiplier float64
}

// Count returns the number of sensors covered by the finger.
func (p FingerParams) Count() int {
	return p.End - p.Start + 1
}

// Params decodes and validates the tactile info descriptor.
func (fc FingerConfig) Params() (FingerParams, error) {
	field := "fingers." + fc.Name + ".tactile_info"
	if len(fc.TactileInfo) != TactileInfoLength {
		return FingerParams{}, &ConfigError{Field: field, Message: fmt.Sprintf("expected %d values, got %d", TactileInfoLength, len(fc.TactileInfo))}
	}
	info := fc.TactileInfo
	p := FingerParams{
		Name:                          fc.Name,
		Start:                         int(info[0]),
		End:                           int(info[1]),
		ContactThresholdMultiplier:    info[2],
		VibrotactileGain:              info[3],
		VibrotactileDerivativeGain:    info[4],
		DerivativeThresholdMultiplier: info[5],
	}
	if info[0] != float64(p.Start) || info[1] != float64(p.End) {
		return FingerParams{}, &ConfigError{Field: field, Message: "sensor indices must be integers"}
	}
	if p.Start < 0 {
		return FingerParams{}, &ConfigError{Field: field, Message: "start index must be non-negative"}
	}
	if p.End <= p.Start {
		return FingerParams{}, &ConfigError{Field: field, Message: "end index must be greater than start index"}
	}
	if p.ContactThresholdMultiplier < 0 {
		return FingerParams{}, &ConfigError{Field: field, Message: "contact threshold multiplier must be non-negative"}
	}
	if p.DerivativeThresholdMultiplier < 0 {
		return FingerParams{}, &ConfigError{Field: field, Message: "derivative threshold multiplier must be non-negative"}
	}
	return p, nil
}

// Config holds the skin pipeline parameters.
type Config struct {
	Fingers []FingerConfig `yaml:"fingers" json:"fingers"`

	// Length of the raw sample vector delivered by the sensor each tick.
	NoTactileSensors int `yaml:"no_tactile_sensors" json:"no_tactile_sensors"`

	SamplingTime     time.Duration `yaml:"sampling_time" json:"sampling_time"`
	WorkingThreshold float64       `yaml:"working_threshold" json:"working_threshold"`
	UpdateThreshold  float64       `yaml:"update_threshold" json:"update_threshold"`

	// Blend weight between absolute and derivative feedback.
	AbsoluteSkinValuePercentage float64 `yaml:"absolute_skin_value_percentage" json:"absolute_skin_value_percentage"`
	DerivativeSmoothingGain     float64 `yaml:"derivative_smoothing_gain" json:"derivative_smoothing_gain"`

	// p0..p5 of p0*ln(p1*x^p2 + p3) + p4*x^p5.
	FeedbackParams []float64 `yaml:"feedback_params" json:"feedback_params"`

	CalibrationPeriod time.Duration `yaml:"calibration_period" json:"calibration_period"`
}

// DefaultFingers is the five-finger layout of a 192-taxel glove skin.
func DefaultFingers() []FingerConfig {
	return []FingerConfig{
		{Name: "thumb", TactileInfo: []float64{0, 11, 5, 1, 500, 5}},
		{Name: "index", TactileInfo: []float64{12, 23, 5, 1, 500, 5}},
		{Name: "middle", TactileInfo: []float64{24, 35, 5, 1, 500, 5}},
		{Name: "ring", TactileInfo: []float64{36, 47, 5, 1, 500, 5}},
		{Name: "little", TactileInfo: []float64{48, 59, 5, 1, 500, 5}},
	}
}

// DefaultConfig returns the recommended skin configuration.
func DefaultConfig() Config {
	return Config{
		Fingers:                     DefaultFingers(),
		NoTactileSensors:            192,
		SamplingTime:                10 * time.Millisecond,
		WorkingThreshold:            1e-4,
		UpdateThreshold:             1e-4,
		AbsoluteSkinValuePercentage: 1.0,
		DerivativeSmoothingGain:     0.9,
		FeedbackParams:              []float64{10, 1000, 1, 1, 0, 1},
		CalibrationPeriod:           10 * time.Second,
	}
}

// Validate checks every field and decodes the finger descriptors.
func (c Config) Validate() ([]FingerParams, error) {
	if len(c.Fingers) == 0 {
		return nil, &ConfigError{Field: "fingers", Message: "at least one finger is required"}
	}
	if c.NoTactileSensors <= 0 {
		return nil, &ConfigError{Field: "no_tactile_sensors", Message: "must be positive"}
	}
	if c.SamplingTime <= 0 {
		return nil, &ConfigError{Field: "sampling_time", Message: "must be positive"}
	}
	if c.WorkingThreshold < 0 {
		return nil, &ConfigError{Field: "working_threshold", Message: "must be non-negative"}
	}
	if c.UpdateThreshold < 0 {
		return nil, &ConfigError{Field: "update_threshold", Message: "must be non-negative"}
	}
	if c.AbsoluteSkinValuePercentage < 0 || c.AbsoluteSkinValuePercentage > 1 {
		return nil, &ConfigError{Field: "absolute_skin_value_percentage", Message: "must be in [0, 1]"}
	}
	if c.DerivativeSmoothingGain < 0 || c.DerivativeSmoothingGain > 1 {
		return nil, &ConfigError{Field: "derivative_smoothing_gain", Message: "must be in [0, 1]"}
	}
	if len(c.FeedbackParams) != FeedbackParamsLength {
		return nil, &ConfigError{Field: "feedback_params", Message: fmt.Sprintf("expected %d values, got %d", FeedbackParamsLength, len(c.FeedbackParams))}
	}
	if c.CalibrationPeriod < 0 {
		return nil, &ConfigError{Field: "calibration_period", Message: "must be non-negative"}
	}

	seen := make(map[string]bool, len(c.Fingers))
	params := make([]FingerParams, 0, len(c.Fingers))
	for _, fc := range c.Fingers {
		if fc.Name == "" {
			return nil, &ConfigError{Field: "fingers", Message: "finger name is required"}
		}
		if seen[fc.Name] {
			return nil, &ConfigError{Field: "fingers", Message: "duplicate finger " + fc.Name}
		}
		seen[fc.Name] = true

		p, err := fc.Params()
		if err != nil {
			return nil, err
		}
		if p.End >= c.NoTactileSensors {
			return nil, &ConfigError{Field: "fingers." + fc.Name + ".tactile_info", Message: fmt.Sprintf("end index %d outside the %d-sensor array", p.End, c.NoTactileSensors)}
		}
		params = append(params, p)
	}
	return params, nil
}
