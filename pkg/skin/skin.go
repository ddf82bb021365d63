// Package skin turns raw fingertip tactile samples into calibrated
// contact signals and vibrotactile feedback commands.
//
// A Skin is not safe for concurrent use. Callers run every method from a
// single periodic tick and guard it with their own mutex.
package skin

import "fmt"

// Skin aggregates the fingertip channels of one hand and owns the
// per-finger contact and feedback outputs.
type Skin struct {
	cfg     Config
	fingers []*Finger

	strength                   []float64
	strengthDerivative         []float64
	strengthDerivativeSmoothed []float64
	absoluteFeedback           []float64
	derivativeFeedback         []float64
	totalFeedback              []float64

	calibrated bool
	sensors    int
}

// New validates cfg and builds the finger channels.
func New(cfg Config) (*Skin, error) {
	params, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	s := &Skin{cfg: cfg}
	for _, p := range params {
		s.fingers = append(s.fingers, newFinger(p))
		s.sensors += p.Count()
	}
	n := len(s.fingers)
	s.strength = make([]float64, n)
	s.strengthDerivative = make([]float64, n)
	s.strengthDerivativeSmoothed = make([]float64, n)
	s.absoluteFeedback = make([]float64, n)
	s.derivativeFeedback = make([]float64, n)
	s.totalFeedback = make([]float64, n)
	return s, nil
}

// Config returns the configuration the skin was built with.
func (s *Skin) Config() Config {
	return s.cfg
}

// Fingers returns the finger channels in configuration order.
func (s *Skin) Fingers() []*Finger {
	return s.fingers
}

// Finger looks up a finger by name.
func (s *Skin) Finger(name string) (*Finger, bool) {
	for _, f := range s.fingers {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// SensorCount is the sum of the per-finger sensor counts.
func (s *Skin) SensorCount() int {
	return s.sensors
}

// Calibrated reports whether calibration parameters have been computed
// or applied since construction or the last reset.
func (s *Skin) Calibrated() bool {
	return s.calibrated
}

// UpdateCalibratedTactileData consumes one raw sample vector and updates
// the normalized, calibrated and derivative values of every finger.
// raw must have exactly NoTactileSensors entries.
func (s *Skin) UpdateCalibratedTactileData(raw []float64) error {
	if len(raw) != s.cfg.NoTactileSensors {
		return fmt.Errorf("%w: raw sample has %d values, want %d", ErrSizeMismatch, len(raw), s.cfg.NoTactileSensors)
	}
	dt := s.cfg.SamplingTime.Seconds()
	for _, f := range s.fingers {
		f.update(raw, dt, s.cfg.UpdateThreshold)
	}
	return nil
}

// Update runs one full pipeline step: calibration, contact detection
// and vibrotactile synthesis.
func (s *Skin) Update(raw []float64) error {
	if err := s.UpdateCalibratedTactileData(raw); err != nil {
		return err
	}
	s.ComputeContacts()
	s.ComputeContactStrength()
	s.ComputeVibrotactileFeedback()
	return nil
}

// Reset forgets the learned calibration and all per-tick state.
func (s *Skin) Reset() {
	for _, f := range s.fingers {
		f.resetState()
	}
	for i := range s.fingers {
		s.strength[i] = 0
		s.strengthDerivative[i] = 0
		s.strengthDerivativeSmoothed[i] = 0
		s.absoluteFeedback[i] = 0
		s.derivativeFeedback[i] = 0
		s.totalFeedback[i] = 0
	}
	s.calibrated = false
}
