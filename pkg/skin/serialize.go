package skin

import "fmt"

// FingerState is the per-tick output of one finger.
type FingerState struct {
	Name               string  `json:"name"`
	Working            bool    `json:"working"`
	InContact          bool    `json:"in_contact"`
	ContactChanged     bool    `json:"contact_changed"`
	Strength           float64 `json:"strength"`
	StrengthDerivative float64 `json:"strength_derivative"`
	AbsoluteFeedback   float64 `json:"absolute_feedback"`
	DerivativeFeedback float64 `json:"derivative_feedback"`
	Feedback           float64 `json:"feedback"`
}

// Snapshot returns the current output of every finger.
func (s *Skin) Snapshot() []FingerState {
	out := make([]FingerState, len(s.fingers))
	for i, f := range s.fingers {
		out[i] = FingerState{
			Name:               f.Name,
			Working:            f.Working,
			InContact:          f.InContact,
			ContactChanged:     f.ContactChanged,
			Strength:           s.strength[i],
			StrengthDerivative: s.strengthDerivativeSmoothed[i],
			AbsoluteFeedback:   s.absoluteFeedback[i],
			DerivativeFeedback: s.derivativeFeedback[i],
			Feedback:           s.totalFeedback[i],
		}
	}
	return out
}

// VibrotactileFeedback returns the blended command of every finger.
func (s *Skin) VibrotactileFeedback() []float64 {
	return append([]float64(nil), s.totalFeedback...)
}

// AbsoluteVibrotactileFeedback returns the absolute term of every finger.
func (s *Skin) AbsoluteVibrotactileFeedback() []float64 {
	return append([]float64(nil), s.absoluteFeedback...)
}

// DerivativeVibrotactileFeedback returns the derivative term of every finger.
func (s *Skin) DerivativeVibrotactileFeedback() []float64 {
	return append([]float64(nil), s.derivativeFeedback...)
}

// ContactStrengths returns the contact strength of every finger.
func (s *Skin) ContactStrengths() []float64 {
	return append([]float64(nil), s.strength...)
}

// ContactStates returns the in-contact flag of every finger.
func (s *Skin) ContactStates() []bool {
	out := make([]bool, len(s.fingers))
	for i, f := range s.fingers {
		out[i] = f.InContact
	}
	return out
}

// WorkingFingers returns the working flag of every finger.
func (s *Skin) WorkingFingers() []bool {
	out := make([]bool, len(s.fingers))
	for i, f := range s.fingers {
		out[i] = f.Working
	}
	return out
}

// SerializeTactile writes the normalized values of all fingers into dst.
func (s *Skin) SerializeTactile(dst []float64) error {
	return s.serialize(dst, func(f *Finger) []float64 { return f.Tactile })
}

// SerializeCalibrated writes the calibrated values of all fingers into dst.
func (s *Skin) SerializeCalibrated(dst []float64) error {
	return s.serialize(dst, func(f *Finger) []float64 { return f.Calibrated })
}

// SerializeDerivative writes the derivative values of all fingers into dst.
func (s *Skin) SerializeDerivative(dst []float64) error {
	return s.serialize(dst, func(f *Finger) []float64 { return f.Derivative })
}

// serialize concatenates one per-finger vector in finger order.
// dst must have exactly SensorCount entries.
func (s *Skin) serialize(dst []float64, pick func(*Finger) []float64) error {
	if len(dst) != s.sensors {
		return fmt.Errorf("%w: destination has %d values, want %d", ErrSizeMismatch, len(dst), s.sensors)
	}
	off := 0
	for _, f := range s.fingers {
		off += copy(dst[off:], pick(f))
	}
	return nil
}
