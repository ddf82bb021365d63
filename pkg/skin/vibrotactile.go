package skin

import "math"

// Vibrotactile command range.
const (
	MinFeedback = 0.0
	MaxFeedback = 100.0
)

// ComputeContactStrength sets the per-finger contact strength and its
// smoothed derivative. The raw derivative only propagates while the
// finger is in contact and its contact is changing; smoothing runs every
// tick so the derivative decays once events stop.
func (s *Skin) ComputeContactStrength() {
	g := s.cfg.DerivativeSmoothingGain
	for i, f := range s.fingers {
		s.strength[i] = 0
		s.strengthDerivative[i] = 0
		if f.InContact {
			s.strength[i], _ = f.maxCalibrated()
			if f.ContactChanged {
				s.strengthDerivative[i], _ = f.maxDerivative()
			}
		}
		s.strengthDerivativeSmoothed[i] = g*s.strengthDerivative[i] + (1-g)*s.strengthDerivativeSmoothed[i]
	}
}

// ComputeVibrotactileFeedback maps contact strength through the
// nonlinear response curve and blends it with the derivative term.
func (s *Skin) ComputeVibrotactileFeedback() {
	blend := s.cfg.AbsoluteSkinValuePercentage
	for i, f := range s.fingers {
		s.absoluteFeedback[i] = AbsoluteFeedback(s.cfg.FeedbackParams, f.VibrotactileGain*s.strength[i])
		s.derivativeFeedback[i] = saturateFeedback(f.VibrotactileDerivativeGain * math.Abs(s.strengthDerivativeSmoothed[i]))
		s.totalFeedback[i] = blend*s.absoluteFeedback[i] + (1-blend)*s.derivativeFeedback[i]
	}
}

// AbsoluteFeedback evaluates p0*ln(p1*x^p2 + p3) + p4*x^p5 saturated to
// [MinFeedback, MaxFeedback]. p must have FeedbackParamsLength entries.
func AbsoluteFeedback(p []float64, x float64) float64 {
	v := p[0]*math.Log(p[1]*math.Pow(x, p[2])+p[3]) + p[4]*math.Pow(x, p[5])
	return saturateFeedback(v)
}

// saturateFeedback clamps v to the command range; NaN maps to zero.
func saturateFeedback(v float64) float64 {
	if math.IsNaN(v) {
		return MinFeedback
	}
	return clamp(v, MinFeedback, MaxFeedback)
}
