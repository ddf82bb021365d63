package skin

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// FingerCalibration is the learned no-load statistics of one finger.
type FingerCalibration struct {
	Name           string    `json:"name"`
	Bias           []float64 `json:"bias"`
	Std            []float64 `json:"std"`
	DerivativeBias []float64 `json:"derivative_bias"`
	DerivativeStd  []float64 `json:"derivative_std"`
	Working        bool      `json:"working"`
}

// Calibration is the learned no-load statistics of a whole skin.
type Calibration struct {
	Fingers []FingerCalibration `json:"fingers"`
}

// CollectSkinDataForCalibration appends the current normalized and
// derivative values of every finger to the calibration buffers.
// Call once per tick while the hand is known to be unloaded.
func (s *Skin) CollectSkinDataForCalibration() {
	for _, f := range s.fingers {
		f.collect()
	}
}

// CollectedSamples returns the number of rows collected so far.
func (s *Skin) CollectedSamples() int {
	if len(s.fingers) == 0 {
		return 0
	}
	return len(s.fingers[0].tactileRows)
}

// ComputeCalibrationParameters computes per-sensor mean and population
// standard deviation of the collected signal and derivative rows.
// A finger is working when at least one of its sensors has a standard
// deviation above the working threshold.
func (s *Skin) ComputeCalibrationParameters() error {
	if s.CollectedSamples() == 0 {
		return ErrNoCalibrationData
	}

	column := make([]float64, s.CollectedSamples())
	for _, f := range s.fingers {
		f.Working = false
		for i := range f.Bias {
			for r, row := range f.tactileRows {
				column[r] = row[i]
			}
			f.Bias[i], f.Std[i] = stat.PopMeanStdDev(column, nil)

			for r, row := range f.derivativeRows {
				column[r] = row[i]
			}
			f.DerivativeBias[i], f.DerivativeStd[i] = stat.PopMeanStdDev(column, nil)

			if f.Std[i] > s.cfg.WorkingThreshold {
				f.Working = true
			}
		}
		f.resetCollected()
	}
	s.calibrated = true
	return nil
}

// Calibration exports the learned parameters.
func (s *Skin) Calibration() Calibration {
	c := Calibration{Fingers: make([]FingerCalibration, 0, len(s.fingers))}
	for _, f := range s.fingers {
		c.Fingers = append(c.Fingers, FingerCalibration{
			Name:           f.Name,
			Bias:           append([]float64(nil), f.Bias...),
			Std:            append([]float64(nil), f.Std...),
			DerivativeBias: append([]float64(nil), f.DerivativeBias...),
			DerivativeStd:  append([]float64(nil), f.DerivativeStd...),
			Working:        f.Working,
		})
	}
	return c
}

// ApplyCalibration loads previously learned parameters.
// Every entry must name a configured finger with matching sensor count.
func (s *Skin) ApplyCalibration(c Calibration) error {
	for _, fc := range c.Fingers {
		f, ok := s.Finger(fc.Name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFinger, fc.Name)
		}
		n := f.Count()
		if len(fc.Bias) != n || len(fc.Std) != n || len(fc.DerivativeBias) != n || len(fc.DerivativeStd) != n {
			return fmt.Errorf("%w: finger %s expects %d sensors", ErrSizeMismatch, fc.Name, n)
		}
	}
	for _, fc := range c.Fingers {
		f, _ := s.Finger(fc.Name)
		copy(f.Bias, fc.Bias)
		copy(f.Std, fc.Std)
		copy(f.DerivativeBias, fc.DerivativeBias)
		copy(f.DerivativeStd, fc.DerivativeStd)
		f.Working = fc.Working
	}
	s.calibrated = true
	return nil
}
