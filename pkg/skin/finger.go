package skin

import "math"

// Finger holds the tactile state of one fingertip sub-array.
// All slices have Count() entries; index 0 maps to raw sensor Start.
type Finger struct {
	FingerParams

	Raw        []float64
	Tactile    []float64 // normalized, 0 = no load, 1 = max load
	Calibrated []float64 // Tactile minus Bias
	Derivative []float64 // d(Calibrated)/dt minus DerivativeBias

	Bias           []float64
	Std            []float64
	DerivativeBias []float64
	DerivativeStd  []float64
	Working        bool

	InContact      bool
	ContactChanged bool

	previous    []float64
	firstSample bool

	// collected while the hand is unloaded, one row per tick
	tactileRows    [][]float64
	derivativeRows [][]float64
}

func newFinger(p FingerParams) *Finger {
	n := p.Count()
	return &Finger{
		FingerParams:   p,
		Raw:            make([]float64, n),
		Tactile:        make([]float64, n),
		Calibrated:     make([]float64, n),
		Derivative:     make([]float64, n),
		Bias:           make([]float64, n),
		Std:            make([]float64, n),
		DerivativeBias: make([]float64, n),
		DerivativeStd:  make([]float64, n),
		previous:       make([]float64, n),
		firstSample:    true,
	}
}

// FirstSample reports whether no sample has been processed yet.
func (f *Finger) FirstSample() bool {
	return f.firstSample
}

// update consumes the full raw sensor vector.
// A derivative below the update threshold in magnitude leaves the
// stored derivative unchanged.
func (f *Finger) update(raw []float64, samplingTime, updateThreshold float64) {
	for i := range f.Raw {
		r := clamp(raw[f.Start+i], RawMin, RawMax)
		f.Raw[i] = r
		f.Tactile[i] = 1 - r/RawMax
		f.Calibrated[i] = f.Tactile[i] - f.Bias[i]

		if !f.firstSample {
			d := (f.Calibrated[i] - f.previous[i]) / samplingTime
			if math.Abs(d) > updateThreshold {
				f.Derivative[i] = d - f.DerivativeBias[i]
			}
		}
		f.previous[i] = f.Calibrated[i]
	}
	f.firstSample = false
}

// maxCalibrated returns the largest calibrated value and its index.
func (f *Finger) maxCalibrated() (float64, int) {
	return argmax(f.Calibrated)
}

// maxDerivative returns the largest derivative value and its index.
func (f *Finger) maxDerivative() (float64, int) {
	return argmax(f.Derivative)
}

// ContactThreshold is the multiplier times the std of the most loaded sensor.
func (f *Finger) ContactThreshold() float64 {
	_, i := f.maxCalibrated()
	return f.ContactThresholdMultiplier * f.Std[i]
}

// DerivativeThreshold is the derivative multiplier times the derivative
// std of the sensor with the largest derivative.
func (f *Finger) DerivativeThreshold() float64 {
	_, i := f.maxDerivative()
	return f.DerivativeThresholdMultiplier * f.DerivativeStd[i]
}

func (f *Finger) collect() {
	f.tactileRows = append(f.tactileRows, append([]float64(nil), f.Tactile...))
	f.derivativeRows = append(f.derivativeRows, append([]float64(nil), f.Derivative...))
}

func (f *Finger) resetCollected() {
	f.tactileRows = nil
	f.derivativeRows = nil
}

// resetState forgets bias, std and the derivative history.
func (f *Finger) resetState() {
	for i := range f.Bias {
		f.Bias[i] = 0
		f.Std[i] = 0
		f.DerivativeBias[i] = 0
		f.DerivativeStd[i] = 0
		f.Derivative[i] = 0
		f.Calibrated[i] = 0
		f.previous[i] = 0
	}
	f.Working = false
	f.InContact = false
	f.ContactChanged = false
	f.firstSample = true
	f.resetCollected()
}

func argmax(v []float64) (float64, int) {
	best, idx := math.Inf(-1), 0
	for i, x := range v {
		if x > best {
			best, idx = x, i
		}
	}
	if len(v) == 0 {
		return 0, 0
	}
	return best, idx
}

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
