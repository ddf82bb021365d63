package gaze

import "time"

// TuningParams holds the runtime adjustable retargeting parameters.
type TuningParams struct {
	VelocityGain              float64 `json:"velocity_gain"`
	MaxVelocity               float64 `json:"max_velocity"`                 // deg/s
	Deadzone                  float64 `json:"deadzone"`                     // image-plane units
	DeadzoneActivationOffset  float64 `json:"deadzone_activation_offset"`   // image-plane units
	DeadzoneMinActivationTime float64 `json:"deadzone_min_activation_time"` // seconds
}

// GetTuningParams returns the current tuning parameters.
func (r *Retargeter) GetTuningParams() TuningParams {
	return TuningParams{
		VelocityGain:              r.cfg.VelocityGain,
		MaxVelocity:               r.cfg.MaxVelocity,
		Deadzone:                  r.cfg.Deadzone,
		DeadzoneActivationOffset:  r.cfg.DeadzoneActivationOffset,
		DeadzoneMinActivationTime: r.cfg.DeadzoneMinActivationTime.Seconds(),
	}
}

// SetTuningParams updates tuning parameters at runtime.
// Only positive values are applied.
func (r *Retargeter) SetTuningParams(p TuningParams) {
	if p.VelocityGain > 0 {
		r.cfg.VelocityGain = p.VelocityGain
	}
	if p.MaxVelocity > 0 {
		r.cfg.MaxVelocity = p.MaxVelocity
	}
	if p.Deadzone > 0 {
		r.cfg.Deadzone = p.Deadzone
	}
	if p.DeadzoneActivationOffset > 0 {
		r.cfg.DeadzoneActivationOffset = p.DeadzoneActivationOffset
	}
	if p.DeadzoneMinActivationTime > 0 {
		r.cfg.DeadzoneMinActivationTime = time.Duration(p.DeadzoneMinActivationTime * float64(time.Second))
	}

	for _, dz := range []*Deadzone{r.leftDZ, r.rightDZ} {
		dz.Inner = r.cfg.Deadzone
		dz.Outer = r.cfg.Deadzone + r.cfg.DeadzoneActivationOffset
		dz.MinActivationTime = r.cfg.DeadzoneMinActivationTime
	}
}
