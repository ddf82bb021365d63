package gaze

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// Deadzone suppresses small 2-D error signals with hysteresis.
//
// Outside the deadzone the input passes through, attenuated linearly
// toward the inner boundary. Once the input falls inside the inner
// radius the deadzone holds, and it only releases after the input has
// stayed beyond the outer radius for MinActivationTime.
type Deadzone struct {
	Inner             float64
	Outer             float64
	MinActivationTime time.Duration

	active      bool
	activatedAt time.Time // zero while not latched

	now func() time.Time
}

// NewDeadzone creates a deadzone with outer radius inner+offset.
func NewDeadzone(inner, offset float64, minActivationTime time.Duration) *Deadzone {
	return &Deadzone{
		Inner:             inner,
		Outer:             inner + offset,
		MinActivationTime: minActivationTime,
		now:               time.Now,
	}
}

// Active reports whether the deadzone is holding the output at zero.
func (d *Deadzone) Active() bool {
	return d.active
}

// ActivationTime returns the latch time, or the zero time if none is set.
func (d *Deadzone) ActivationTime() time.Time {
	return d.activatedAt
}

// Reset releases the deadzone.
func (d *Deadzone) Reset() {
	d.active = false
	d.activatedAt = time.Time{}
}

// Apply filters one input sample.
func (d *Deadzone) Apply(in r2.Vec) r2.Vec {
	n := r2.Norm(in)
	now := d.now()

	releasedHigh := !d.active && n > d.Inner
	activeBeyondOuter := d.active && n > d.Outer
	enoughTime := d.MinActivationTime <= 0 ||
		(!d.activatedAt.IsZero() && now.Sub(d.activatedAt) >= d.MinActivationTime)

	if (activeBeyondOuter && enoughTime) || releasedHigh {
		d.active = false
		d.activatedAt = time.Time{}
		return r2.Scale(1-d.Inner/n, in)
	}

	d.active = true
	if activeBeyondOuter {
		if d.activatedAt.IsZero() {
			d.activatedAt = now
		}
	} else {
		d.activatedAt = time.Time{}
	}
	return r2.Vec{}
}

// Quantize rounds v to the nearest multiple of step.
// A non-positive step returns v unchanged.
func Quantize(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}
