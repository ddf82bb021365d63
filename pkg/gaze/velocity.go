package gaze

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// Velocities is a tilt/version/vergence command.
type Velocities struct {
	Tilt     float64 `json:"tilt"`
	Version  float64 `json:"version"`
	Vergence float64 `json:"vergence"`
}

// Posture is a tilt/version/vergence joint position, in degrees.
type Posture struct {
	Tilt     float64 `json:"tilt"`
	Version  float64 `json:"version"`
	Vergence float64 `json:"vergence"`
}

// Scale returns v with every component multiplied by f.
func (v Velocities) Scale(f float64) Velocities {
	return Velocities{Tilt: v.Tilt * f, Version: v.Version * f, Vergence: v.Vergence * f}
}

// Range is the allowed span of one joint, in degrees.
type Range struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// SoftSaturate bounds velocity v by an envelope that shrinks smoothly to
// zero as pos approaches a limit. k is the tanh gain, vmax the velocity bound.
func SoftSaturate(v, pos float64, r Range, vmax, k float64) float64 {
	lower := math.Tanh(k*(pos-r.Lower)) * -vmax
	upper := math.Tanh(k*(r.Upper-pos)) * vmax
	return math.Max(lower, math.Min(v, upper))
}

// StereoVelocities combines the per-eye image-plane errors into one
// tilt/version/vergence command, in rad/s. dl and dr are the image
// distances of the left and right eye.
func StereoVelocities(left, right r2.Vec, dl, dr, gain float64) Velocities {
	elevL := gain * left.Y / dl
	elevR := gain * right.Y / dr
	azL := -gain * left.X / dl
	azR := -gain * right.X / dr

	versL := -azL
	versR := -azR
	return Velocities{
		Tilt:     0.5 * (elevL + elevR),
		Version:  0.5 * (versL + versR),
		Vergence: versL - versR,
	}
}

// ImageAngles splits a vergence/version/tilt posture, in radians, into
// the azimuth and elevation of each eye image.
func ImageAngles(vergence, version, tilt float64) (leftAz, rightAz, elevation float64) {
	leftAz = -(version + vergence/2)
	rightAz = -(version - vergence/2)
	return leftAz, rightAz, tilt
}

// clipLimits computes the usable joint ranges from the configured maxima
// and the joint limits reported by the driver.
func clipLimits(cfg Config, tilt, version, vergence Range) (Range, Range, Range) {
	maxTilt := math.Min(cfg.MaxTilt, math.Min(math.Abs(tilt.Lower), math.Abs(tilt.Upper)))
	maxVers := math.Min(cfg.MaxVersion, math.Min(math.Abs(version.Lower), math.Abs(version.Upper)))
	maxVerg := math.Min(cfg.MaxVergence, vergence.Upper)
	return Range{Lower: -maxTilt, Upper: maxTilt},
		Range{Lower: -maxVers, Upper: maxVers},
		Range{Lower: 0, Upper: maxVerg}
}
