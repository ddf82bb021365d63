package gaze

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestSoftSaturate(t *testing.T) {
	r := Range{Lower: -30, Upper: 30}
	tests := []struct {
		name string
		v    float64
		pos  float64
		want float64
	}{
		{"inside envelope", 5, 0, 5},
		{"clipped above", 100, 0, 20},
		{"clipped below", -100, 0, -20},
		{"at lower limit cannot move down", -5, -30, 0},
		{"at upper limit cannot move up", 5, 30, 0},
		{"at lower limit can move up", 5, -30, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SoftSaturate(tt.v, tt.pos, r, 20, 10); !floatEquals(got, tt.want) {
				t.Errorf("SoftSaturate(%v, %v) = %v, want %v", tt.v, tt.pos, got, tt.want)
			}
		})
	}
}

func TestSoftSaturate_EnvelopeShape(t *testing.T) {
	r := Range{Lower: 0, Upper: 1e6}
	// at the bound the lower envelope is tanh(0) = 0
	if got := SoftSaturate(-1e9, 0, r, 20, 10); got != 0 {
		t.Errorf("lower bound at the limit = %v, want 0", got)
	}
	// far from the bound it approaches -vmax
	if got := SoftSaturate(-1e9, 1000, r, 20, 10); !floatEquals(got, -20) {
		t.Errorf("lower bound far from the limit = %v, want -20", got)
	}
	// close to the bound the envelope is partial
	got := SoftSaturate(-1e9, 0.05, r, 20, 10)
	want := -20 * math.Tanh(0.5)
	if !floatEquals(got, want) {
		t.Errorf("lower bound near the limit = %v, want %v", got, want)
	}
}

func TestStereoVelocities(t *testing.T) {
	tests := []struct {
		name        string
		left, right r2.Vec
		want        Velocities
	}{
		{"both up", r2.Vec{Y: 0.08}, r2.Vec{Y: 0.08}, Velocities{Tilt: 0.16}},
		{"conjugate", r2.Vec{X: 0.1}, r2.Vec{X: 0.1}, Velocities{Version: 0.2}},
		{"disjunctive", r2.Vec{X: 0.1}, r2.Vec{X: -0.1}, Velocities{Vergence: 0.4}},
		{"one eye", r2.Vec{X: 0.1, Y: 0.1}, r2.Vec{}, Velocities{Tilt: 0.1, Version: 0.1, Vergence: 0.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StereoVelocities(tt.left, tt.right, 1, 1, 2)
			if !floatEquals(got.Tilt, tt.want.Tilt) || !floatEquals(got.Version, tt.want.Version) || !floatEquals(got.Vergence, tt.want.Vergence) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestImageAngles(t *testing.T) {
	l, r, e := ImageAngles(0.2, 0.1, 0.05)
	if !floatEquals(l, -0.2) || !floatEquals(r, 0) || !floatEquals(e, 0.05) {
		t.Errorf("ImageAngles = (%v, %v, %v), want (-0.2, 0, 0.05)", l, r, e)
	}
}

func TestClipLimits(t *testing.T) {
	cfg := DefaultConfig()
	tilt, vers, verg := clipLimits(cfg,
		Range{Lower: -20, Upper: 40},
		Range{Lower: -30, Upper: 30},
		Range{Lower: 0, Upper: 8},
	)
	if tilt != (Range{Lower: -20, Upper: 20}) {
		t.Errorf("tilt = %+v, want ±20", tilt)
	}
	if vers != (Range{Lower: -25, Upper: 25}) {
		t.Errorf("version = %+v, want ±25", vers)
	}
	if verg != (Range{Lower: 0, Upper: 8}) {
		t.Errorf("vergence = %+v, want [0, 8]", verg)
	}
}

func TestDegreesRadians(t *testing.T) {
	if !floatEquals(Degrees(math.Pi), 180) || !floatEquals(Radians(90), math.Pi/2) {
		t.Error("conversion mismatch")
	}
}
