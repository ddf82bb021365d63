package gaze

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

const testIPD = 0.064

func newTestEye(side Side) *Eye {
	e := NewEye(side, nil)
	e.SetGeometry(testIPD, -1)
	return e
}

// trackerOrigin is the eye center expressed in the tracker frame.
func trackerOrigin(side Side) r3.Vec {
	if side == Left {
		return r3.Vec{X: testIPD / 2}
	}
	return r3.Vec{X: -testIPD / 2}
}

func TestEye_SetGeometry(t *testing.T) {
	l := newTestEye(Left)
	r := newTestEye(Right)
	if !floatEquals(l.Position.X, -testIPD/2) || !floatEquals(r.Position.X, testIPD/2) {
		t.Errorf("eye positions = %v, %v", l.Position, r.Position)
	}
	if !floatEquals(l.ImageDistance(), 1) {
		t.Errorf("ImageDistance = %v, want 1", l.ImageDistance())
	}
}

func TestCheckGeometry(t *testing.T) {
	tests := []struct {
		name   string
		ipd, z float64
		ok     bool
	}{
		{"headset default", testIPD, -1, true},
		{"positive depth", testIPD, 0.5, true},
		{"zero depth", testIPD, 0, false},
		{"nan depth", testIPD, math.NaN(), false},
		{"infinite depth", testIPD, math.Inf(1), false},
		{"zero ipd", 0, -1, false},
		{"negative ipd", -0.06, -1, false},
		{"infinite ipd", math.Inf(1), -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckGeometry(tt.ipd, tt.z)
			if tt.ok && err != nil {
				t.Errorf("CheckGeometry(%v, %v) = %v", tt.ipd, tt.z, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("CheckGeometry(%v, %v) = %v, want ErrInvalidGeometry", tt.ipd, tt.z, err)
			}
		})
	}
}

func TestIntersectionInImage(t *testing.T) {
	tests := []struct {
		name string
		side Side
		dir  r3.Vec
		want r2.Vec
	}{
		{"left straight", Left, r3.Vec{Z: 1}, r2.Vec{}},
		{"right straight", Right, r3.Vec{Z: 1}, r2.Vec{}},
		{"left up", Left, r3.Vec{Y: 0.1, Z: 1}, r2.Vec{Y: 0.1}},
		{"left sideways", Left, r3.Vec{X: 0.2, Z: 1}, r2.Vec{X: -0.2}},
		{"right scaled direction", Right, r3.Vec{X: 0.4, Y: -0.2, Z: 2}, r2.Vec{X: -0.2, Y: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEye(tt.side)
			got, err := e.IntersectionInImage(Ray{Origin: trackerOrigin(tt.side), Direction: tt.dir})
			if err != nil {
				t.Fatal(err)
			}
			if !vecEquals(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntersectionInImage_Parallel(t *testing.T) {
	e := newTestEye(Left)
	for _, dir := range []r3.Vec{{X: 1}, {Y: 1}, {}} {
		_, err := e.IntersectionInImage(Ray{Origin: trackerOrigin(Left), Direction: dir})
		if !errors.Is(err, ErrParallelGaze) {
			t.Errorf("direction %v: expected ErrParallelGaze, got %v", dir, err)
		}
	}
}

func TestIntersectionInImage_RotatedImage(t *testing.T) {
	e := newTestEye(Right)
	e.Azimuth = 0.1
	e.Elevation = -0.05

	// a ray from the eye center through the rotated image center
	dir := trackerToHeadset.Rotate(e.rotation(e.ImageRelative))
	got, err := e.IntersectionInImage(Ray{Origin: trackerOrigin(Right), Direction: dir})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.X) > 1e-9 || math.Abs(got.Y) > 1e-9 {
		t.Errorf("ray through the image center hit %v, want origin", got)
	}
}

type recordingSink struct {
	calls []struct {
		side     Side
		az, elev float64
	}
	err error
}

func (s *recordingSink) SendEyeAngles(side Side, az, elev float64) error {
	s.calls = append(s.calls, struct {
		side     Side
		az, elev float64
	}{side, az, elev})
	return s.err
}

func (s *recordingSink) last(side Side) (float64, float64, bool) {
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].side == side {
			return s.calls[i].az, s.calls[i].elev, true
		}
	}
	return 0, 0, false
}

func TestAngleSinks_FanOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("offline")}
	c := &recordingSink{}

	err := AngleSinks{a, b, c}.SendEyeAngles(Left, 0.1, 0.2)
	if err == nil {
		t.Error("expected the failing sink's error")
	}
	if len(a.calls) != 1 || len(c.calls) != 1 {
		t.Error("every sink should receive the angles")
	}
}
