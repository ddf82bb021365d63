package gaze

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// parallelTolerance is the smallest |direction.z| accepted in the image frame.
const parallelTolerance = 1e-15

var (
	axisX = r3.Vec{X: 1}
	axisY = r3.Vec{Y: 1}
)

// trackerToHeadset rotates the eye tracker frame (x left, z forward)
// into the headset frame (x right, z backward).
var trackerToHeadset = r3.NewRotation(math.Pi, axisY)

// Side identifies an eye.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Ray is a gaze ray in the eye tracker frame.
type Ray struct {
	Origin    r3.Vec `json:"origin"`
	Direction r3.Vec `json:"direction"`
}

// Target is the latest operator gaze. Set is false until the first
// sample arrives.
type Target struct {
	Left  Ray  `json:"left"`
	Right Ray  `json:"right"`
	Set   bool `json:"set"`
}

// AngleSink receives the image angles of one eye, in radians.
type AngleSink interface {
	SendEyeAngles(side Side, azimuth, elevation float64) error
}

// AngleSinks fans out to several sinks and returns the first error.
type AngleSinks []AngleSink

// SendEyeAngles forwards to every sink.
func (s AngleSinks) SendEyeAngles(side Side, azimuth, elevation float64) error {
	var first error
	for _, sink := range s {
		if err := sink.SendEyeAngles(side, azimuth, elevation); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Eye is the image pose of one eye in the headset frame.
type Eye struct {
	Side      Side
	Azimuth   float64 // rad
	Elevation float64 // rad

	// Eye center relative to the eye-pair origin.
	Position r3.Vec
	// Image plane origin relative to the eye center, before rotation.
	ImageRelative r3.Vec

	out AngleSink
}

// NewEye creates an eye pose dispatching to out.
func NewEye(side Side, out AngleSink) *Eye {
	return &Eye{Side: side, out: out}
}

// SetGeometry places the eye for interocular distance ipd and image depth z.
func (e *Eye) SetGeometry(ipd, z float64) {
	x := ipd / 2
	if e.Side == Left {
		x = -x
	}
	e.Position = r3.Vec{X: x}
	e.ImageRelative = r3.Vec{Z: z}
}

// CheckGeometry rejects an interocular distance or image depth that
// would put the image plane through the eye center.
func CheckGeometry(ipd, z float64) error {
	if !finite(ipd) || ipd <= 0 {
		return fmt.Errorf("%w: ipd %v", ErrInvalidGeometry, ipd)
	}
	if !finite(z) || z == 0 {
		return fmt.Errorf("%w: eyes z %v", ErrInvalidGeometry, z)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ImageDistance is the distance from the eye center to its image plane.
func (e *Eye) ImageDistance() float64 {
	return r3.Norm(e.ImageRelative)
}

// SetAngles stores and dispatches the image angles.
func (e *Eye) SetAngles(azimuth, elevation float64) error {
	e.Azimuth = azimuth
	e.Elevation = elevation
	if e.out == nil {
		return nil
	}
	if err := e.out.SendEyeAngles(e.Side, azimuth, elevation); err != nil {
		return fmt.Errorf("send %s eye angles: %w", e.Side, err)
	}
	return nil
}

// toImage maps a headset-frame point into the image frame.
// The image frame is rotated by RotX(elevation)·RotY(azimuth) about the
// eye center and offset by ImageRelative along its own axes.
func (e *Eye) toImage(p r3.Vec) r3.Vec {
	origin := r3.Add(e.rotation(e.ImageRelative), e.Position)
	return e.inverseRotation(r3.Sub(p, origin))
}

func (e *Eye) rotation(v r3.Vec) r3.Vec {
	v = r3.NewRotation(e.Azimuth, axisY).Rotate(v)
	return r3.NewRotation(e.Elevation, axisX).Rotate(v)
}

func (e *Eye) inverseRotation(v r3.Vec) r3.Vec {
	v = r3.NewRotation(-e.Elevation, axisX).Rotate(v)
	return r3.NewRotation(-e.Azimuth, axisY).Rotate(v)
}

// IntersectionInImage returns where ray hits the image plane, in
// image-frame coordinates. It fails with ErrParallelGaze when the ray is
// parallel to the plane.
func (e *Eye) IntersectionInImage(ray Ray) (r2.Vec, error) {
	origin := e.toImage(trackerToHeadset.Rotate(ray.Origin))
	dir := e.inverseRotation(trackerToHeadset.Rotate(ray.Direction))

	if math.Abs(dir.Z) < parallelTolerance {
		return r2.Vec{}, fmt.Errorf("%s eye: %w", e.Side, ErrParallelGaze)
	}
	alpha := -origin.Z / dir.Z
	return r2.Vec{
		X: origin.X + alpha*dir.X,
		Y: origin.Y + alpha*dir.Y,
	}, nil
}
