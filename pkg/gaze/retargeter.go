// Package gaze retargets the operator's eye gaze, measured by a VR
// headset eye tracker, onto the robot's tilt/version/vergence eye joints.
//
// A Retargeter is not safe for concurrent use; the caller serializes
// Update with every other method.
package gaze

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/teslashibe/go-teleop/pkg/robot"
)

// VRDevice reports the headset tracking state and eye geometry.
type VRDevice interface {
	// IsActive reports whether both eyes are tracked.
	IsActive(ctx context.Context) bool
	// Geometry returns the interocular distance and the image depth, in meters.
	Geometry() (ipd, eyesZ float64)
}

// State is the retargeter lifecycle state.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateActive
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateActive:
		return "active"
	default:
		return "unconfigured"
	}
}

// EyeAngles is the image pose of one eye, in radians.
type EyeAngles struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// Status is a snapshot of the retargeter for telemetry.
type Status struct {
	State          string     `json:"state"`
	TargetSet      bool       `json:"target_set"`
	Encoders       Posture    `json:"encoders"`
	Commanded      Velocities `json:"commanded"` // degrees per second
	Left           EyeAngles  `json:"left"`
	Right          EyeAngles  `json:"right"`
	LeftDeadzone   bool       `json:"left_deadzone"`
	RightDeadzone  bool       `json:"right_deadzone"`
	TiltRange      Range      `json:"tilt_range"`
	VersionRange   Range      `json:"version_range"`
	VergenceRange  Range      `json:"vergence_range"`
	ParallelErrors uint64     `json:"parallel_errors"`
}

// Retargeter is the gaze velocity controller.
type Retargeter struct {
	cfg Config
	vr  VRDevice
	log *slog.Logger

	joints robot.EyeDriver
	axes   []int // driver indices of tilt, version, vergence

	tilt, version, vergence Range

	left, right     *Eye
	leftDZ, rightDZ *Deadzone
	target          Target

	state          State
	encoders       Posture
	commanded      Velocities
	parallelErrors uint64

	sleep func(context.Context, time.Duration) error
}

// NewRetargeter validates cfg and creates an unconfigured retargeter.
// Image angles are dispatched to out.
func NewRetargeter(cfg Config, vr VRDevice, out AngleSink, logger *slog.Logger) (*Retargeter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retargeter{
		cfg:     cfg,
		vr:      vr,
		log:     logger,
		left:    NewEye(Left, out),
		right:   NewEye(Right, out),
		leftDZ:  NewDeadzone(cfg.Deadzone, cfg.DeadzoneActivationOffset, cfg.DeadzoneMinActivationTime),
		rightDZ: NewDeadzone(cfg.Deadzone, cfg.DeadzoneActivationOffset, cfg.DeadzoneMinActivationTime),
		sleep:   sleepContext,
	}, nil
}

// State returns the lifecycle state.
func (r *Retargeter) State() State {
	return r.state
}

// SetTarget stores the latest operator gaze.
func (r *Retargeter) SetTarget(t Target) {
	r.target = t
}

// Configure binds the eye driver, reads and clips the joint limits,
// homes the eyes and switches to velocity control. It succeeds once;
// Close releases the driver before another can be bound.
func (r *Retargeter) Configure(ctx context.Context, joints robot.EyeDriver) error {
	if r.state != StateUnconfigured {
		return ErrAlreadyConfigured
	}
	names := joints.AxisNames()
	axes := make([]int, 3)
	for i, want := range []string{r.cfg.TiltAxis, r.cfg.VersionAxis, r.cfg.VergenceAxis} {
		idx := indexOf(names, want)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrAxisNotFound, want)
		}
		axes[i] = idx
	}

	var limits [3]Range
	for i, a := range axes {
		lo, hi, err := joints.Limits(a)
		if err != nil {
			return fmt.Errorf("read limits of %s: %w", names[a], err)
		}
		limits[i] = Range{Lower: lo, Upper: hi}
	}

	r.joints = joints
	r.axes = axes
	r.tilt, r.version, r.vergence = clipLimits(r.cfg, limits[0], limits[1], limits[2])
	r.log.Info("eye joints bound",
		"max_tilt", r.tilt.Upper, "max_version", r.version.Upper, "max_vergence", r.vergence.Upper)

	if err := r.Home(ctx); err != nil {
		r.joints = nil
		return err
	}
	r.state = StateConfigured
	return nil
}

// Home drives every joint to zero in position mode, waits for the
// estimated travel time and switches back to velocity mode.
func (r *Retargeter) Home(ctx context.Context) error {
	if r.joints == nil {
		return ErrNotConfigured
	}
	if err := r.home(ctx); err != nil {
		return err
	}
	if err := r.joints.SetControlMode(ctx, r.axes, robot.ModeVelocity); err != nil {
		return fmt.Errorf("set velocity mode: %w", err)
	}
	return nil
}

func (r *Retargeter) home(ctx context.Context) error {
	if err := r.joints.SetControlMode(ctx, r.axes, robot.ModePosition); err != nil {
		return fmt.Errorf("set position mode: %w", err)
	}
	enc, err := r.joints.Encoders(ctx)
	if err != nil {
		return fmt.Errorf("read encoders: %w", err)
	}

	maxError := 0.0
	for _, a := range r.axes {
		maxError = math.Max(maxError, math.Abs(enc[a]))
	}
	speed := r.cfg.MaxVelocity
	if err := r.joints.PositionMove(ctx, r.axes, []float64{0, 0, 0}, []float64{speed, speed, speed}); err != nil {
		return fmt.Errorf("move to home: %w", err)
	}

	wait := time.Duration(r.cfg.HomingTimeFactor * maxError / speed * float64(time.Second))
	if wait > r.cfg.HomingTimeout {
		wait = r.cfg.HomingTimeout
	}
	r.log.Info("homing eyes", "max_error_deg", maxError, "wait", wait)
	return r.sleep(ctx, wait)
}

// Close homes the eyes, leaves them in position mode and releases the driver.
func (r *Retargeter) Close(ctx context.Context) error {
	if r.joints == nil {
		return nil
	}
	homeErr := r.home(ctx)
	closeErr := r.joints.Close()
	r.joints = nil
	r.state = StateUnconfigured
	if homeErr != nil {
		return homeErr
	}
	return closeErr
}

// Update runs one control tick.
func (r *Retargeter) Update(ctx context.Context) error {
	if r.state == StateUnconfigured {
		return ErrNotConfigured
	}

	active := r.vr.IsActive(ctx)
	switch {
	case r.state == StateConfigured && active:
		if err := r.activate(); err != nil {
			return err
		}
	case r.state == StateActive && !active:
		r.deactivate(ctx)
		return nil
	case !active:
		return nil
	}

	enc, err := r.joints.Encoders(ctx)
	if err != nil {
		return fmt.Errorf("read encoders: %w", err)
	}
	pos := Posture{Tilt: enc[r.axes[0]], Version: enc[r.axes[1]], Vergence: enc[r.axes[2]]}
	r.encoders = pos

	var desired Velocities
	if r.target.Set {
		desired, err = r.desiredVelocities()
		if err != nil {
			return err
		}
	}

	desired = desired.Scale(180.0 / math.Pi)
	vmax, k := r.cfg.MaxVelocity, r.cfg.SaturationGain
	cmd := Velocities{
		Tilt:     SoftSaturate(desired.Tilt, pos.Tilt, r.tilt, vmax, k),
		Version:  SoftSaturate(desired.Version, pos.Version, r.version, vmax, k),
		Vergence: SoftSaturate(desired.Vergence, pos.Vergence, r.vergence, vmax, k),
	}
	if !finite(cmd.Tilt) || !finite(cmd.Version) || !finite(cmd.Vergence) {
		r.stop(ctx)
		return fmt.Errorf("%w: %+v", ErrNonFiniteCommand, cmd)
	}
	if err := r.joints.VelocityMove(ctx, r.axes, []float64{cmd.Tilt, cmd.Version, cmd.Vergence}); err != nil {
		return fmt.Errorf("velocity move: %w", err)
	}
	r.commanded = cmd

	r.setImagePose(Radians(pos.Vergence), Radians(pos.Version), Radians(pos.Tilt))
	return nil
}

// desiredVelocities computes the rad/s command from the current target.
func (r *Retargeter) desiredVelocities() (Velocities, error) {
	l, err := r.left.IntersectionInImage(r.target.Left)
	if err != nil {
		r.parallelErrors++
		return Velocities{}, err
	}
	rt, err := r.right.IntersectionInImage(r.target.Right)
	if err != nil {
		r.parallelErrors++
		return Velocities{}, err
	}
	return StereoVelocities(
		r.leftDZ.Apply(l),
		r.rightDZ.Apply(rt),
		r.left.ImageDistance(),
		r.right.ImageDistance(),
		r.cfg.VelocityGain,
	), nil
}

// setImagePose dispatches quantized image angles for the given posture, in radians.
func (r *Retargeter) setImagePose(vergence, version, tilt float64) {
	step := Radians(r.cfg.MovementAccuracy)
	leftAz, rightAz, elev := ImageAngles(vergence, version, tilt)
	elev = Quantize(elev, step)
	if err := r.left.SetAngles(Quantize(leftAz, step), elev); err != nil {
		r.log.Warn("image pose not delivered", "error", err)
	}
	if err := r.right.SetAngles(Quantize(rightAz, step), elev); err != nil {
		r.log.Warn("image pose not delivered", "error", err)
	}
}

func (r *Retargeter) activate() error {
	ipd, z := r.vr.Geometry()
	if err := CheckGeometry(ipd, z); err != nil {
		return err
	}
	r.left.SetGeometry(ipd, z)
	r.right.SetGeometry(ipd, z)
	r.leftDZ.Reset()
	r.rightDZ.Reset()
	r.setImagePose(0, 0, 0)
	r.state = StateActive
	r.log.Info("eye tracking active", "ipd", ipd, "eyes_z", z)
	return nil
}

func (r *Retargeter) deactivate(ctx context.Context) {
	r.state = StateConfigured
	r.leftDZ.Reset()
	r.rightDZ.Reset()
	r.stop(ctx)
	r.setImagePose(0, 0, 0)
	r.log.Info("eye tracking lost")
}

func (r *Retargeter) stop(ctx context.Context) {
	r.commanded = Velocities{}
	if err := r.joints.VelocityMove(ctx, r.axes, []float64{0, 0, 0}); err != nil {
		r.log.Warn("failed to stop eyes", "error", err)
	}
}

// Status returns a telemetry snapshot.
func (r *Retargeter) Status() Status {
	return Status{
		State:          r.state.String(),
		TargetSet:      r.target.Set,
		Encoders:       r.encoders,
		Commanded:      r.commanded,
		Left:           EyeAngles{Azimuth: r.left.Azimuth, Elevation: r.left.Elevation},
		Right:          EyeAngles{Azimuth: r.right.Azimuth, Elevation: r.right.Elevation},
		LeftDeadzone:   r.leftDZ.Active(),
		RightDeadzone:  r.rightDZ.Active(),
		TiltRange:      r.tilt,
		VersionRange:   r.version,
		VergenceRange:  r.vergence,
		ParallelErrors: r.parallelErrors,
	}
}

func indexOf(names []string, want string) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return -1
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
