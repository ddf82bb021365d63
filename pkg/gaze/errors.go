package gaze

import "errors"

var (
	// ErrNotConfigured is returned by Update before Configure succeeded.
	ErrNotConfigured = errors.New("gaze: retargeter not configured")

	// ErrParallelGaze is returned when a gaze ray is parallel to the image plane.
	ErrParallelGaze = errors.New("gaze: gaze ray parallel to image plane")

	// ErrAxisNotFound is returned when the driver lacks a required joint.
	ErrAxisNotFound = errors.New("gaze: axis not found")

	// ErrAlreadyConfigured is returned by a second Configure call.
	ErrAlreadyConfigured = errors.New("gaze: retargeter already configured")

	// ErrInvalidGeometry is returned when the headset reports an eye
	// geometry with no usable image plane.
	ErrInvalidGeometry = errors.New("gaze: invalid eye geometry")

	// ErrNonFiniteCommand is returned instead of sending a NaN or
	// infinite velocity to the joints.
	ErrNonFiniteCommand = errors.New("gaze: non-finite velocity command")
)
