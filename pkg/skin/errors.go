package skin

import "errors"

var (
	// ErrSizeMismatch is returned when a vector does not match the configured sensor layout.
	ErrSizeMismatch = errors.New("skin: vector size mismatch")

	// ErrNoCalibrationData is returned when calibration runs before any sample was collected.
	ErrNoCalibrationData = errors.New("skin: no calibration data collected")

	// ErrUnknownFinger is returned when a stored calibration names a finger that is not configured.
	ErrUnknownFinger = errors.New("skin: unknown finger")
)
