package bridge

import (
	"context"

	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/recorder"
)

// GazeTick runs one gaze loop cycle.
func (b *Bridge) GazeTick(ctx context.Context) error {
	b.gazeMu.Lock()
	defer b.gazeMu.Unlock()
	if b.gaze == nil {
		return ErrGazeDisabled
	}
	b.gazeTicks++

	if b.target != nil {
		b.gaze.SetTarget(b.target.Target())
	}
	err := b.gaze.Update(ctx)

	if b.gazeTicks%uint64(b.cfg.RecordEvery) == 0 {
		st := b.gaze.Status()
		if b.rec != nil && b.sessionID != "" && b.gaze.State() == gaze.StateActive {
			if rerr := b.rec.RecordGaze(ctx, b.sessionID, recorder.GazeSampleFromStatus(b.now(), st)); rerr != nil {
				b.log.Debug("gaze sample not recorded", "error", rerr)
			}
		}
		b.publishStatus("gaze", st)
	}
	return err
}

// GazeStatus returns the retargeter snapshot.
func (b *Bridge) GazeStatus() (gaze.Status, error) {
	b.gazeMu.Lock()
	defer b.gazeMu.Unlock()
	if b.gaze == nil {
		return gaze.Status{}, ErrGazeDisabled
	}
	return b.gaze.Status(), nil
}

// GazeTuning returns the gaze tuning parameters.
func (b *Bridge) GazeTuning() (gaze.TuningParams, error) {
	b.gazeMu.Lock()
	defer b.gazeMu.Unlock()
	if b.gaze == nil {
		return gaze.TuningParams{}, ErrGazeDisabled
	}
	return b.gaze.GetTuningParams(), nil
}

// SetGazeTuning updates the gaze tuning parameters and returns the
// resulting set.
func (b *Bridge) SetGazeTuning(p gaze.TuningParams) (gaze.TuningParams, error) {
	b.gazeMu.Lock()
	defer b.gazeMu.Unlock()
	if b.gaze == nil {
		return gaze.TuningParams{}, ErrGazeDisabled
	}
	b.gaze.SetTuningParams(p)
	b.log.Info("gaze tuning updated", "params", b.gaze.GetTuningParams())
	return b.gaze.GetTuningParams(), nil
}

// Reset restarts the skin calibration and re-homes the eyes. Homing
// holds only the gaze loop, the skin loop keeps running.
func (b *Bridge) Reset(ctx context.Context) error {
	if b.skin != nil {
		if err := b.Recalibrate(); err != nil {
			return err
		}
	}
	if b.gaze == nil {
		return nil
	}
	b.gazeMu.Lock()
	defer b.gazeMu.Unlock()
	if b.gaze.State() == gaze.StateUnconfigured {
		return nil
	}
	return b.gaze.Home(ctx)
}
