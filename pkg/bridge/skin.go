package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-teleop/pkg/recorder"
	"github.com/teslashibe/go-teleop/pkg/skin"
	"github.com/teslashibe/go-teleop/pkg/tactile"
)

// SkinState is the skin loop state.
type SkinState int

const (
	SkinConfigured SkinState = iota
	SkinCalibrating
	SkinRunning
)

func (s SkinState) String() string {
	switch s {
	case SkinCalibrating:
		return "calibrating"
	case SkinRunning:
		return "running"
	default:
		return "configured"
	}
}

// SkinStatus is the skin loop snapshot.
type SkinStatus struct {
	State              string             `json:"state"`
	CalibrationElapsed float64            `json:"calibration_elapsed"` // seconds
	CalibrationPeriod  float64            `json:"calibration_period"`  // seconds
	CollectedSamples   int                `json:"collected_samples"`
	CalibrationSamples int                `json:"calibration_samples"` // used by the last calibration
	Fingers            []skin.FingerState `json:"fingers"`
	ReadErrors         uint64             `json:"read_errors"`
	Ticks              uint64             `json:"ticks"`
}

// LoadCalibration applies a stored calibration and skips the
// calibration phase.
func (b *Bridge) LoadCalibration(c skin.Calibration) error {
	b.skinMu.Lock()
	defer b.skinMu.Unlock()
	if b.skin == nil {
		return ErrSkinDisabled
	}
	if err := b.skin.ApplyCalibration(c); err != nil {
		return err
	}
	b.skinState = SkinRunning
	b.log.Info("skin calibration loaded", "working", b.workingNames())
	b.publishWorking()
	return nil
}

// Recalibrate restarts the calibration phase, keeping nothing learned.
// The hand must be unloaded for the whole calibration period.
func (b *Bridge) Recalibrate() error {
	b.skinMu.Lock()
	defer b.skinMu.Unlock()
	return b.restartCalibration()
}

func (b *Bridge) restartCalibration() error {
	if b.skin == nil {
		return ErrSkinDisabled
	}
	b.skin.Reset()
	b.skinState = SkinCalibrating
	b.calStart = b.now()
	b.publishVibrotactile()
	b.log.Info("skin calibration started", "period", b.skin.Config().CalibrationPeriod)
	return nil
}

// SkinTick runs one skin loop cycle.
func (b *Bridge) SkinTick(ctx context.Context) error {
	b.skinMu.Lock()
	defer b.skinMu.Unlock()
	if b.skin == nil {
		return ErrSkinDisabled
	}
	b.skinTicks++

	raw, err := b.readSamples(ctx)
	if err != nil {
		return err
	}

	switch b.skinState {
	case SkinConfigured:
		b.skinState = SkinCalibrating
		b.calStart = b.now()
		b.publishVibrotactile()
		b.log.Info("skin calibration started", "period", b.skin.Config().CalibrationPeriod)
		fallthrough

	case SkinCalibrating:
		if err := b.skin.UpdateCalibratedTactileData(raw); err != nil {
			return err
		}
		b.skin.CollectSkinDataForCalibration()
		if b.now().Sub(b.calStart) >= b.skin.Config().CalibrationPeriod {
			if err := b.finishCalibration(ctx); err != nil {
				return err
			}
		}

	case SkinRunning:
		if err := b.skin.Update(raw); err != nil {
			return err
		}
		b.publishVibrotactile()
		if b.pub != nil {
			if err := b.pub.PublishContacts(b.fingers, b.skin.ContactStates(), b.skin.ContactStrengths()); err != nil {
				b.log.Debug("contact publish failed", "error", err)
			}
		}
	}

	if b.skinTicks%uint64(b.cfg.RecordEvery) == 0 {
		b.recordSkin(ctx)
		b.publishStatus("skin", b.skinStatus())
	}
	return nil
}

// readSamples returns the next raw sample. A source with no fresh
// sample reuses the last one for up to MaxStaleTicks ticks; any other
// error, or a longer gap, is a lost source: the glove is silenced and
// the error fails the tick.
func (b *Bridge) readSamples(ctx context.Context) ([]float64, error) {
	raw, err := b.source.ReadSamples(ctx)
	if err == nil {
		b.lastRaw = raw
		b.staleTicks = 0
		return raw, nil
	}

	b.readErrs++
	if transientReadError(err) && b.lastRaw != nil && b.staleTicks < b.cfg.MaxStaleTicks {
		b.staleTicks++
		return b.lastRaw, nil
	}
	if b.lastRaw != nil {
		b.log.Warn("tactile source lost", "error", err, "stale_ticks", b.staleTicks)
		b.lastRaw = nil
		b.staleTicks = 0
		b.silence()
	}
	return nil, fmt.Errorf("read tactile samples: %w", err)
}

func transientReadError(err error) bool {
	return errors.Is(err, tactile.ErrStale) || errors.Is(err, tactile.ErrNoData)
}

func (b *Bridge) finishCalibration(ctx context.Context) error {
	b.calSamples = b.skin.CollectedSamples()
	if err := b.skin.ComputeCalibrationParameters(); err != nil {
		return fmt.Errorf("compute calibration: %w", err)
	}
	b.skinState = SkinRunning
	b.log.Info("skin calibration complete",
		"samples", b.calSamples, "working", b.workingNames())
	b.publishWorking()
	if b.rec != nil && b.sessionID != "" {
		if err := b.rec.SaveCalibration(ctx, b.sessionID, b.skin.Calibration()); err != nil {
			b.log.Warn("calibration not saved", "error", err)
		}
	}
	return nil
}

// publishVibrotactile sends the current commands, zero outside Running.
func (b *Bridge) publishVibrotactile() {
	if b.pub == nil {
		return
	}
	values := b.skin.VibrotactileFeedback()
	if b.skinState != SkinRunning {
		for i := range values {
			values[i] = 0
		}
	}
	if err := b.pub.PublishVibrotactile(b.fingers, values); err != nil {
		b.log.Debug("vibrotactile publish failed", "error", err)
	}
}

// silence commands zero vibration on every finger.
func (b *Bridge) silence() {
	if b.pub == nil {
		return
	}
	if err := b.pub.PublishVibrotactile(b.fingers, make([]float64, len(b.fingers))); err != nil {
		b.log.Debug("vibrotactile publish failed", "error", err)
	}
}

func (b *Bridge) publishWorking() {
	if b.pub == nil {
		return
	}
	if err := b.pub.PublishWorking(b.fingers, b.skin.WorkingFingers()); err != nil {
		b.log.Debug("working publish failed", "error", err)
	}
}

func (b *Bridge) workingNames() []string {
	var names []string
	for i, ok := range b.skin.WorkingFingers() {
		if ok {
			names = append(names, b.fingers[i])
		}
	}
	return names
}

func (b *Bridge) recordSkin(ctx context.Context) {
	if b.rec == nil || b.sessionID == "" {
		return
	}
	if err := b.skin.SerializeTactile(b.tactile); err != nil {
		return
	}
	sample := recorder.SkinSample{
		RecordedAt: b.now(),
		State:      b.skinState.String(),
		Tactile:    append([]float64(nil), b.tactile...),
		Feedback:   b.skin.VibrotactileFeedback(),
		Contacts:   b.skin.ContactStates(),
	}
	if err := b.rec.RecordSkin(ctx, b.sessionID, sample); err != nil {
		b.log.Debug("skin sample not recorded", "error", err)
	}
}

func (b *Bridge) skinStatus() SkinStatus {
	st := SkinStatus{
		State:              b.skinState.String(),
		CalibrationPeriod:  b.skin.Config().CalibrationPeriod.Seconds(),
		CollectedSamples:   b.skin.CollectedSamples(),
		CalibrationSamples: b.calSamples,
		Fingers:            b.skin.Snapshot(),
		ReadErrors:         b.readErrs,
		Ticks:              b.skinTicks,
	}
	if b.skinState == SkinCalibrating {
		st.CalibrationElapsed = b.now().Sub(b.calStart).Seconds()
	}
	return st
}

// SkinStatus returns the skin loop snapshot.
func (b *Bridge) SkinStatus() (SkinStatus, error) {
	b.skinMu.Lock()
	defer b.skinMu.Unlock()
	if b.skin == nil {
		return SkinStatus{}, ErrSkinDisabled
	}
	return b.skinStatus(), nil
}

// SkinState returns the skin loop state.
func (b *Bridge) SkinState() SkinState {
	b.skinMu.Lock()
	defer b.skinMu.Unlock()
	return b.skinState
}
