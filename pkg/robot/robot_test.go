package robot

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// fakeClock advances only when told to.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestSim() (*SimEyes, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewSimEyes(DefaultAxisNames(), DefaultEyeLimits())
	s.now = clock.now
	return s, clock
}

func TestServoConfig_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		inverted bool
		deg      float64
		raw      int
	}{
		{"center", false, 0, 2048},
		{"positive", false, 90, 3072},
		{"negative", false, -90, 1024},
		{"inverted", true, 90, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ServoConfig{Center: 2048, Inverted: tt.inverted}
			if got := s.degreesToRaw(tt.deg); got != tt.raw {
				t.Errorf("degreesToRaw(%v) = %d, want %d", tt.deg, got, tt.raw)
			}
			if got := s.rawToDegrees(tt.raw); !floatEquals(got, tt.deg) {
				t.Errorf("rawToDegrees(%d) = %v, want %v", tt.raw, got, tt.deg)
			}
		})
	}
}

func TestServoConfig_ClampsRawRange(t *testing.T) {
	s := ServoConfig{Center: 2048}
	if got := s.degreesToRaw(400); got != 4095 {
		t.Errorf("degreesToRaw(400) = %d, want 4095", got)
	}
	if got := s.degreesToRaw(-400); got != 0 {
		t.Errorf("degreesToRaw(-400) = %d, want 0", got)
	}
}

func TestCheckCommand(t *testing.T) {
	if err := checkCommand(3, []int{0, 3}); !errors.Is(err, ErrUnknownAxis) {
		t.Errorf("expected ErrUnknownAxis, got %v", err)
	}
	if err := checkCommand(3, []int{0, 1}, []float64{1}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
	if err := checkCommand(3, []int{0, 1, 2}, []float64{1, 2, 3}, []float64{4, 5, 6}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSimEyes_PositionMoveClampsToLimits(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSim()

	if err := s.PositionMove(ctx, []int{0, 1, 2}, []float64{10, -50, 20}, []float64{20, 20, 20}); err != nil {
		t.Fatal(err)
	}
	pos, err := s.Encoders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{10, -30, 15}
	for i := range want {
		if !floatEquals(pos[i], want[i]) {
			t.Errorf("axis %d: got %v, want %v", i, pos[i], want[i])
		}
	}
}

func TestSimEyes_VelocityIntegration(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestSim()
	axes := []int{0, 1, 2}

	if err := s.SetControlMode(ctx, axes, ModeVelocity); err != nil {
		t.Fatal(err)
	}
	if err := s.VelocityMove(ctx, axes, []float64{10, -5, 2}); err != nil {
		t.Fatal(err)
	}
	clock.advance(500 * time.Millisecond)

	pos, _ := s.Encoders(ctx)
	want := []float64{5, -2.5, 1}
	for i := range want {
		if !floatEquals(pos[i], want[i]) {
			t.Errorf("axis %d: got %v, want %v", i, pos[i], want[i])
		}
	}
}

func TestSimEyes_WrongMode(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSim()

	err := s.VelocityMove(ctx, []int{0}, []float64{1})
	if !errors.Is(err, ErrWrongMode) {
		t.Errorf("velocity in position mode: expected ErrWrongMode, got %v", err)
	}

	s.SetControlMode(ctx, []int{0}, ModeVelocity)
	err = s.PositionMove(ctx, []int{0}, []float64{1}, []float64{1})
	if !errors.Is(err, ErrWrongMode) {
		t.Errorf("position in velocity mode: expected ErrWrongMode, got %v", err)
	}
}

func TestSimEyes_Closed(t *testing.T) {
	s, _ := newTestSim()
	s.Close()
	if _, err := s.Encoders(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestControlMode_String(t *testing.T) {
	if ModePosition.String() != "position" || ModeVelocity.String() != "velocity" {
		t.Error("unexpected mode names")
	}
}
