package tactile

import (
	"context"
	"sync"

	"github.com/teslashibe/go-teleop/pkg/skin"
)

var _ skin.SampleSource = (*StaticSource)(nil)

// StaticSource serves values set by the caller. It backs the simulator
// and tests.
type StaticSource struct {
	mu     sync.Mutex
	values []float64
	err    error
}

// NewStaticSource returns a source with every sensor at value.
func NewStaticSource(sensors int, value float64) *StaticSource {
	values := make([]float64, sensors)
	for i := range values {
		values[i] = value
	}
	return &StaticSource{values: values}
}

// NewNoLoadSource returns a source reporting an unloaded skin.
func NewNoLoadSource(sensors int) *StaticSource {
	return NewStaticSource(sensors, skin.NoLoadValue)
}

// Set replaces every value.
func (s *StaticSource) Set(values []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values[:0], values...)
}

// SetRange sets sensors [start, end] to value.
func (s *StaticSource) SetRange(start, end int, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := start; i <= end && i < len(s.values); i++ {
		s.values[i] = value
	}
}

// SetError makes subsequent reads fail with err until cleared with nil.
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// ReadSamples returns a copy of the current values.
func (s *StaticSource) ReadSamples(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]float64(nil), s.values...), nil
}
