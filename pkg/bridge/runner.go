package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc is one control cycle.
type TickFunc func(ctx context.Context) error

// RunnerStats are the runner diagnostics.
type RunnerStats struct {
	Name      string        `json:"name"`
	Period    time.Duration `json:"period"`
	Ticks     uint64        `json:"ticks"`
	Errors    uint64        `json:"errors"`
	LastError string        `json:"last_error,omitempty"`
}

// Runner calls a tick function at a fixed period.
type Runner struct {
	name   string
	period time.Duration
	tick   TickFunc
	log    *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	tickCount  atomic.Uint64
	errorCount atomic.Uint64

	mu            sync.Mutex
	lastError     error
	lastErrorTime time.Time // throttles error logs
}

// NewRunner creates a runner. Typical periods are 10ms for the skin and
// 20ms for the gaze loop.
func NewRunner(name string, period time.Duration, tick TickFunc, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		name:   name,
		period: period,
		tick:   tick,
		log:    logger.With("runner", name),
		stop:   make(chan struct{}),
	}
}

// Run starts the control loop. Blocks until ctx is done or Stop is called.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.log.Info("runner started", "period", r.period)
	defer r.log.Info("runner stopped", "ticks", r.tickCount.Load(), "errors", r.errorCount.Load())

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.runTick(ctx)
		}
	}
}

func (r *Runner) runTick(ctx context.Context) {
	n := r.tickCount.Add(1)
	if err := r.tick(ctx); err != nil {
		r.errorCount.Add(1)
		r.mu.Lock()
		r.lastError = err
		// max one log line per 5 seconds
		if r.lastErrorTime.IsZero() || time.Since(r.lastErrorTime) > 5*time.Second {
			r.log.Warn("tick failed", "error", err, "total_errors", r.errorCount.Load())
			r.lastErrorTime = time.Now()
		}
		r.mu.Unlock()
	}

	// heartbeat every ~10 seconds
	if beat := uint64(10 * time.Second / r.period); beat > 0 && n%beat == 0 {
		r.log.Debug("runner heartbeat", "ticks", n, "errors", r.errorCount.Load())
	}
}

// Stop halts the control loop. It is safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Stats returns the runner diagnostics.
func (r *Runner) Stats() RunnerStats {
	st := RunnerStats{
		Name:   r.name,
		Period: r.period,
		Ticks:  r.tickCount.Load(),
		Errors: r.errorCount.Load(),
	}
	r.mu.Lock()
	if r.lastError != nil {
		st.LastError = r.lastError.Error()
	}
	r.mu.Unlock()
	return st
}
