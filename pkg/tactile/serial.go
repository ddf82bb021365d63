package tactile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/go-serial/serial"

	"github.com/teslashibe/go-teleop/pkg/skin"
)

var _ skin.SampleSource = (*SerialSource)(nil)

// SerialConfig describes the skin serial link.
type SerialConfig struct {
	Port     string `yaml:"port" json:"port"`
	BaudRate uint   `yaml:"baud_rate" json:"baud_rate"`
	Sensors  int    `yaml:"sensors" json:"sensors"`

	// Frames older than MaxAge are reported as stale.
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`
}

// DefaultSerialConfig returns defaults for a USB skin adapter.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Port:     "/dev/ttyUSB0",
		BaudRate: 921600,
		Sensors:  skin.DefaultConfig().NoTactileSensors,
		MaxAge:   500 * time.Millisecond,
	}
}

// ErrStale is returned when no frame arrived within MaxAge.
var ErrStale = errors.New("tactile: sample data is stale")

// SerialSource decodes frames from a serial port in a background
// goroutine and serves the latest one.
type SerialSource struct {
	port   io.ReadCloser
	dec    *Decoder
	maxAge time.Duration
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	latest   []float64
	received time.Time
	frames   uint64
	readErr  error

	running atomic.Bool
	done    chan struct{}
}

// OpenSerial opens the serial port and returns a source reading from
// it. Call Run to start decoding.
func OpenSerial(cfg SerialConfig, logger *slog.Logger) (*SerialSource, error) {
	if cfg.Sensors <= 0 {
		return nil, fmt.Errorf("tactile: sensors must be positive, got %d", cfg.Sensors)
	}
	opts := serial.OpenOptions{
		PortName:              cfg.Port,
		BaudRate:              cfg.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	if logger != nil {
		logger.Info("tactile serial port opened", "port", cfg.Port, "baud", cfg.BaudRate)
	}
	return NewSerialSource(port, cfg.Sensors, cfg.MaxAge, logger), nil
}

// NewSerialSource wraps an already open byte stream.
func NewSerialSource(port io.ReadCloser, sensors int, maxAge time.Duration, logger *slog.Logger) *SerialSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SerialSource{
		port:   port,
		dec:    NewDecoder(port, sensors),
		maxAge: maxAge,
		log:    logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Run decodes frames until the stream fails or ctx is cancelled.
// Closing the port unblocks a pending read.
func (s *SerialSource) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("tactile: serial source already running")
	}
	defer close(s.done)

	stop := context.AfterFunc(ctx, func() { s.port.Close() })
	defer stop()

	lastWarn := time.Time{}
	for {
		payload, err := s.dec.Next()
		if errors.Is(err, ErrChecksum) {
			if time.Since(lastWarn) > 5*time.Second {
				_, corrupt := s.dec.Stats()
				s.log.Warn("corrupted tactile frame", "error", err, "total_corrupt", corrupt)
				lastWarn = time.Now()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return fmt.Errorf("tactile read: %w", err)
		}
		s.store(payload)
	}
}

func (s *SerialSource) store(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latest) != len(payload) {
		s.latest = make([]float64, len(payload))
	}
	for i, b := range payload {
		s.latest[i] = float64(b)
	}
	s.received = s.now()
	s.frames++
}

// ReadSamples returns a copy of the latest frame.
func (s *SerialSource) ReadSamples(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.latest == nil {
		return nil, ErrNoData
	}
	if s.maxAge > 0 && s.now().Sub(s.received) > s.maxAge {
		return nil, ErrStale
	}
	return append([]float64(nil), s.latest...), nil
}

// Frames returns the number of valid frames decoded so far.
func (s *SerialSource) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close closes the port and waits for Run to return if it was started.
func (s *SerialSource) Close() error {
	err := s.port.Close()
	if s.running.Load() {
		select {
		case <-s.done:
		case <-time.After(time.Second):
		}
	}
	return err
}
