// teleop runs the teleoperation bridge: fingertip skin to glove
// vibrotactile feedback, and operator gaze to robot eye velocities.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-teleop/internal/config"
	"github.com/teslashibe/go-teleop/internal/log"
	"github.com/teslashibe/go-teleop/pkg/bridge"
	"github.com/teslashibe/go-teleop/pkg/bus"
	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/hub"
	"github.com/teslashibe/go-teleop/pkg/recorder"
	"github.com/teslashibe/go-teleop/pkg/robot"
	"github.com/teslashibe/go-teleop/pkg/skin"
	"github.com/teslashibe/go-teleop/pkg/tactile"
	"github.com/teslashibe/go-teleop/pkg/vr"
	"github.com/teslashibe/go-teleop/pkg/web"
)

// shutdownTimeout bounds homing the eyes and stopping the web server.
const shutdownTimeout = 15 * time.Second

type options struct {
	configPath string
	label      string
	fresh      bool
	debug      bool
}

func main() {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts); err != nil {
		log.Error("teleop stopped", "error", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML config file (defaults apply when empty)")
	flag.StringVar(&opts.label, "label", "", "Session label stored with the recording")
	flag.BoolVar(&opts.fresh, "fresh", false, "Ignore the stored calibration and calibrate at startup")
	flag.BoolVar(&opts.debug, "debug", false, "Enable verbose debug logging")
	flag.Parse()
	return opts
}

func run(ctx context.Context, cfg config.Config, opts options) error {
	logger := log.Component("teleop")
	deps := bridge.Deps{}

	var store *recorder.Store
	if cfg.Recorder.Path != "" {
		var err error
		store, err = recorder.Open(cfg.Recorder.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		session, err := store.StartSession(ctx, opts.label)
		if err != nil {
			return err
		}
		deps.Recorder = store
		deps.SessionID = session.ID
		logger.Info("recording session", "id", session.ID, "path", cfg.Recorder.Path)
	}

	var sinks gaze.AngleSinks
	if cfg.MQTT.Enabled {
		pub, err := bus.Connect(cfg.MQTT.Config, log.Component("mqtt"))
		if err != nil {
			return err
		}
		defer pub.Close()
		deps.Publisher = pub
		sinks = append(sinks, pub)
	}

	if cfg.SkinEnabled() {
		sk, err := skin.New(cfg.Skin)
		if err != nil {
			return err
		}
		src, err := openSource(ctx, cfg)
		if err != nil {
			return err
		}
		deps.Skin = sk
		deps.Source = src
	}

	if cfg.GazeEnabled() {
		headset := vr.New(cfg.VR, log.Component("vr"))
		defer headset.Close()
		sinks = append(sinks, headset)

		r, err := gaze.NewRetargeter(cfg.Gaze, headset, sinks, log.Component("gaze"))
		if err != nil {
			return err
		}
		eyes, err := openEyes(ctx, cfg)
		if err != nil {
			return err
		}
		if err := r.Configure(ctx, eyes); err != nil {
			eyes.Close()
			return fmt.Errorf("configure eyes: %w", err)
		}
		deps.Gaze = r
		deps.Target = headset
	}

	statusHub := hub.New("status", log.Component("hub"))
	deps.Status = statusHub
	go statusHub.Run(ctx)

	b, err := bridge.New(cfg.Bridge, deps, log.Component("bridge"))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := b.Close(closeCtx); err != nil {
			logger.Warn("eyes not released cleanly", "error", err)
		}
	}()

	if store != nil && deps.Skin != nil && !opts.fresh {
		loadCalibration(ctx, b, store, logger)
	}

	if cfg.Web.Enabled {
		srv := web.NewServer(cfg.Web.Port, b, statusHub, log.Component("web"))
		srv.StartAsync()
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(closeCtx)
		}()
	}

	logger.Info("bridge running",
		"skin", cfg.SkinEnabled(), "gaze", cfg.GazeEnabled(), "mqtt", cfg.MQTT.Enabled)
	b.Run(ctx)
	logger.Info("shutting down")
	return nil
}

// openSource builds the tactile source. A serial source decodes in the
// background until ctx is done.
func openSource(ctx context.Context, cfg config.Config) (skin.SampleSource, error) {
	if cfg.Tactile.Source == config.SourceStatic {
		return tactile.NewNoLoadSource(cfg.Skin.NoTactileSensors), nil
	}
	src, err := tactile.OpenSerial(cfg.Tactile.Serial, log.Component("tactile"))
	if err != nil {
		return nil, err
	}
	go func() {
		if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("tactile reader stopped", "error", err)
		}
	}()
	return src, nil
}

func openEyes(ctx context.Context, cfg config.Config) (robot.EyeDriver, error) {
	if cfg.Eyes.Driver == config.DriverFeetech {
		return robot.NewFeetechEyes(ctx, cfg.Eyes.Feetech)
	}
	return robot.NewSimEyes(robot.DefaultAxisNames(), robot.DefaultEyeLimits()), nil
}

// loadCalibration applies the newest stored calibration, if any.
func loadCalibration(ctx context.Context, b *bridge.Bridge, store *recorder.Store, logger *slog.Logger) {
	cal, at, err := store.LatestCalibration(ctx)
	if errors.Is(err, recorder.ErrNotFound) {
		logger.Info("no stored calibration, calibrating at startup")
		return
	}
	if err != nil {
		logger.Warn("stored calibration unreadable", "error", err)
		return
	}
	if err := b.LoadCalibration(cal); err != nil {
		logger.Warn("stored calibration rejected", "error", err)
		return
	}
	logger.Info("stored calibration loaded", "recorded_at", at)
}
