// skin-calibrate records an unloaded-hand calibration for the fingertip
// skin and stores it where the teleop daemon loads it at startup.
//
// Keep the robot hand free of contact for the whole calibration period.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-teleop/internal/config"
	"github.com/teslashibe/go-teleop/internal/log"
	"github.com/teslashibe/go-teleop/pkg/recorder"
	"github.com/teslashibe/go-teleop/pkg/skin"
	"github.com/teslashibe/go-teleop/pkg/tactile"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	period := flag.Duration("period", 0, "Calibration period (overrides skin.calibration_period)")
	out := flag.String("out", "", "Also write the calibration as JSON to this file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *period > 0 {
		cfg.Skin.CalibrationPeriod = *period
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *out); err != nil {
		log.Error("calibration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, out string) error {
	if cfg.Tactile.Source != config.SourceSerial {
		return fmt.Errorf("calibration needs the serial tactile source, got %q", cfg.Tactile.Source)
	}
	sk, err := skin.New(cfg.Skin)
	if err != nil {
		return err
	}

	src, err := tactile.OpenSerial(cfg.Tactile.Serial, log.Component("tactile"))
	if err != nil {
		return err
	}
	readCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()
	go src.Run(readCtx)

	cal, err := collect(ctx, sk, src, cfg.Skin)
	if err != nil {
		return err
	}
	report(sk)

	if cfg.Recorder.Path != "" {
		store, err := recorder.Open(cfg.Recorder.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		session, err := store.StartSession(ctx, "skin-calibrate")
		if err != nil {
			return err
		}
		if err := store.SaveCalibration(ctx, session.ID, cal); err != nil {
			return err
		}
		log.Info("calibration stored", "path", cfg.Recorder.Path, "session", session.ID)
	}

	if out != "" {
		data, err := json.MarshalIndent(cal, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		log.Info("calibration written", "file", out)
	}
	return nil
}

// collect feeds one sample per sampling period into the calibration
// buffers until the period has elapsed.
func collect(ctx context.Context, sk *skin.Skin, src skin.SampleSource, cfg skin.Config) (skin.Calibration, error) {
	log.Info("collecting unloaded samples, keep the hand free", "period", cfg.CalibrationPeriod)

	ticker := time.NewTicker(cfg.SamplingTime)
	defer ticker.Stop()
	deadline := time.Now().Add(cfg.CalibrationPeriod)

	var misses int
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return skin.Calibration{}, ctx.Err()
		case <-ticker.C:
		}

		raw, err := src.ReadSamples(ctx)
		if errors.Is(err, tactile.ErrNoData) || errors.Is(err, tactile.ErrStale) {
			misses++
			continue
		}
		if err != nil {
			return skin.Calibration{}, err
		}
		if err := sk.UpdateCalibratedTactileData(raw); err != nil {
			return skin.Calibration{}, err
		}
		sk.CollectSkinDataForCalibration()
	}

	log.Info("collection finished", "samples", sk.CollectedSamples(), "missed", misses)
	if err := sk.ComputeCalibrationParameters(); err != nil {
		return skin.Calibration{}, err
	}
	return sk.Calibration(), nil
}

func report(sk *skin.Skin) {
	for _, f := range sk.Fingers() {
		status := "working"
		if !f.Working {
			status = "NOT WORKING"
		}
		fmt.Printf("  %-8s sensors %3d-%3d  %s\n", f.Name, f.Start, f.End, status)
	}
}
