// Package config loads the go-teleop configuration: a YAML file layered
// over built-in defaults, then TELEOP_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-teleop/pkg/bridge"
	"github.com/teslashibe/go-teleop/pkg/bus"
	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/robot"
	"github.com/teslashibe/go-teleop/pkg/skin"
	"github.com/teslashibe/go-teleop/pkg/tactile"
	"github.com/teslashibe/go-teleop/pkg/vr"
)

// Default configuration values.
const (
	DefaultWebPort      = "8080"
	DefaultRecorderPath = "teleop.db"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TELEOP_"
)

// Tactile sources.
const (
	SourceSerial = "serial"
	SourceStatic = "static"
	SourceNone   = "none"
)

// Eye drivers.
const (
	DriverFeetech = "feetech"
	DriverSim     = "sim"
	DriverNone    = "none"
)

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// TactileConfig selects the raw skin sample source.
type TactileConfig struct {
	Source string               `yaml:"source"`
	Serial tactile.SerialConfig `yaml:"serial"`
}

// EyesConfig selects the eye joint driver.
type EyesConfig struct {
	Driver  string              `yaml:"driver"`
	Feetech robot.FeetechConfig `yaml:"feetech"`
}

// MQTTConfig enables the glove and eye angle topics.
type MQTTConfig struct {
	Enabled    bool `yaml:"enabled"`
	bus.Config `yaml:",inline"`
}

// WebConfig enables the dashboard API.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// RecorderConfig locates the session database. An empty path disables
// recording.
type RecorderConfig struct {
	Path string `yaml:"path"`
}

// Config is the whole daemon configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Skin     skin.Config    `yaml:"skin"`
	Tactile  TactileConfig  `yaml:"tactile"`
	Gaze     gaze.Config    `yaml:"gaze"`
	Eyes     EyesConfig     `yaml:"eyes"`
	VR       vr.Config      `yaml:"vr"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Web      WebConfig      `yaml:"web"`
	Recorder RecorderConfig `yaml:"recorder"`
	Bridge   bridge.Config  `yaml:"bridge"`
}

// Default returns a configuration that runs the whole bridge against
// the in-memory devices.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Skin:     skin.DefaultConfig(),
		Tactile:  TactileConfig{Source: SourceStatic, Serial: tactile.DefaultSerialConfig()},
		Gaze:     gaze.DefaultConfig(),
		Eyes:     EyesConfig{Driver: DriverSim, Feetech: robot.DefaultFeetechConfig()},
		VR:       vr.DefaultConfig(),
		MQTT:     MQTTConfig{Config: bus.DefaultConfig()},
		Web:      WebConfig{Enabled: true, Port: DefaultWebPort},
		Recorder: RecorderConfig{Path: DefaultRecorderPath},
		Bridge:   bridge.DefaultConfig(),
	}
}

// Load reads path over the defaults, applies the environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envOverrides lists the settings that may come from the environment.
// Unset variables leave the loaded value in place.
type envOverrides struct {
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	CalibrationPeriod time.Duration `env:"SKIN_CALIBRATION_PERIOD"`

	TactileSource string `env:"TACTILE_SOURCE"`
	TactilePort   string `env:"TACTILE_PORT"`
	TactileBaud   uint   `env:"TACTILE_BAUD"`

	EyesDriver string `env:"EYES_DRIVER"`
	EyesPort   string `env:"EYES_PORT"`

	VRURL string `env:"VR_URL"`

	MQTTEnabled  bool   `env:"MQTT_ENABLED"`
	MQTTBroker   string `env:"MQTT_BROKER"`
	MQTTClientID string `env:"MQTT_CLIENT_ID"`
	MQTTPrefix   string `env:"MQTT_PREFIX"`

	WebEnabled bool   `env:"WEB_ENABLED"`
	WebPort    string `env:"WEB_PORT"`

	RecorderPath string `env:"RECORDER_PATH"`
}

// ApplyEnv overrides c with the TELEOP_* environment variables.
func (c *Config) ApplyEnv() error {
	o := envOverrides{
		LogLevel:          c.Log.Level,
		LogFormat:         c.Log.Format,
		CalibrationPeriod: c.Skin.CalibrationPeriod,
		TactileSource:     c.Tactile.Source,
		TactilePort:       c.Tactile.Serial.Port,
		TactileBaud:       c.Tactile.Serial.BaudRate,
		EyesDriver:        c.Eyes.Driver,
		EyesPort:          c.Eyes.Feetech.Port,
		VRURL:             c.VR.URL,
		MQTTEnabled:       c.MQTT.Enabled,
		MQTTBroker:        c.MQTT.Broker,
		MQTTClientID:      c.MQTT.ClientID,
		MQTTPrefix:        c.MQTT.Prefix,
		WebEnabled:        c.Web.Enabled,
		WebPort:           c.Web.Port,
		RecorderPath:      c.Recorder.Path,
	}
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	c.Log.Level = o.LogLevel
	c.Log.Format = o.LogFormat
	c.Skin.CalibrationPeriod = o.CalibrationPeriod
	c.Tactile.Source = o.TactileSource
	c.Tactile.Serial.Port = o.TactilePort
	c.Tactile.Serial.BaudRate = o.TactileBaud
	c.Eyes.Driver = o.EyesDriver
	c.Eyes.Feetech.Port = o.EyesPort
	c.VR.URL = o.VRURL
	c.MQTT.Enabled = o.MQTTEnabled
	c.MQTT.Broker = o.MQTTBroker
	c.MQTT.ClientID = o.MQTTClientID
	c.MQTT.Prefix = o.MQTTPrefix
	c.Web.Enabled = o.WebEnabled
	c.Web.Port = o.WebPort
	c.Recorder.Path = o.RecorderPath
	return nil
}

// SkinEnabled reports whether the skin loop runs.
func (c Config) SkinEnabled() bool {
	return c.Tactile.Source != SourceNone
}

// GazeEnabled reports whether the gaze loop runs.
func (c Config) GazeEnabled() bool {
	return c.Eyes.Driver != DriverNone
}

// Validate checks every section. Errors from the component packages are
// wrapped in a ConfigError naming the section.
func (c Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ConfigError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &ConfigError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}

	switch c.Tactile.Source {
	case SourceSerial:
		if c.Tactile.Serial.Port == "" {
			return &ConfigError{Field: "tactile.serial.port", Message: "required for the serial source"}
		}
		if c.Tactile.Serial.BaudRate == 0 {
			return &ConfigError{Field: "tactile.serial.baud_rate", Message: "must be positive"}
		}
		if c.Tactile.Serial.Sensors != c.Skin.NoTactileSensors {
			return &ConfigError{
				Field:   "tactile.serial.sensors",
				Message: fmt.Sprintf("frame carries %d sensors, skin expects %d", c.Tactile.Serial.Sensors, c.Skin.NoTactileSensors),
			}
		}
	case SourceStatic, SourceNone:
	default:
		return &ConfigError{Field: "tactile.source", Message: fmt.Sprintf("unknown source %q", c.Tactile.Source)}
	}
	if c.SkinEnabled() {
		if _, err := c.Skin.Validate(); err != nil {
			return sectionError("skin", err)
		}
	}

	switch c.Eyes.Driver {
	case DriverFeetech:
		if c.Eyes.Feetech.Port == "" {
			return &ConfigError{Field: "eyes.feetech.port", Message: "required for the feetech driver"}
		}
		if len(c.Eyes.Feetech.Servos) == 0 {
			return &ConfigError{Field: "eyes.feetech.servos", Message: "at least one servo is required"}
		}
	case DriverSim, DriverNone:
	default:
		return &ConfigError{Field: "eyes.driver", Message: fmt.Sprintf("unknown driver %q", c.Eyes.Driver)}
	}
	if c.GazeEnabled() {
		if err := c.Gaze.Validate(); err != nil {
			return sectionError("gaze", err)
		}
		if c.VR.URL == "" {
			return &ConfigError{Field: "vr.url", Message: "required when the gaze loop runs"}
		}
		if c.Bridge.GazePeriod <= 0 {
			return &ConfigError{Field: "bridge.gaze_period", Message: "must be positive"}
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return &ConfigError{Field: "mqtt.broker", Message: "required when mqtt is enabled"}
	}
	if c.Web.Enabled {
		if p, err := strconv.Atoi(c.Web.Port); err != nil || p < 0 || p > 65535 {
			return &ConfigError{Field: "web.port", Message: fmt.Sprintf("invalid port %q", c.Web.Port)}
		}
	}
	if c.Bridge.RecordEvery <= 0 {
		return &ConfigError{Field: "bridge.record_every", Message: "must be positive"}
	}
	if c.Bridge.MaxStaleTicks <= 0 {
		return &ConfigError{Field: "bridge.max_stale_ticks", Message: "must be positive"}
	}
	return nil
}

// sectionError prefixes a component ConfigError field with its section.
func sectionError(section string, err error) error {
	var skinErr *skin.ConfigError
	if errors.As(err, &skinErr) {
		return &ConfigError{Field: section + "." + skinErr.Field, Message: skinErr.Message}
	}
	var gazeErr *gaze.ConfigError
	if errors.As(err, &gazeErr) {
		return &ConfigError{Field: section + "." + gazeErr.Field, Message: gazeErr.Message}
	}
	return &ConfigError{Field: section, Message: err.Error()}
}
