// Package bus publishes haptic commands and eye image poses to an MQTT
// broker. Payloads are JSON, one topic per stream:
//
//	<prefix>/skin/vibrotactile  per-finger actuator commands [0, 100]
//	<prefix>/skin/contact       per-finger contact flags and strengths
//	<prefix>/skin/working       working fingers (retained)
//	<prefix>/gaze/left          left eye image pose, radians
//	<prefix>/gaze/right         right eye image pose, radians
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-teleop/pkg/gaze"
)

var _ gaze.AngleSink = (*MQTTPublisher)(nil)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("bus: publish timed out")

// Config holds the broker connection parameters.
type Config struct {
	Broker         string        `yaml:"broker" json:"broker"`
	ClientID       string        `yaml:"client_id" json:"client_id"`
	Prefix         string        `yaml:"prefix" json:"prefix"`
	PublishTimeout time.Duration `yaml:"publish_timeout" json:"publish_timeout"`
}

// DefaultConfig returns the default broker configuration.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "go-teleop",
		Prefix:         "teleop",
		PublishTimeout: 50 * time.Millisecond,
	}
}

// Topics derived from the prefix.
type Topics struct {
	Vibrotactile string
	Contact      string
	Working      string
	GazeLeft     string
	GazeRight    string
}

// NewTopics builds the topic set for prefix.
func NewTopics(prefix string) Topics {
	return Topics{
		Vibrotactile: prefix + "/skin/vibrotactile",
		Contact:      prefix + "/skin/contact",
		Working:      prefix + "/skin/working",
		GazeLeft:     prefix + "/gaze/left",
		GazeRight:    prefix + "/gaze/right",
	}
}

// publisher is the subset of mqtt.Client used here.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// VibrotactileMessage is the actuator command payload.
type VibrotactileMessage struct {
	Timestamp int64     `json:"ts"`
	Fingers   []string  `json:"fingers"`
	Values    []float64 `json:"values"`
}

// ContactMessage is the contact state payload.
type ContactMessage struct {
	Timestamp int64     `json:"ts"`
	Fingers   []string  `json:"fingers"`
	InContact []bool    `json:"in_contact"`
	Strength  []float64 `json:"strength"`
}

// WorkingMessage lists the fingers with live sensors.
type WorkingMessage struct {
	Timestamp int64    `json:"ts"`
	Fingers   []string `json:"fingers"`
	Working   []bool   `json:"working"`
}

// EyeAnglesMessage is one eye's image pose.
type EyeAnglesMessage struct {
	Timestamp int64   `json:"ts"`
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// MQTTPublisher writes JSON payloads to the broker.
type MQTTPublisher struct {
	client  publisher
	topics  Topics
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger

	closer func()
}

// Connect dials the broker and returns a publisher.
func Connect(cfg Config, logger *slog.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	p := newPublisher(client, cfg, logger)
	p.closer = func() { client.Disconnect(250) }
	p.log.Info("mqtt connected", "broker", cfg.Broker, "prefix", cfg.Prefix)
	return p, nil
}

func newPublisher(client publisher, cfg Config, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{
		client:  client,
		topics:  NewTopics(cfg.Prefix),
		timeout: cfg.PublishTimeout,
		now:     time.Now,
		log:     logger,
	}
}

// Topics returns the topic set in use.
func (p *MQTTPublisher) Topics() Topics {
	return p.topics
}

func (p *MQTTPublisher) publish(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	token := p.client.Publish(topic, 0, retained, payload)
	if p.timeout > 0 && !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishVibrotactile sends the actuator commands.
func (p *MQTTPublisher) PublishVibrotactile(fingers []string, values []float64) error {
	return p.publish(p.topics.Vibrotactile, false, VibrotactileMessage{
		Timestamp: p.now().UnixMilli(),
		Fingers:   fingers,
		Values:    values,
	})
}

// PublishContacts sends the per-finger contact state.
func (p *MQTTPublisher) PublishContacts(fingers []string, inContact []bool, strength []float64) error {
	return p.publish(p.topics.Contact, false, ContactMessage{
		Timestamp: p.now().UnixMilli(),
		Fingers:   fingers,
		InContact: inContact,
		Strength:  strength,
	})
}

// PublishWorking sends the working flags, retained so late subscribers
// see the last calibration result.
func (p *MQTTPublisher) PublishWorking(fingers []string, working []bool) error {
	return p.publish(p.topics.Working, true, WorkingMessage{
		Timestamp: p.now().UnixMilli(),
		Fingers:   fingers,
		Working:   working,
	})
}

// SendEyeAngles publishes one eye's image pose.
func (p *MQTTPublisher) SendEyeAngles(side gaze.Side, azimuth, elevation float64) error {
	topic := p.topics.GazeRight
	if side == gaze.Left {
		topic = p.topics.GazeLeft
	}
	return p.publish(topic, false, EyeAnglesMessage{
		Timestamp: p.now().UnixMilli(),
		Azimuth:   azimuth,
		Elevation: elevation,
	})
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
