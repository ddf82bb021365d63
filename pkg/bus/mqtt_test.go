package bus

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-teleop/internal/log"
	"github.com/teslashibe/go-teleop/pkg/gaze"
)

// fakeToken completes immediately unless hang is set.
type fakeToken struct {
	err  error
	hang bool
}

func (t *fakeToken) Wait() bool { return !t.hang }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.hang }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.hang {
		close(ch)
	}
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	msgs  []published
	token *fakeToken
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.msgs = append(c.msgs, published{topic, retained, payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

func newTestPublisher() (*MQTTPublisher, *fakeClient) {
	client := &fakeClient{}
	cfg := DefaultConfig()
	cfg.Prefix = "lab"
	p := newPublisher(client, cfg, log.Nop())
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return p, client
}

func TestNewTopics(t *testing.T) {
	topics := NewTopics("robot1")
	want := map[string]string{
		topics.Vibrotactile: "robot1/skin/vibrotactile",
		topics.Contact:      "robot1/skin/contact",
		topics.Working:      "robot1/skin/working",
		topics.GazeLeft:     "robot1/gaze/left",
		topics.GazeRight:    "robot1/gaze/right",
	}
	for got, w := range want {
		if got != w {
			t.Errorf("topic = %s, want %s", got, w)
		}
	}
}

func TestPublishVibrotactile(t *testing.T) {
	p, client := newTestPublisher()
	if err := p.PublishVibrotactile([]string{"thumb", "index"}, []float64{0, 42.5}); err != nil {
		t.Fatal(err)
	}
	if len(client.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(client.msgs))
	}
	m := client.msgs[0]
	if m.topic != "lab/skin/vibrotactile" || m.retained {
		t.Errorf("topic = %s retained = %v", m.topic, m.retained)
	}
	var got VibrotactileMessage
	if err := json.Unmarshal(m.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Timestamp != 1700000000000 || got.Values[1] != 42.5 || got.Fingers[0] != "thumb" {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublishWorking_Retained(t *testing.T) {
	p, client := newTestPublisher()
	p.PublishWorking([]string{"thumb"}, []bool{true})
	if !client.msgs[0].retained || client.msgs[0].topic != "lab/skin/working" {
		t.Errorf("working message = %+v", client.msgs[0])
	}
}

func TestPublishContacts(t *testing.T) {
	p, client := newTestPublisher()
	p.PublishContacts([]string{"index"}, []bool{true}, []float64{0.7})
	var got ContactMessage
	json.Unmarshal(client.msgs[0].payload, &got)
	if client.msgs[0].topic != "lab/skin/contact" || !got.InContact[0] || got.Strength[0] != 0.7 {
		t.Errorf("contact message = %s %+v", client.msgs[0].topic, got)
	}
}

func TestSendEyeAngles(t *testing.T) {
	p, client := newTestPublisher()
	p.SendEyeAngles(gaze.Left, -0.07, 0.01)
	p.SendEyeAngles(gaze.Right, 0.03, 0.01)

	if client.msgs[0].topic != "lab/gaze/left" || client.msgs[1].topic != "lab/gaze/right" {
		t.Errorf("topics = %s, %s", client.msgs[0].topic, client.msgs[1].topic)
	}
	var got EyeAnglesMessage
	json.Unmarshal(client.msgs[0].payload, &got)
	if got.Azimuth != -0.07 || got.Elevation != 0.01 {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublishErrors(t *testing.T) {
	p, client := newTestPublisher()

	client.token = &fakeToken{hang: true}
	if err := p.PublishVibrotactile(nil, nil); !errors.Is(err, ErrPublishTimeout) {
		t.Errorf("expected ErrPublishTimeout, got %v", err)
	}

	broken := errors.New("not connected")
	client.token = &fakeToken{err: broken}
	if err := p.PublishVibrotactile(nil, nil); !errors.Is(err, broken) {
		t.Errorf("expected broker error, got %v", err)
	}
}
