package vr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-teleop/internal/log"
	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/protocol"
)

// fakeHeadset answers tracking queries and records eye angle messages.
type fakeHeadset struct {
	mu      sync.Mutex
	left    bool
	right   bool
	ipd     float64
	z       float64
	silent  bool
	queries []string
	angles  []protocol.EyeAnglesData
	conn    *websocket.Conn
	wmu     sync.Mutex
}

func (h *fakeHeadset) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		h.mu.Lock()
		h.conn = conn
		h.mu.Unlock()
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				continue
			}
			switch msg.Type {
			case protocol.TypeQuery:
				q, _ := msg.GetQueryData()
				h.answer(q)
			case protocol.TypeEyeAngles:
				a, _ := msg.GetEyeAnglesData()
				h.mu.Lock()
				h.angles = append(h.angles, *a)
				h.mu.Unlock()
			}
		}
	}
}

func (h *fakeHeadset) answer(q *protocol.QueryData) {
	h.mu.Lock()
	h.queries = append(h.queries, q.Method)
	silent := h.silent
	var value interface{}
	switch q.Method {
	case protocol.MethodIsLeftEyeActive:
		value = h.left
	case protocol.MethodIsRightEyeActive:
		value = h.right
	case protocol.MethodGetInterCameraDistance:
		value = h.ipd
	case protocol.MethodGetEyesZPosition:
		value = h.z
	}
	h.mu.Unlock()
	if silent {
		return
	}
	reply, _ := protocol.NewReplyMessage(q.ID, value)
	h.write(reply)
}

func (h *fakeHeadset) write(msg *protocol.Message) {
	data, _ := msg.Bytes()
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	h.wmu.Lock()
	defer h.wmu.Unlock()
	conn.WriteMessage(websocket.TextMessage, data)
}

func (h *fakeHeadset) queryCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queries)
}

func newTestClient(t *testing.T, h *fakeHeadset) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h.handler(t))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.QueryTimeout = time.Second
	c, err := Dial(context.Background(), cfg, log.Nop())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (c *Client) pollDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.polling
}

func TestIsActive_ReadsGeometry(t *testing.T) {
	h := &fakeHeadset{left: true, right: true, ipd: 0.064, z: -1}
	c, _ := newTestClient(t, h)

	eventually(t, func() bool { return c.IsActive(context.Background()) })
	ipd, z := c.Geometry()
	if ipd != 0.064 || z != -1 {
		t.Errorf("Geometry = (%v, %v), want (0.064, -1)", ipd, z)
	}

	// once active no further queries are sent
	n := h.queryCount()
	if !c.IsActive(context.Background()) || h.queryCount() != n {
		t.Error("active client should not query the headset again")
	}
}

func TestIsActive_RateLimited(t *testing.T) {
	h := &fakeHeadset{left: true, right: false}
	c, _ := newTestClient(t, h)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	if c.IsActive(context.Background()) {
		t.Fatal("one eye tracked must not be active")
	}
	eventually(t, func() bool { return h.queryCount() == 2 && c.pollDone() })

	now = now.Add(500 * time.Millisecond)
	c.IsActive(context.Background())
	if !c.pollDone() {
		t.Fatal("a poll started within the interval")
	}
	if got := h.queryCount(); got != 2 {
		t.Errorf("queries within the interval, total %d", got)
	}

	h.mu.Lock()
	h.right = true
	h.mu.Unlock()
	now = now.Add(600 * time.Millisecond)
	eventually(t, func() bool { return c.IsActive(context.Background()) })
}

func TestIsActive_DoesNotBlock(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *Client
	}{
		{
			name: "silent headset",
			setup: func(t *testing.T) *Client {
				c, _ := newTestClient(t, &fakeHeadset{silent: true})
				return c
			},
		},
		{
			name: "unreachable headset",
			setup: func(t *testing.T) *Client {
				cfg := DefaultConfig()
				cfg.URL = "ws://10.255.255.1:9/teleop" // non-routable
				cfg.HandshakeTimeout = time.Second
				return New(cfg, log.Nop())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.setup(t)
			for i := 0; i < 3; i++ {
				start := time.Now()
				if c.IsActive(context.Background()) {
					t.Fatal("expected inactive")
				}
				if d := time.Since(start); d > 50*time.Millisecond {
					t.Fatalf("IsActive took %v", d)
				}
			}
			eventually(t, c.pollDone)
		})
	}
}

func TestIsActive_QueryTimeout(t *testing.T) {
	h := &fakeHeadset{silent: true}
	c, _ := newTestClient(t, h)
	c.cfg.QueryTimeout = 20 * time.Millisecond

	if c.IsActive(context.Background()) {
		t.Error("unanswered queries must report inactive")
	}
	eventually(t, c.pollDone)
	if c.IsActive(context.Background()) {
		t.Error("unanswered queries must report inactive")
	}
	if _, err := c.query(context.Background(), protocol.MethodIsLeftEyeActive); !errors.Is(err, ErrQueryTimeout) {
		t.Errorf("expected ErrQueryTimeout, got %v", err)
	}
}

func TestSend_DeadlineIgnoresFakeClock(t *testing.T) {
	h := &fakeHeadset{}
	c, _ := newTestClient(t, h)
	c.now = func() time.Time { return time.Unix(0, 0) }

	if err := c.SendEyeAngles(gaze.Left, 0.01, 0); err != nil {
		t.Fatalf("SendEyeAngles with a past fake clock: %v", err)
	}
	eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.angles) == 1
	})
}

func TestGazeStream(t *testing.T) {
	h := &fakeHeadset{left: true, right: true, ipd: 0.064, z: -1}
	c, _ := newTestClient(t, h)
	eventually(t, func() bool { return c.IsActive(context.Background()) })

	msg, _ := protocol.NewGazeMessage(
		protocol.RayData{Origin: protocol.Vec3{0.032, 0, 0}, Direction: protocol.Vec3{0, 0.1, 1}},
		protocol.RayData{Origin: protocol.Vec3{-0.032, 0, 0}, Direction: protocol.Vec3{0, 0.1, 1}},
		true,
	)
	h.write(msg)
	eventually(t, func() bool { return c.GazeCount() == 1 })

	target := c.Target()
	if !target.Set {
		t.Fatal("target should be set")
	}
	if target.Left.Direction != (r3.Vec{Y: 0.1, Z: 1}) || target.Right.Origin != (r3.Vec{X: -0.032}) {
		t.Errorf("target = %+v", target)
	}

	lost, _ := protocol.NewGazeMessage(protocol.RayData{}, protocol.RayData{}, false)
	h.write(lost)
	eventually(t, func() bool { return c.GazeCount() == 2 })

	if c.Target().Set {
		t.Error("invalid gaze should clear the target")
	}
	if c.IsActive(context.Background()) {
		t.Error("invalid gaze should deactivate tracking")
	}
}

func TestSendEyeAngles(t *testing.T) {
	h := &fakeHeadset{}
	c, _ := newTestClient(t, h)

	if err := c.SendEyeAngles(gaze.Right, 0.05, -0.02); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.angles) == 1
	})
	h.mu.Lock()
	got := h.angles[0]
	h.mu.Unlock()
	if got.Side != "right" || got.Azimuth != 0.05 || got.Elevation != -0.02 {
		t.Errorf("angles = %+v", got)
	}
}

func TestLinkLoss(t *testing.T) {
	h := &fakeHeadset{left: true, right: true, ipd: 0.064, z: -1}
	c, _ := newTestClient(t, h)
	eventually(t, func() bool { return c.IsActive(context.Background()) })

	h.mu.Lock()
	h.conn.Close()
	h.mu.Unlock()
	eventually(t, func() bool { return !c.Connected() })

	if c.Target().Set {
		t.Error("target should be cleared on link loss")
	}
	if err := c.SendEyeAngles(gaze.Left, 0, 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	// the next poll redials
	eventually(t, c.pollDone)
	c.mu.Lock()
	c.lastPoll = time.Time{}
	c.mu.Unlock()
	eventually(t, func() bool { return c.IsActive(context.Background()) })
	if !c.Connected() {
		t.Error("expected reconnection")
	}
}
