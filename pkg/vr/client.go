// Package vr connects to the VR headset over a WebSocket. It streams
// the operator's gaze rays, answers the tracking queries needed by the
// gaze retargeter and forwards the eye image pose back to the headset.
package vr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/protocol"
)

var (
	_ gaze.VRDevice  = (*Client)(nil)
	_ gaze.AngleSink = (*Client)(nil)
)

var (
	// ErrNotConnected is returned when the headset link is down.
	ErrNotConnected = errors.New("vr: not connected")

	// ErrQueryTimeout is returned when a query gets no reply in time.
	ErrQueryTimeout = errors.New("vr: query timed out")
)

// Config holds the headset link parameters.
type Config struct {
	URL              string        `yaml:"url" json:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	QueryTimeout     time.Duration `yaml:"query_timeout" json:"query_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// DefaultConfig returns the default headset link configuration.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8765/teleop",
		HandshakeTimeout: 5 * time.Second,
		QueryTimeout:     200 * time.Millisecond,
		PollInterval:     time.Second,
	}
}

// Client is the headset connection.
type Client struct {
	cfg    Config
	log    *slog.Logger
	dialer websocket.Dialer
	now    func() time.Time

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	pending   map[string]chan *protocol.ReplyData
	target    gaze.Target
	active    bool
	ipd       float64
	eyesZ     float64
	lastPoll  time.Time
	polling   bool
	gazeCount uint64
}

// New creates an unconnected client. The first IsActive call starts
// dialing in the background.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		log:     logger,
		dialer:  websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		now:     time.Now,
		pending: make(map[string]chan *protocol.ReplyData),
	}
}

// Dial creates a client and connects it.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	c := New(cfg, logger)
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("vr connect %s: %w", c.cfg.URL, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("vr headset connected", "url", c.cfg.URL)
	go c.readLoop(conn)
	return nil
}

// Connected reports whether the link is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.dropConnection(conn, err)
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.log.Debug("dropping malformed vr message", "error", err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeGaze:
		g, err := msg.GetGazeData()
		if err != nil {
			c.log.Debug("bad gaze payload", "error", err)
			return
		}
		c.mu.Lock()
		c.gazeCount++
		if !g.Valid {
			c.target.Set = false
			if c.active {
				c.active = false
				c.log.Info("vr eye tracking lost")
			}
		} else {
			c.target = gaze.Target{Left: toRay(g.Left), Right: toRay(g.Right), Set: true}
		}
		c.mu.Unlock()

	case protocol.TypeReply:
		r, err := msg.GetReplyData()
		if err != nil {
			c.log.Debug("bad reply payload", "error", err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[r.ID]
		delete(c.pending, r.ID)
		c.mu.Unlock()
		if ok {
			ch <- r
		}

	case protocol.TypePing:
		p, err := msg.GetPingData()
		if err != nil {
			return
		}
		pong, err := protocol.NewPongMessage(p.ID, p.Timestamp, c.now().UnixMilli())
		if err == nil {
			c.send(pong)
		}
	}
}

func (c *Client) dropConnection(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	conn.Close()
	c.conn = nil
	c.target = gaze.Target{}
	if c.active {
		c.log.Warn("vr link lost, tracking inactive", "error", err)
	}
	c.active = false
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func toRay(r protocol.RayData) gaze.Ray {
	return gaze.Ray{
		Origin:    r3.Vec{X: r.Origin[0], Y: r.Origin[1], Z: r.Origin[2]},
		Direction: r3.Vec{X: r.Direction[0], Y: r.Direction[1], Z: r.Direction[2]},
	}
}

func (c *Client) send(msg *protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// query sends a request and waits for the matching reply.
func (c *Client) query(ctx context.Context, method string) (*protocol.ReplyData, error) {
	id := uuid.NewString()
	ch := make(chan *protocol.ReplyData, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg, err := protocol.NewQueryMessage(id, method)
	if err != nil {
		return nil, err
	}
	if err := c.send(msg); err != nil {
		return nil, fmt.Errorf("vr query %s: %w", method, err)
	}

	timer := time.NewTimer(c.cfg.QueryTimeout)
	defer timer.Stop()
	select {
	case r, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("vr query %s: %w", method, ErrNotConnected)
		}
		return r, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrQueryTimeout, method)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) queryBool(ctx context.Context, method string) (bool, error) {
	r, err := c.query(ctx, method)
	if err != nil {
		return false, err
	}
	return r.Bool()
}

func (c *Client) queryFloat(ctx context.Context, method string) (float64, error) {
	r, err := c.query(ctx, method)
	if err != nil {
		return 0, err
	}
	return r.Float()
}

// IsActive reports whether both eyes are tracked. It never blocks.
// While inactive it starts a background poll at most once per
// PollInterval; the poll redials a lost link and reads the eye geometry
// once both eyes are tracked.
func (c *Client) IsActive(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active || c.polling {
		return c.active
	}
	now := c.now()
	if !c.lastPoll.IsZero() && now.Sub(c.lastPoll) < c.cfg.PollInterval {
		return false
	}
	c.lastPoll = now
	c.polling = true

	pollCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.pollTimeout())
	go func() {
		defer cancel()
		c.poll(pollCtx)
	}()
	return false
}

// pollTimeout bounds one poll: a dial and the four tracking queries.
func (c *Client) pollTimeout() time.Duration {
	return c.cfg.HandshakeTimeout + 4*c.cfg.QueryTimeout
}

func (c *Client) poll(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.polling = false
		c.mu.Unlock()
	}()

	if !c.Connected() {
		if err := c.connect(ctx); err != nil {
			c.log.Debug("vr headset unreachable", "error", err)
			return
		}
	}
	if err := c.readTracking(ctx); err != nil {
		c.log.Debug("vr tracking query failed", "error", err)
	}
}

func (c *Client) readTracking(ctx context.Context) error {
	left, err := c.queryBool(ctx, protocol.MethodIsLeftEyeActive)
	if err != nil {
		return err
	}
	right, err := c.queryBool(ctx, protocol.MethodIsRightEyeActive)
	if err != nil {
		return err
	}
	if !left || !right {
		return nil
	}
	ipd, err := c.queryFloat(ctx, protocol.MethodGetInterCameraDistance)
	if err != nil {
		return err
	}
	z, err := c.queryFloat(ctx, protocol.MethodGetEyesZPosition)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ipd, c.eyesZ = ipd, z
	c.active = true
	c.mu.Unlock()
	c.log.Info("vr eye tracking active", "ipd", ipd, "eyes_z", z)
	return nil
}

// Geometry returns the interocular distance and image depth read at
// the last activation.
func (c *Client) Geometry() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ipd, c.eyesZ
}

// Target returns the latest gaze rays.
func (c *Client) Target() gaze.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// GazeCount returns the number of gaze messages received.
func (c *Client) GazeCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gazeCount
}

// SendEyeAngles forwards one eye's image pose to the headset.
func (c *Client) SendEyeAngles(side gaze.Side, azimuth, elevation float64) error {
	msg, err := protocol.NewEyeAnglesMessage(side.String(), azimuth, elevation)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Close closes the link.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.dropConnection(conn, nil)
	return nil
}
