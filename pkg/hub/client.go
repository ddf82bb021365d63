package hub

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// Dashboard session timing. Clients only ever answer pings.
const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingEvery    = idleTimeout * 9 / 10
	readLimit    = 4 << 10
)

// Conn is the subset of *websocket.Conn used by a client.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client is one dashboard session. The hub queues telemetry on out and
// closes it when the client is removed. Only the writer goroutine
// started by Run writes to conn.
type Client struct {
	hub  *Hub
	conn Conn
	out  chan Message

	gone      chan struct{} // reader saw the connection end
	closeOnce sync.Once
}

// NewClient creates a client and registers it with the hub. It returns
// nil when the hub has stopped.
func NewClient(hub *Hub, conn Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		out:  make(chan Message, 64),
		gone: make(chan struct{}),
	}
	select {
	case hub.register <- c:
		return c
	case <-hub.done:
		return nil
	}
}

// Run sends greeting, then streams hub telemetry until the connection
// drops or the hub stops. When Run returns the writer has exited and
// conn is closed, so the caller may release it.
func (c *Client) Run(greeting ...Message) {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.write(greeting)
	}()

	c.read()
	close(c.gone)
	<-written

	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.close()
}

// read drains control frames until the connection fails or goes idle.
func (c *Client) read() {
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// write is the single writer. On a write failure or removal by the hub
// it closes conn to stop the reader.
func (c *Client) write(greeting []Message) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for _, m := range greeting {
		if err := c.send(m); err != nil {
			c.close()
			return
		}
	}

	for {
		select {
		case <-c.gone:
			return

		case m, ok := <-c.out:
			if !ok {
				c.frame(websocket.CloseMessage, nil)
				c.close()
				return
			}
			if err := c.send(m); err != nil {
				c.close()
				return
			}

		case <-ping.C:
			if err := c.frame(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) send(m Message) error {
	data, err := m.Bytes()
	if err != nil {
		c.hub.log.Debug("dropping unencodable message", "topic", m.Topic, "error", err)
		return nil
	}
	return c.frame(websocket.TextMessage, data)
}

func (c *Client) frame(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(kind, data)
}

func (c *Client) close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}
