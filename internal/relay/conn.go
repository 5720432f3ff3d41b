// Package relay wraps one physical WebSocket connection with a single-writer
// send queue. Many concurrent dispatches feed frames to one connection; only
// the writer goroutine ever touches the socket, so frames are never
// interleaved and leave in enqueue order.
package relay

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/workbridge/workbridge/internal/wire"
)

// ErrConnClosed is returned by Send once the connection is closed; producers
// fail fast instead of hanging on a dead socket.
var ErrConnClosed = errors.New("connection closed")

const (
	defaultQueueSize       = 64
	defaultWriteTimeout    = 10 * time.Second
	defaultPingInterval    = 30 * time.Second
	defaultMaxMessageBytes = 4 << 20
)

// Options tune one connection. Zero values fall back to defaults.
type Options struct {
	QueueSize       int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	Logger          zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessageBytes
	}
	return o
}

// Conn is a session-tagged connection handle with its serialized sender. The
// send queue's lifetime is identical to the connection's.
type Conn struct {
	sessionID string
	tenantKey string
	ws        *websocket.Conn
	opts      Options
	logger    zerolog.Logger

	sendCh    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an upgraded WebSocket connection and starts its writer loop.
func NewConn(sessionID string, tenantKey string, ws *websocket.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		sessionID: sessionID,
		tenantKey: tenantKey,
		ws:        ws,
		opts:      opts,
		logger: opts.Logger.With().
			Str("session_id", sessionID).
			Str("workspace", tenantKey).
			Logger(),
		sendCh: make(chan []byte, opts.QueueSize),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) SessionID() string {
	return c.sessionID
}

func (c *Conn) TenantKey() string {
	return c.tenantKey
}

// Send enqueues a command frame and returns once it is handed to the writer.
func (c *Conn) Send(frame wire.CommandFrame) error {
	return c.enqueueJSON(frame)
}

// SendAck enqueues the registration acknowledgement.
func (c *Conn) SendAck(ack wire.ConnectAck) error {
	return c.enqueueJSON(ack)
}

// SendControlResponse enqueues a response on a control-plane connection.
func (c *Conn) SendControlResponse(resp wire.ControlResponse) error {
	return c.enqueueJSON(resp)
}

func (c *Conn) enqueueJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.closed:
		return ErrConnClosed
	}
}

// Close releases the writer loop and the underlying socket. Queued frames
// that have not reached the wire are dropped; callers observe ErrConnClosed
// on further sends. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// ReadResults blocks decoding worker result frames until the connection
// drops, then closes the connection and returns the read error. Frames that
// do not decode or carry no call id are logged and skipped.
func (c *Conn) ReadResults(onResult func(wire.ResultFrame)) error {
	return c.ReadMessages(func(data []byte) {
		var frame wire.ResultFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn().Err(err).Msg("discarding undecodable worker frame")
			return
		}
		if strings.TrimSpace(frame.CallID) == "" {
			c.logger.Warn().Msg("discarding worker frame without call_id")
			return
		}
		onResult(frame)
	})
}

// ReadMessages is the raw read loop shared by both planes.
func (c *Conn) ReadMessages(onMessage func(data []byte)) error {
	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	deadline := c.opts.PingInterval * 2
	_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.Close()
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
		onMessage(data)
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn().Err(err).Msg("write failed, closing connection")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
