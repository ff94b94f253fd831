package camilladsp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrConnectionClosed is returned by Send and Receive when no stream is open,
// and wraps the error of a stream the engine closed.
var ErrConnectionClosed = errors.New("camilladsp: connection closed")

// DefaultMaxFrameSize bounds a single reply. Configuration replies can be large.
const DefaultMaxFrameSize = 16 << 20

// Transport carries frames to and from the engine over one persistent stream.
// Receive is the only blocking call; Close must unblock it.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// ConnectionOptions tunes the websocket transport. The zero value is usable.
type ConnectionOptions struct {
	// DialTimeout bounds the websocket handshake. Zero means the caller's
	// context alone decides.
	DialTimeout time.Duration

	// MaxFrameSize is the largest reply accepted, in bytes.
	// Zero means DefaultMaxFrameSize.
	MaxFrameSize int64

	// HTTPClient is used for the websocket handshake. If nil, http.DefaultClient.
	HTTPClient *http.Client
}

// Connection is the websocket Transport to a CamillaDSP engine.
// Each websocket text message is one frame.
type Connection struct {
	url     string
	options ConnectionOptions

	mu   sync.Mutex
	conn *websocket.Conn // nil while closed
}

var _ Transport = (*Connection)(nil)

// NewConnection creates an unconnected transport for ws://host:port.
func NewConnection(host string, port int, options ConnectionOptions) *Connection {
	if options.MaxFrameSize == 0 {
		options.MaxFrameSize = DefaultMaxFrameSize
	}
	return &Connection{
		url:     fmt.Sprintf("ws://%s:%d", host, port),
		options: options,
	}
}

// URL returns the websocket address of the engine.
func (c *Connection) URL() string {
	return c.url
}

// Connect dials the engine. An existing stream is closed first, so at most one
// stream is ever open.
func (c *Connection) Connect(ctx context.Context) error {
	if c.options.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.DialTimeout)
		defer cancel()
	}

	// Drop the old stream before dialing so IsConnected never blocks on the dial.
	if err := c.Close(); err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPClient: c.options.HTTPClient,
	})
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(c.options.MaxFrameSize)

	c.mu.Lock()
	previous := c.conn
	c.conn = conn
	c.mu.Unlock()

	if previous != nil {
		_ = previous.CloseNow()
	}
	return nil
}

// IsConnected reports the last known state of the stream. It performs no I/O.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close closes the stream. It is safe to call at any time, including while
// another goroutine is blocked in Receive, which then fails.
func (c *Connection) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	// The engine may be gone already; closing is best effort.
	_ = conn.CloseNow()
	return nil
}

// Send writes one frame as a websocket text message.
func (c *Connection) Send(ctx context.Context, frame []byte) error {
	conn := c.current()
	if conn == nil {
		return ErrConnectionClosed
	}

	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		c.markClosed(conn)
		return err
	}
	return nil
}

// Receive blocks until one frame arrives, the stream fails, or ctx is done.
// A done context tears the stream down.
func (c *Connection) Receive(ctx context.Context) ([]byte, error) {
	conn := c.current()
	if conn == nil {
		return nil, ErrConnectionClosed
	}

	_, frame, err := conn.Read(ctx)
	if err != nil {
		c.markClosed(conn)
		if websocket.CloseStatus(err) != -1 {
			return nil, fmt.Errorf("%w: %w", ErrConnectionClosed, err)
		}
		return nil, err
	}
	return frame, nil
}

func (c *Connection) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// markClosed drops conn if it is still the current stream. A concurrent
// reconnect may already have replaced it.
func (c *Connection) markClosed(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	_ = conn.CloseNow()
}
