package camilladsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/camilladsp/protocol"
)

// Config holds optional settings for a Client. The zero value is usable.
type Config struct {
	// Transport carries frames to the engine.
	// If nil, a websocket Connection to ws://host:port is used.
	Transport Transport

	// ConnectionOptions configure the default websocket transport.
	// Ignored when Transport is set.
	ConnectionOptions ConnectionOptions

	// Timeout bounds each exchange whose context has no deadline.
	// Zero means no bound. An expired exchange loses the connection.
	Timeout time.Duration

	// Logger receives connection and exchange events.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// NewCircuitBreaker creates a circuit breaker guarding Connect.
	// Called once, with the engine address, when the client is created.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(addr string) CircuitBreaker
}

// Client controls one CamillaDSP engine over one connection.
//
// Exchanges are strictly sequential: each command is sent only after the reply
// to the previous one has been received. Concurrent callers are serialized.
// The client never reconnects or retries on its own.
type Client struct {
	*Commands

	addr      string
	transport Transport
	logger    *slog.Logger
	breaker   CircuitBreaker // nil if not configured
	timeout   time.Duration

	// mu is held for a whole exchange, from the connected check to the
	// decoded reply, and during Connect.
	mu sync.Mutex

	state   atomic.Int32 // ConnState
	version atomic.Pointer[Version]

	stats *clientStatsCollector
}

var (
	_ Controller = (*Client)(nil)
	_ Executor   = (*Client)(nil)
)

// NewClient creates an unconnected client for the engine at host:port.
func NewClient(host string, port int, config Config) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("camilladsp: empty host")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("camilladsp: invalid port %d", port)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))

	transport := config.Transport
	if transport == nil {
		transport = NewConnection(host, port, config.ConnectionOptions)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := &Client{
		addr:      addr,
		transport: transport,
		logger:    logger.With("engine", addr),
		timeout:   config.Timeout,
		stats:     newClientStatsCollector(),
	}
	client.Commands = NewCommands(client)

	if config.NewCircuitBreaker != nil {
		client.breaker = config.NewCircuitBreaker(addr)
	}

	return client, nil
}

// Addr returns the engine address as host:port.
func (c *Client) Addr() string {
	return c.addr
}

// Connect opens the stream and performs the version handshake. Calling it on a
// connected client reconnects. Any failure leaves the client disconnected and
// is returned as a *ConnectionRefusedError.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(func() (bool, error) {
			return true, c.connect(ctx)
		})
	} else {
		err = c.connect(ctx)
	}

	if err != nil {
		refused := &ConnectionRefusedError{Addr: c.addr, Err: err}
		c.stats.recordError(refused)
		c.logger.Warn("camilladsp: connect failed", "error", err)
		return refused
	}

	c.stats.recordConnect()
	c.logger.Info("camilladsp: connected", "version", c.version.Load().String())
	return nil
}

// connect dials and queries the version. Must be called with mu held.
func (c *Client) connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		c.state.Store(int32(ConnDisconnected))
		return err
	}
	c.state.Store(int32(ConnIdle))

	version, err := c.queryVersion(ctx)
	if err != nil {
		_ = c.transport.Close()
		c.state.Store(int32(ConnDisconnected))
		return fmt.Errorf("handshake: %w", err)
	}

	c.version.Store(&version)
	return nil
}

// queryVersion runs GetVersion. Must be called with mu held.
func (c *Client) queryVersion(ctx context.Context) (Version, error) {
	reply, err := c.roundTrip(ctx, protocol.CmdGetVersion, nil)
	if err != nil {
		return Version{}, err
	}

	text, err := reply.Text()
	if err != nil {
		return Version{}, &ProtocolError{Command: protocol.CmdGetVersion, Message: "unexpected reply value", Err: err}
	}
	version, err := ParseVersion(text)
	if err != nil {
		return Version{}, &ProtocolError{Command: protocol.CmdGetVersion, Message: "unexpected reply value", Err: err}
	}
	return version, nil
}

// Disconnect closes the stream. It always succeeds and is safe to call when
// already disconnected. An exchange blocked on a reply fails with an *IOError.
func (c *Client) Disconnect() {
	wasConnected := c.transport.IsConnected()

	// Not under mu: a blocked exchange holds it and must be interrupted.
	_ = c.transport.Close()
	c.state.Store(int32(ConnDisconnected))

	if wasConnected {
		c.stats.recordDisconnect()
		c.logger.Info("camilladsp: disconnected")
	}
}

// IsConnected reports the last known health of the stream. It performs no I/O.
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// State returns the client's position in the request/reply cycle.
func (c *Client) State() ConnState {
	if !c.transport.IsConnected() {
		return ConnDisconnected
	}
	return ConnState(c.state.Load())
}

// Version returns the engine version read during the last successful Connect.
func (c *Client) Version() (Version, bool) {
	v := c.version.Load()
	if v == nil {
		return Version{}, false
	}
	return *v, true
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// CircuitBreakerState returns the state of the connect circuit breaker, and
// false if none is configured.
func (c *Client) CircuitBreakerState() (string, bool) {
	if c.breaker == nil {
		return "", false
	}
	return c.breaker.State().String(), true
}

// Exchange sends one command and waits for its reply. arg is nil for commands
// without an argument. The typed methods of Client are built on it; use it
// directly only for commands they do not cover.
//
// There is no cancellation once the command is sent. A ctx deadline, or a
// concurrent Disconnect, abandons the wait by closing the stream.
func (c *Client) Exchange(ctx context.Context, command string, arg any) (*protocol.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The default timeout starts once the exchange owns the connection.
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := c.roundTrip(ctx, command, arg)
	duration := time.Since(start)

	if !errors.Is(err, ErrNotConnected) {
		c.stats.recordExchange(duration)
	}
	if err != nil {
		c.stats.recordError(err)
		if KindOf(err) == KindProtocol {
			c.logger.Warn("camilladsp: protocol violation", "command", command, "error", err)
		}
		return nil, err
	}

	c.logger.Debug("camilladsp: exchange", "command", command, "duration", duration)
	return reply, nil
}

// roundTrip performs one request/reply cycle. Must be called with mu held.
func (c *Client) roundTrip(ctx context.Context, command string, arg any) (*protocol.Reply, error) {
	if !c.transport.IsConnected() {
		c.state.Store(int32(ConnDisconnected))
		return nil, ErrNotConnected
	}

	frame, err := protocol.EncodeRequest(command, arg)
	if err != nil {
		return nil, &ProtocolError{Command: command, Message: "cannot encode request", Err: err}
	}

	c.state.Store(int32(ConnAwaitingReply))

	if err := c.transport.Send(ctx, frame); err != nil {
		return nil, c.fault(command, "send", err)
	}

	raw, err := c.transport.Receive(ctx)
	if err != nil {
		return nil, c.fault(command, "receive", err)
	}

	c.state.Store(int32(ConnIdle))

	reply, err := protocol.DecodeReply(raw)
	if err != nil {
		return nil, &ProtocolError{Command: command, Message: "unparseable reply", Err: err}
	}

	if !reply.Matches(command) {
		return nil, &ProtocolError{Command: command, Message: "reply is for " + reply.Command}
	}

	if !reply.IsOK() {
		return nil, &CamillaError{Command: command, Message: reply.Message()}
	}

	return reply, nil
}

// fault closes the transport after an I/O failure.
func (c *Client) fault(command, op string, err error) error {
	_ = c.transport.Close()
	c.state.Store(int32(ConnDisconnected))
	c.logger.Warn("camilladsp: lost connection", "command", command, "op", op, "error", err)
	return &IOError{Op: op, Command: command, Err: err}
}
