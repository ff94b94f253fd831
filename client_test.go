package camilladsp_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/camilladsp"
	"github.com/pior/camilladsp/config"
	"github.com/pior/camilladsp/internal/testutils"
	"github.com/pior/camilladsp/protocol"
)

var quietLogger = slog.New(slog.DiscardHandler)

// newEngineClient starts a simulated engine and returns a client connected to it.
func newEngineClient(t *testing.T, cfg camilladsp.Config) (*testutils.Engine, *camilladsp.Client) {
	t.Helper()

	engine := testutils.NewEngine(t)
	host, port := engine.HostPort()

	if cfg.Logger == nil {
		cfg.Logger = quietLogger
	}
	client, err := camilladsp.NewClient(host, port, cfg)
	require.NoError(t, err)
	t.Cleanup(client.Disconnect)

	require.NoError(t, client.Connect(context.Background()))
	return engine, client
}

// newMockClient returns a client over mock, connected if the mock accepts it.
// The handshake reply is answered by the mock like any other frame.
func newMockClient(t *testing.T, mock *testutils.TransportMock) *camilladsp.Client {
	t.Helper()

	client, err := camilladsp.NewClient("127.0.0.1", 1234, camilladsp.Config{
		Transport: mock,
		Logger:    quietLogger,
	})
	require.NoError(t, err)
	t.Cleanup(client.Disconnect)
	return client
}

// versionThen answers the handshake, then delegates to next.
func versionThen(next func(frame []byte) ([]byte, error)) func([]byte) ([]byte, error) {
	return func(frame []byte) ([]byte, error) {
		if string(frame) == `"GetVersion"` {
			return []byte(`{"GetVersion":{"result":"Ok","value":"1.0.3"}}`), nil
		}
		return next(frame)
	}
}

func TestNewClient_InvalidAddress(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
	}{
		{"empty host", "", 1234},
		{"zero port", "127.0.0.1", 0},
		{"negative port", "127.0.0.1", -1},
		{"port too large", "127.0.0.1", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := camilladsp.NewClient(tt.host, tt.port, camilladsp.Config{})
			require.Error(t, err)
		})
	}
}

func TestNewClient_Addr(t *testing.T) {
	client, err := camilladsp.NewClient("::1", 1234, camilladsp.Config{})
	require.NoError(t, err)
	assert.Equal(t, "[::1]:1234", client.Addr())
	assert.False(t, client.IsConnected())
	assert.Equal(t, camilladsp.ConnDisconnected, client.State())

	_, ok := client.Version()
	assert.False(t, ok)
}

func TestClient_Connect(t *testing.T) {
	engine, client := newEngineClient(t, camilladsp.Config{})

	assert.True(t, client.IsConnected())
	assert.Equal(t, camilladsp.ConnIdle, client.State())
	assert.Equal(t, []string{protocol.CmdGetVersion}, engine.Requests())

	version, ok := client.Version()
	require.True(t, ok)
	assert.Equal(t, camilladsp.Version{Major: 1, Minor: 0, Patch: 3}, version)

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.Connects)
	assert.Equal(t, uint64(0), stats.ConnectFailures)
}

func TestClient_ConnectRefused(t *testing.T) {
	engine := testutils.NewEngine(t)
	host, port := engine.HostPort()
	engine.Close()

	client, err := camilladsp.NewClient(host, port, camilladsp.Config{Logger: quietLogger})
	require.NoError(t, err)

	err = client.Connect(context.Background())

	var refused *camilladsp.ConnectionRefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, client.Addr(), refused.Addr)
	assert.Equal(t, camilladsp.KindConnectionRefused, camilladsp.KindOf(err))
	assert.False(t, client.IsConnected())
	assert.Equal(t, uint64(1), client.Stats().ConnectFailures)
}

func TestClient_ConnectHandshakeRejected(t *testing.T) {
	engine := testutils.NewEngine(t)
	engine.FailWith(protocol.CmdGetVersion, "not ready")
	host, port := engine.HostPort()

	client, err := camilladsp.NewClient(host, port, camilladsp.Config{Logger: quietLogger})
	require.NoError(t, err)

	err = client.Connect(context.Background())

	var refused *camilladsp.ConnectionRefusedError
	require.ErrorAs(t, err, &refused)
	assert.False(t, client.IsConnected())

	_, ok := client.Version()
	assert.False(t, ok)
}

func TestClient_ConnectTransportError(t *testing.T) {
	mock := testutils.NewTransportMockReplies()
	mock.ConnectErr = errors.New("dial failed")
	client := newMockClient(t, mock)

	err := client.Connect(context.Background())

	var refused *camilladsp.ConnectionRefusedError
	require.ErrorAs(t, err, &refused)
	assert.ErrorIs(t, err, mock.ConnectErr)
	assert.Empty(t, mock.Sent())
}

func TestClient_NotConnectedDoesNoIO(t *testing.T) {
	mock := testutils.NewTransportMockReplies()
	client := newMockClient(t, mock)
	ctx := context.Background()

	_, err := client.GetState(ctx)
	require.ErrorIs(t, err, camilladsp.ErrNotConnected)
	assert.Equal(t, camilladsp.KindNotConnected, camilladsp.KindOf(err))

	err = client.SetUpdateInterval(ctx, time.Second)
	require.ErrorIs(t, err, camilladsp.ErrNotConnected)

	_, err = client.GetConfig(ctx)
	require.ErrorIs(t, err, camilladsp.ErrNotConnected)

	assert.Empty(t, mock.Sent())
	assert.Equal(t, 0, mock.Connects())

	stats := client.Stats()
	assert.Equal(t, uint64(3), stats.NotConnected)
	assert.Equal(t, uint64(0), stats.Exchanges)
}

func TestClient_NotConnectedAfterDisconnect(t *testing.T) {
	engine, client := newEngineClient(t, camilladsp.Config{})

	client.Disconnect()
	assert.False(t, client.IsConnected())

	_, err := client.GetState(context.Background())
	require.ErrorIs(t, err, camilladsp.ErrNotConnected)
	assert.Equal(t, []string{protocol.CmdGetVersion}, engine.Requests())
}

func TestClient_DisconnectIsIdempotent(t *testing.T) {
	_, client := newEngineClient(t, camilladsp.Config{})

	client.Disconnect()
	client.Disconnect()

	assert.False(t, client.IsConnected())
	assert.Equal(t, uint64(1), client.Stats().Disconnects)
}

func TestClient_MismatchedReply(t *testing.T) {
	engine, client := newEngineClient(t, camilladsp.Config{})
	ctx := context.Background()

	engine.SetFault(protocol.CmdGetConfigName, testutils.FaultMismatch)

	_, err := client.GetConfigName(ctx)

	var protoErr *camilladsp.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, protocol.CmdGetConfigName, protoErr.Command)
	assert.False(t, camilladsp.ShouldReconnect(err))

	// The connection survives a protocol violation.
	assert.True(t, client.IsConnected())
	_, err = client.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), client.Stats().ProtocolErrors)
}

func TestClient_GarbageReply(t *testing.T) {
	engine, client := newEngineClient(t, camilladsp.Config{})
	ctx := context.Background()

	engine.SetFault(protocol.CmdGetState, testutils.FaultGarbage)

	_, err := client.GetState(ctx)

	var parseErr *protocol.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, camilladsp.KindProtocol, camilladsp.KindOf(err))
	assert.True(t, client.IsConnected())

	_, err = client.GetUpdateInterval(ctx)
	require.NoError(t, err)
}

func TestClient_CaseInsensitiveReplyName(t *testing.T) {
	mock := testutils.NewTransportMock(versionThen(func([]byte) ([]byte, error) {
		return []byte(`{"getstate":{"result":"ok","value":"paused"}}`), nil
	}))
	client := newMockClient(t, mock)
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	state, err := client.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, camilladsp.StatePaused, state)
}

func TestClient_CamillaErrorIsVerbatim(t *testing.T) {
	const message = "invalid sample rate"

	doc, err := config.ParseString("devices:\n  samplerate: 1\n")
	require.NoError(t, err)

	tests := []struct {
		command string
		call    func(ctx context.Context, c *camilladsp.Client) error
	}{
		{protocol.CmdGetVersion, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetVersion(ctx)
			return err
		}},
		{protocol.CmdGetState, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetState(ctx)
			return err
		}},
		{protocol.CmdGetUpdateInterval, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetUpdateInterval(ctx)
			return err
		}},
		{protocol.CmdGetBufferLevel, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetBufferLevel(ctx)
			return err
		}},
		{protocol.CmdGetClippedSamples, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetClippedSamples(ctx)
			return err
		}},
		{protocol.CmdExit, func(ctx context.Context, c *camilladsp.Client) error {
			return c.Exit(ctx)
		}},
		{protocol.CmdGetConfigName, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetConfigName(ctx)
			return err
		}},
		{protocol.CmdGetConfig, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetConfig(ctx)
			return err
		}},
		{protocol.CmdGetConfig, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetConfigRaw(ctx)
			return err
		}},
		{protocol.CmdReadConfigFile, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.ReadConfigFile(ctx, "/etc/camilladsp/day.yml")
			return err
		}},
		{protocol.CmdGetSignalRange, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetSignalRangeDB(ctx)
			return err
		}},
		{protocol.CmdGetCaptureRate, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetCaptureRate(ctx)
			return err
		}},
		{protocol.CmdSetUpdateInterval, func(ctx context.Context, c *camilladsp.Client) error {
			return c.SetUpdateInterval(ctx, 100*time.Millisecond)
		}},
		{protocol.CmdGetRateAdjust, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.GetRateAdjust(ctx)
			return err
		}},
		{protocol.CmdStop, func(ctx context.Context, c *camilladsp.Client) error {
			return c.Stop(ctx)
		}},
		{protocol.CmdReload, func(ctx context.Context, c *camilladsp.Client) error {
			return c.Reload(ctx)
		}},
		{protocol.CmdSetConfigName, func(ctx context.Context, c *camilladsp.Client) error {
			return c.SetConfigName(ctx, "/tmp/other.yml")
		}},
		{protocol.CmdSetConfig, func(ctx context.Context, c *camilladsp.Client) error {
			return c.SetConfig(ctx, doc)
		}},
		{protocol.CmdSetConfig, func(ctx context.Context, c *camilladsp.Client) error {
			return c.SetConfigRaw(ctx, doc.String())
		}},
		{protocol.CmdValidateConfig, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.ValidateConfig(ctx, doc)
			return err
		}},
		{protocol.CmdReadConfig, func(ctx context.Context, c *camilladsp.Client) error {
			_, err := c.ReadConfig(ctx, doc.String())
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			engine, client := newEngineClient(t, camilladsp.Config{})
			engine.FailWith(tt.command, message)

			err := tt.call(context.Background(), client)

			var camillaErr *camilladsp.CamillaError
			require.ErrorAs(t, err, &camillaErr)
			assert.Equal(t, message, camillaErr.Message)
			assert.Equal(t, message, err.Error())
			assert.Equal(t, tt.command, camillaErr.Command)
			assert.True(t, client.IsConnected())
		})
	}
}

func TestClient_ErrorWithoutMessage(t *testing.T) {
	mock := testutils.NewTransportMock(versionThen(func([]byte) ([]byte, error) {
		return []byte(`{"Exit":{"result":"Error"}}`), nil
	}))
	client := newMockClient(t, mock)
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	err := client.Exit(ctx)

	var camillaErr *camilladsp.CamillaError
	require.ErrorAs(t, err, &camillaErr)
	assert.Equal(t, protocol.DefaultErrorMessage, camillaErr.Message)
}

func TestClient_UnknownCommand(t *testing.T) {
	_, client := newEngineClient(t, camilladsp.Config{})
	ctx := context.Background()

	// The engine answers with an "Invalid" reply, which does not answer the request.
	_, err := client.Exchange(ctx, "GetFavoriteColor", nil)

	var protoErr *camilladsp.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "GetFavoriteColor", protoErr.Command)
	assert.Equal(t, camilladsp.KindProtocol, camilladsp.KindOf(err))

	assert.True(t, client.IsConnected())
	_, err = client.GetState(ctx)
	require.NoError(t, err)
}

func TestClient_InvalidReplyToKnownCommand(t *testing.T) {
	mock := testutils.NewTransportMock(versionThen(func([]byte) ([]byte, error) {
		return []byte(`{"Invalid":{"result":"Error","value":"badstuff"}}`), nil
	}))
	client := newMockClient(t, mock)
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	_, err := client.GetState(ctx)

	var protoErr *camilladsp.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	var camillaErr *camilladsp.CamillaError
	assert.False(t, errors.As(err, &camillaErr))
	assert.True(t, client.IsConnected())
}

func TestClient_PeerClosesDuringReceive(t *testing.T) {
	engine, client := newEngineClient(t, camilladsp.Config{})
	ctx := context.Background()

	engine.SetFault(protocol.CmdGetState, testutils.FaultClose)

	_, err := client.GetState(ctx)

	var ioErr *camilladsp.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "receive", ioErr.Op)
	assert.Equal(t, protocol.CmdGetState, ioErr.Command)
	assert.True(t, camilladsp.ShouldReconnect(err))
	assert.False(t, client.IsConnected())
	assert.Equal(t, camilladsp.ConnDisconnected, client.State())

	// No reconnection happens behind the caller's back.
	_, err = client.GetState(ctx)
	require.ErrorIs(t, err, camilladsp.ErrNotConnected)
	assert.Equal(t, uint64(1), client.Stats().IOErrors)
}

func TestClient_ReconnectAfterFailure(t *testing.T) {
	engine, client := newEngineClient(t, camilladsp.Config{})
	ctx := context.Background()

	engine.DropConnections()
	_, err := client.GetState(ctx)
	require.Equal(t, camilladsp.KindIO, camilladsp.KindOf(err))

	require.NoError(t, client.Connect(ctx))
	state, err := client.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, camilladsp.StateRunning, state)
	assert.Equal(t, uint64(2), client.Stats().Connects)
}

func TestClient_ConnectWhileConnectedReplacesStream(t *testing.T) {
	engine, client := newEngineClient(t, camilladsp.Config{})
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))

	require.Eventually(t, func() bool {
		return engine.Connections() == 1
	}, time.Second, 10*time.Millisecond)

	_, err := client.GetState(ctx)
	require.NoError(t, err)
}

func TestClient_DisconnectAbortsBlockedExchange(t *testing.T) {
	engine, client := newEngineClient(t, camilladsp.Config{})
	engine.SetFault(protocol.CmdGetState, testutils.FaultStall)

	result := make(chan error, 1)
	go func() {
		_, err := client.GetState(context.Background())
		result <- err
	}()

	require.Eventually(t, func() bool {
		return client.State() == camilladsp.ConnAwaitingReply
	}, time.Second, 5*time.Millisecond)

	client.Disconnect()

	select {
	case err := <-result:
		var ioErr *camilladsp.IOError
		require.ErrorAs(t, err, &ioErr)
	case <-time.After(5 * time.Second):
		t.Fatal("exchange was not aborted by Disconnect")
	}
	assert.False(t, client.IsConnected())
}

func TestClient_ExchangesAreSequential(t *testing.T) {
	engine, client := newEngineClient(t, camilladsp.Config{})
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			interval := time.Duration(i+1) * 10 * time.Millisecond
			if err := client.SetUpdateInterval(ctx, interval); err != nil {
				errs <- err
				return
			}
			if _, err := client.GetUpdateInterval(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, engine.Requests(), 1+2*workers)
	assert.Equal(t, uint64(2*workers), client.Stats().Exchanges)
}

func TestClient_RequestFrames(t *testing.T) {
	mock := testutils.NewTransportMock(versionThen(func(frame []byte) ([]byte, error) {
		command, _, err := protocol.DecodeRequest(frame)
		if err != nil {
			return nil, err
		}
		return protocol.EncodeReply(command, protocol.ResultOK, nil)
	}))
	client := newMockClient(t, mock)
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	require.NoError(t, client.SetUpdateInterval(ctx, 500*time.Millisecond))
	require.NoError(t, client.SetConfigName(ctx, "/etc/camilladsp/new.yml"))
	require.NoError(t, client.Stop(ctx))

	assert.Equal(t, []string{
		`"GetVersion"`,
		`{"SetUpdateInterval":500}`,
		`{"SetConfigName":"/etc/camilladsp/new.yml"}`,
		`"Stop"`,
	}, mock.Sent())
}

func TestClient_UpdateIntervalRoundsUpToMilliseconds(t *testing.T) {
	mock := testutils.NewTransportMock(versionThen(func([]byte) ([]byte, error) {
		return protocol.EncodeReply(protocol.CmdSetUpdateInterval, protocol.ResultOK, nil)
	}))
	client := newMockClient(t, mock)
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	require.NoError(t, client.SetUpdateInterval(ctx, 500*time.Microsecond))
	require.NoError(t, client.SetUpdateInterval(ctx, 1500*time.Microsecond))
	require.NoError(t, client.SetUpdateInterval(ctx, 2*time.Millisecond))
	require.NoError(t, client.SetUpdateInterval(ctx, 0))

	assert.Equal(t, []string{
		`"GetVersion"`,
		`{"SetUpdateInterval":1}`,
		`{"SetUpdateInterval":2}`,
		`{"SetUpdateInterval":2}`,
		`{"SetUpdateInterval":0}`,
	}, mock.Sent())
}

func TestClient_TransportReceiveError(t *testing.T) {
	mock := testutils.NewTransportMock(versionThen(func([]byte) ([]byte, error) {
		return nil, errors.New("connection reset by peer")
	}))
	client := newMockClient(t, mock)
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	_, err := client.GetBufferLevel(ctx)

	var ioErr *camilladsp.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.EqualError(t, ioErr.Err, "connection reset by peer")
	assert.False(t, client.IsConnected())
}
