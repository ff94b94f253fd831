package testutils

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/pior/camilladsp/config"
	"github.com/pior/camilladsp/protocol"
)

// Fault is a misbehaviour the simulated engine applies to one command.
type Fault int

const (
	FaultNone     Fault = iota
	FaultClose          // drop the connection instead of replying
	FaultStall          // never reply
	FaultMismatch       // reply as if another command had been sent
	FaultGarbage        // reply with a frame that is not JSON
)

// Engine is an in-process CamillaDSP websocket server with in-memory state.
type Engine struct {
	server *httptest.Server

	mu               sync.Mutex
	Version          string
	State            string
	SignalRange      float64
	CaptureRate      int64
	UpdateIntervalMs int64
	RateAdjust       float64
	BufferLevel      int64
	ClippedSamples   int64
	ConfigName       string
	Config           *config.Document
	Files            map[string]string // config files readable by ReadConfigFile

	faults   map[string]Fault
	failures map[string]string
	requests []string
	conns    map[*websocket.Conn]struct{}
}

// NewEngine starts a simulated engine, stopped with t.Cleanup.
func NewEngine(t testing.TB) *Engine {
	t.Helper()

	e := &Engine{
		Version:          "1.0.3",
		State:            "RUNNING",
		SignalRange:      1.0,
		CaptureRate:      44100,
		UpdateIntervalMs: 1000,
		RateAdjust:       1.0,
		ConfigName:       "/etc/camilladsp/active.yml",
		Config:           config.New(),
		Files:            map[string]string{},
		faults:           map[string]Fault{},
		failures:         map[string]string{},
		conns:            map[*websocket.Conn]struct{}{},
	}
	e.server = httptest.NewServer(http.HandlerFunc(e.serve))
	t.Cleanup(e.Close)
	return e
}

// HostPort returns the address the engine listens on.
func (e *Engine) HostPort() (string, int) {
	host, port, _ := net.SplitHostPort(e.server.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return host, n
}

// Close drops every connection and stops the server.
func (e *Engine) Close() {
	e.DropConnections()
	e.server.Close()
}

// DropConnections closes every open connection, as an engine restart would.
func (e *Engine) DropConnections() {
	e.mu.Lock()
	conns := e.conns
	e.conns = map[*websocket.Conn]struct{}{}
	e.mu.Unlock()

	for conn := range conns {
		_ = conn.CloseNow()
	}
}

// SetFault makes the engine misbehave when it receives command.
func (e *Engine) SetFault(command string, fault Fault) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[strings.ToLower(command)] = fault
}

// FailWith makes the engine reject command with message.
func (e *Engine) FailWith(command, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[strings.ToLower(command)] = message
}

// Locked runs fn with the engine state locked. Use it to read or change the
// exported fields while clients are connected.
func (e *Engine) Locked(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Requests returns the names of the commands received so far.
func (e *Engine) Requests() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.requests...)
}

// Connections returns the number of open connections.
func (e *Engine) Connections() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

func (e *Engine) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(64 << 20)

	e.mu.Lock()
	e.conns[conn] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.conns, conn)
		e.mu.Unlock()
		_ = conn.CloseNow()
	}()

	ctx := context.Background()
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return
		}

		reply, fault := e.handle(frame)
		switch fault {
		case FaultClose:
			return
		case FaultStall:
			continue
		}

		if err := conn.Write(ctx, websocket.MessageText, reply); err != nil {
			return
		}
	}
}

// handle runs one request against the engine state and returns the reply frame.
func (e *Engine) handle(frame []byte) ([]byte, Fault) {
	command, arg, err := protocol.DecodeRequest(frame)
	if err != nil {
		return e.reply(protocol.CmdInvalid, protocol.ResultError, err.Error()), FaultNone
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests = append(e.requests, command)
	key := strings.ToLower(command)

	switch e.faults[key] {
	case FaultClose:
		return nil, FaultClose
	case FaultStall:
		return nil, FaultStall
	case FaultMismatch:
		other := protocol.CmdGetState
		if strings.EqualFold(command, other) {
			other = protocol.CmdGetVersion
		}
		return e.reply(other, protocol.ResultOK, e.State), FaultNone
	case FaultGarbage:
		return []byte("this is not json"), FaultNone
	}

	if message, ok := e.failures[key]; ok {
		return e.reply(command, protocol.ResultError, message), FaultNone
	}

	value, err := e.execute(key, arg)
	if err == errUnknownCommand {
		return e.reply(protocol.CmdInvalid, protocol.ResultError, "unknown command "+command), FaultNone
	}
	if err != nil {
		return e.reply(command, protocol.ResultError, err.Error()), FaultNone
	}
	return e.reply(command, protocol.ResultOK, value), FaultNone
}

type engineError string

func (e engineError) Error() string { return string(e) }

const errUnknownCommand = engineError("unknown command")

// execute applies a command. Must be called with mu held.
func (e *Engine) execute(command string, arg json.RawMessage) (any, error) {
	switch command {
	case "getversion":
		return e.Version, nil
	case "getstate":
		return e.State, nil
	case "getsignalrange":
		return e.SignalRange, nil
	case "getcapturerate":
		return e.CaptureRate, nil
	case "getupdateinterval":
		return e.UpdateIntervalMs, nil
	case "setupdateinterval":
		var ms int64
		if err := json.Unmarshal(arg, &ms); err != nil || ms < 0 {
			return nil, engineError("invalid update interval")
		}
		e.UpdateIntervalMs = ms
		return nil, nil
	case "getrateadjust":
		return e.RateAdjust, nil
	case "getbufferlevel":
		return e.BufferLevel, nil
	case "getclippedsamples":
		return e.ClippedSamples, nil
	case "stop":
		e.State = "INACTIVE"
		return nil, nil
	case "exit", "reload":
		return nil, nil
	case "getconfigname":
		return e.ConfigName, nil
	case "setconfigname":
		var name string
		if err := json.Unmarshal(arg, &name); err != nil {
			return nil, engineError("invalid config name")
		}
		e.ConfigName = name
		return nil, nil
	case "getconfig":
		return e.Config, nil
	case "setconfig":
		doc, err := parseDocumentArg(arg)
		if err != nil {
			return nil, err
		}
		e.Config = doc
		e.State = "RUNNING"
		return nil, nil
	case "validateconfig", "readconfig":
		return parseDocumentArg(arg)
	case "readconfigfile":
		var path string
		if err := json.Unmarshal(arg, &path); err != nil {
			return nil, engineError("invalid path")
		}
		text, ok := e.Files[path]
		if !ok {
			return nil, engineError("could not read file " + path)
		}
		return config.ParseString(text)
	default:
		return nil, errUnknownCommand
	}
}

func parseDocumentArg(arg json.RawMessage) (*config.Document, error) {
	var text string
	if err := json.Unmarshal(arg, &text); err != nil {
		return nil, engineError("config must be sent as text")
	}
	doc, err := config.ParseString(text)
	if err != nil {
		return nil, engineError("invalid config: " + err.Error())
	}
	return doc, nil
}

func (e *Engine) reply(command string, result protocol.Result, value any) []byte {
	frame, err := protocol.EncodeReply(command, result, value)
	if err != nil {
		frame, _ = protocol.EncodeReply(command, protocol.ResultError, err.Error())
	}
	return frame
}
