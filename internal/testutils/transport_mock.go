package testutils

import (
	"context"
	"errors"
	"sync"
)

var ErrMockClosed = errors.New("mock transport closed")

// TransportMock is an in-memory transport. Each sent frame is answered by
// Responder; frames are recorded so tests can assert what went on the wire.
type TransportMock struct {
	// Responder produces the reply to a frame. A nil reply with a nil error
	// makes Receive block until Close.
	Responder func(frame []byte) ([]byte, error)

	// ConnectErr, if set, makes Connect fail.
	ConnectErr error

	mu        sync.Mutex
	connected bool
	closed    chan struct{}
	pending   [][]byte
	errs      []error
	sent      [][]byte
	connects  int
}

// NewTransportMock creates a disconnected mock answering with responder.
func NewTransportMock(responder func(frame []byte) ([]byte, error)) *TransportMock {
	return &TransportMock{Responder: responder}
}

// NewTransportMockReplies creates a mock answering each frame with the next
// reply, in order.
func NewTransportMockReplies(replies ...string) *TransportMock {
	var mu sync.Mutex
	return NewTransportMock(func([]byte) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return nil, nil
		}
		reply := replies[0]
		replies = replies[1:]
		return []byte(reply), nil
	})
}

func (m *TransportMock) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.ConnectErr != nil {
		m.connected = false
		return m.ConnectErr
	}
	m.connected = true
	m.closed = make(chan struct{})
	m.pending = nil
	m.errs = nil
	return nil
}

func (m *TransportMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.connected = false
		close(m.closed)
	}
	return nil
}

func (m *TransportMock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *TransportMock) Send(_ context.Context, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrMockClosed
	}
	m.sent = append(m.sent, append([]byte(nil), frame...))

	reply, err := m.Responder(frame)
	m.pending = append(m.pending, reply)
	m.errs = append(m.errs, err)
	return nil
}

func (m *TransportMock) Receive(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil, ErrMockClosed
	}
	closed := m.closed
	var reply []byte
	var err error
	if len(m.pending) > 0 {
		reply, err = m.pending[0], m.errs[0]
		m.pending, m.errs = m.pending[1:], m.errs[1:]
	}
	m.mu.Unlock()

	if err != nil {
		_ = m.Close()
		return nil, err
	}
	if reply != nil {
		return reply, nil
	}

	select {
	case <-closed:
		return nil, ErrMockClosed
	case <-ctx.Done():
		_ = m.Close()
		return nil, ctx.Err()
	}
}

// Sent returns the frames sent so far.
func (m *TransportMock) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	frames := make([]string, len(m.sent))
	for i, frame := range m.sent {
		frames[i] = string(frame)
	}
	return frames
}

// Connects returns how many times Connect was called.
func (m *TransportMock) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}
