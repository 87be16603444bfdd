package chat

import (
	"errors"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/google/uuid"
)

type Session struct {
	ID   string
	Conn net.Conn
	Name string
	Addr string
	Room string

	// mu serializes every write to Conn so lines from the handler and from
	// broadcasters never interleave.
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewSession(conn net.Conn) *Session {
	s := &Session{
		ID:   uuid.NewString(),
		Conn: conn,
	}
	if addr := conn.RemoteAddr(); addr != nil {
		s.Addr = addr.String()
	}
	return s
}

// Close closes the connection once; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}

type SessionState int

const (
	StateConnecting SessionState = iota
	StateAwaitingName
	StateJoined
	StateRelaying
	StateClosing
	StateClosed
)

func (st SessionState) String() string {
	switch st {
	case StateConnecting:
		return "connecting"
	case StateAwaitingName:
		return "awaiting_name"
	case StateJoined:
		return "joined"
	case StateRelaying:
		return "relaying"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var ErrRegistryClosed = errorString("registry_closed")

type errorString string

func (e errorString) Error() string { return string(e) }

// isExpectedCloseError reports errors that just mean the peer or the server
// already closed the connection.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
