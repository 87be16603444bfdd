package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const namePrompt = "Enter your name: "

func (s *Server) handleSession(ctx context.Context, sess *Session) {
	log := s.logger.With("session", sess.ID, "addr", sess.Addr)
	state := StateConnecting
	setState := func(next SessionState) {
		log.Debug("session state", "from", state.String(), "to", next.String())
		state = next
	}

	// Unblocks reads and writes on this connection once the server stops,
	// whether or not the session ever got registered.
	stopClose := context.AfterFunc(ctx, func() {
		_ = sess.Close()
	})

	joined := false
	defer func() {
		stopClose()
		setState(StateClosing)
		s.reg.Unregister(sess)
		if err := sess.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn("close failed", "error", err)
		}
		if joined && ctx.Err() == nil {
			MessagesTotal.WithLabelValues("leave").Inc()
			s.bc.Broadcast(sess.Name+" left the chat", sess.Room, sess)
		}
		setState(StateClosed)
		log.Info("client disconnected", "name", sess.Name)
	}()

	reader := newLineReader(sess.Conn, s.cfg.MaxLineBytes)

	setState(StateAwaitingName)
	if err := sess.writeRaw(namePrompt); err != nil {
		log.Debug("prompt failed", "error", err)
		return
	}
	name, _, err := reader.ReadLine()
	if err != nil {
		log.Debug("disconnected before name", "partial", name, "error", err)
		return
	}
	sess.Name = name
	sess.Room = s.cfg.Room

	setState(StateJoined)
	if err := s.join(sess); err != nil {
		if errors.Is(err, ErrRegistryClosed) || isExpectedCloseError(err) {
			log.Debug("join aborted", "error", err)
		} else {
			log.Warn("join failed", "error", err)
		}
		return
	}
	joined = true
	MessagesTotal.WithLabelValues("join").Inc()
	log.Info("client joined", "name", sess.Name, "room", sess.Room)
	s.bc.Broadcast(sess.Name+" joined the chat", sess.Room, sess)

	setState(StateRelaying)
	for ctx.Err() == nil {
		text, split, err := reader.ReadLine()
		if split {
			log.Debug("long line split", "bytes", len(text))
		}
		if err != nil {
			if text != "" && errors.Is(err, io.EOF) {
				s.relay(sess, text)
			}
			if !isExpectedCloseError(err) {
				log.Warn("read failed", "error", err)
			}
			return
		}
		s.relay(sess, text)
	}
}

// join registers sess and replays its room history while holding the
// session's write lock, so live lines queue behind the replay.
func (s *Server) join(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	backlog, err := s.reg.Register(sess)
	if err != nil {
		return err
	}
	if err := sess.writeRawLocked("Joined room: " + sess.Room + "\n"); err != nil {
		return err
	}
	return sess.writeLinesLocked(backlog)
}

func (s *Server) relay(sess *Session, text string) {
	msg := FormatMessage(s.cfg.Clock(), sess.Name, text)
	MessagesTotal.WithLabelValues("chat").Inc()
	s.bc.Relay(msg, sess.Room, sess)
}

// lineReader frames a connection into newline-terminated lines. A line
// longer than max comes back in pieces of about max bytes, cut on a UTF-8
// boundary, so memory stays bounded and no byte is lost.
type lineReader struct {
	r     *bufio.Reader
	max   int
	carry []byte
}

func newLineReader(r io.Reader, max int) *lineReader {
	if max <= 0 {
		max = DefaultMaxLineBytes
	}
	return &lineReader{r: bufio.NewReader(r), max: max}
}

// ReadLine returns the next line without its terminator. The bool reports
// that the line hit the size cap and its remainder follows in the next
// call. At EOF it returns whatever partial line was read together with
// io.EOF.
func (lr *lineReader) ReadLine() (string, bool, error) {
	buf := make([]byte, 0, lr.max+1)
	buf = append(buf, lr.carry...)
	lr.carry = lr.carry[:0]

	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			line := strings.TrimRight(string(buf), "\r\n")
			if err == io.EOF {
				return line, false, io.EOF
			}
			return line, false, fmt.Errorf("read: %w", err)
		}
		if b == '\n' {
			return strings.TrimRight(string(buf), "\r"), false, nil
		}
		// A full buffer only splits once a byte other than the line
		// terminator arrives; one trailing '\r' may wait for its '\n'.
		if len(buf) > lr.max || (len(buf) == lr.max && b != '\r') {
			cut := runeBoundary(buf)
			lr.carry = append(lr.carry, buf[cut:]...)
			lr.carry = append(lr.carry, b)
			return string(buf[:cut]), true, nil
		}
		buf = append(buf, b)
	}
}

// runeBoundary returns the largest prefix length of b that does not end in
// the middle of a UTF-8 sequence. Invalid input is cut at len(b).
func runeBoundary(b []byte) int {
	for i := len(b); i > 0 && i > len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i-1]) {
			continue
		}
		if utf8.FullRune(b[i-1:]) || i-1 == 0 {
			return len(b)
		}
		return i - 1
	}
	return len(b)
}
