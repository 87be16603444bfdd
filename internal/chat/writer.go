package chat

import (
	"fmt"
	"io"
)

// writeRaw writes b to the session's connection. Callers that already hold
// s.mu use writeRawLocked.
func (s *Session) writeRaw(b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRawLocked(b)
}

func (s *Session) writeRawLocked(b string) error {
	if _, err := io.WriteString(s.Conn, b); err != nil {
		return fmt.Errorf("write to %s: %w", s.Addr, err)
	}
	return nil
}

// writeLine sends line followed by the line delimiter as one write.
func (s *Session) writeLine(line string) error {
	return s.writeRaw(line + "\n")
}

func (s *Session) writeLinesLocked(lines []string) error {
	for _, line := range lines {
		if err := s.writeRawLocked(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}
