package chat

import (
	"log/slog"
	"sync"
)

// Registry is the set of live sessions plus the room history. One mutex
// guards both; nothing holding it performs network I/O.
type Registry struct {
	mu       sync.Mutex
	sessions []*Session
	history  *History
	closed   bool
	logger   *slog.Logger
}

func NewRegistry(maxHistory int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		history: NewHistory(maxHistory),
		logger:  logger,
	}
}

// Register adds s and returns the history of its room as of the moment it
// joined. Every later Publish to that room will include s as a target.
func (r *Registry) Register(s *Session) ([]string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if r.indexOf(s) < 0 {
		r.sessions = append(r.sessions, s)
	}
	total := len(r.sessions)
	ConnectedClients.Set(float64(total))
	backlog := r.history.Snapshot(s.Room)
	r.mu.Unlock()

	r.logger.Debug("session registered", "session", s.ID, "room", s.Room, "total", total)
	return backlog, nil
}

// Unregister removes s. It reports false when s was not registered.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	i := r.indexOf(s)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
	total := len(r.sessions)
	ConnectedClients.Set(float64(total))
	r.mu.Unlock()

	r.logger.Debug("session unregistered", "session", s.ID, "total", total)
	return true
}

// MembersOf returns the sessions in room other than exclude, in
// registration order.
func (r *Registry) MembersOf(room string, exclude *Session) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked(room, exclude)
}

// Publish appends msg to the room history and returns the targets for it
// in the same critical section, so each session sees msg exactly once:
// either in its join replay or as a live line.
func (r *Registry) Publish(room, msg string, sender *Session) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history.Append(room, msg)
	return r.membersLocked(room, sender)
}

// CloseAll refuses further registrations, clears the registry and returns
// the sessions that were in it. Closing their connections is up to the caller.
func (r *Registry) CloseAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	out := r.sessions
	r.sessions = nil
	ConnectedClients.Set(0)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) HistoryLen(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Len(room)
}

func (r *Registry) History(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Snapshot(room)
}

func (r *Registry) membersLocked(room string, exclude *Session) []*Session {
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Room == room && s != exclude {
			targets = append(targets, s)
		}
	}
	return targets
}

func (r *Registry) indexOf(s *Session) int {
	for i, c := range r.sessions {
		if c == s {
			return i
		}
	}
	return -1
}
