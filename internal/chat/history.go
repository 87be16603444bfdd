package chat

const DefaultMaxHistory = 50

// History keeps the most recent formatted lines of every room.
// It is not safe for concurrent use; Registry guards it.
type History struct {
	max   int
	rooms map[string][]string
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &History{
		max:   max,
		rooms: make(map[string][]string),
	}
}

func (h *History) Append(room, msg string) {
	lines := h.rooms[room]
	if len(lines) >= h.max {
		// Shift in place so the backing array does not grow without bound.
		n := copy(lines, lines[len(lines)-h.max+1:])
		lines = lines[:n]
	}
	h.rooms[room] = append(lines, msg)
}

// Snapshot returns a copy of the room's lines, oldest first.
func (h *History) Snapshot(room string) []string {
	lines := h.rooms[room]
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

func (h *History) Len(room string) int {
	return len(h.rooms[room])
}
