package chat

import (
	"log/slog"
	"time"
)

type Broadcaster struct {
	reg    *Registry
	logger *slog.Logger
}

func NewBroadcaster(reg *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{reg: reg, logger: logger}
}

// Broadcast sends msg to every member of room except sender without
// storing it in history. It returns the number of successful sends.
func (b *Broadcaster) Broadcast(msg, room string, sender *Session) int {
	return b.fanOut(msg, b.reg.MembersOf(room, sender))
}

// Relay stores msg in the room history and sends it to every other member.
func (b *Broadcaster) Relay(msg, room string, sender *Session) int {
	return b.fanOut(msg, b.reg.Publish(room, msg, sender))
}

// fanOut runs with the registry lock released. A target may be closing
// concurrently; its failure is logged and the rest still get the line.
func (b *Broadcaster) fanOut(msg string, targets []*Session) int {
	start := time.Now()
	defer func() {
		BroadcastDuration.Observe(time.Since(start).Seconds())
	}()

	delivered := 0
	for _, t := range targets {
		if err := t.writeLine(msg); err != nil {
			SendFailures.Inc()
			if isExpectedCloseError(err) {
				b.logger.Debug("broadcast target gone", "session", t.ID, "addr", t.Addr)
			} else {
				b.logger.Warn("broadcast send failed", "session", t.ID, "addr", t.Addr, "error", err)
			}
			continue
		}
		delivered++
	}
	return delivered
}
