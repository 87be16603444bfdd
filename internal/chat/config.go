package chat

import "time"

const (
	DefaultRoom         = "general"
	DefaultMaxLineBytes = 1024
)

type Config struct {
	Addr         string
	Room         string
	MaxHistory   int
	MaxLineBytes int
	Clock        Clock
}

func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		Room:         DefaultRoom,
		MaxHistory:   DefaultMaxHistory,
		MaxLineBytes: DefaultMaxLineBytes,
		Clock:        time.Now,
	}
}

// sanitize fills zero values with defaults.
func (c Config) sanitize() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Room == "" {
		c.Room = def.Room
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = def.MaxHistory
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = def.MaxLineBytes
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	return c
}
