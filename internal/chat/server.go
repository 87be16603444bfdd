package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

type Server struct {
	cfg    Config
	logger *slog.Logger
	reg    *Registry
	bc     *Broadcaster

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	running  bool

	wg sync.WaitGroup
}

func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.sanitize()
	reg := NewRegistry(cfg.MaxHistory, logger)
	return &Server{
		cfg:    cfg,
		logger: logger,
		reg:    reg,
		bc:     NewBroadcaster(reg, logger),
	}
}

// Start binds the listener and accepts connections in the background until
// ctx is cancelled or Stop is called. A listen failure is returned as is.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.listener = ln
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, ln)
	}()
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("server started", "addr", ln.Addr().String(), "room", s.cfg.Room)
	return nil
}

// Stop closes the listener and every registered connection, then clears the
// registry. It does not wait for session handlers; see Wait.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, ln := s.cancel, s.listener
	s.mu.Unlock()

	s.logger.Info("shutting down")

	cancel()
	if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Warn("listener close failed", "error", err)
	}

	sessions := s.reg.CloseAll()
	for _, sess := range sessions {
		_ = sess.Close()
	}

	s.logger.Info("shutdown complete", "closed_sessions", len(sessions))
}

// Wait blocks until the accept loop and every session handler have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Registry() *Registry {
	return s.reg
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			// listener closed by Stop: normal exit
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > time.Second {
				delay = time.Second
			}
			s.logger.Warn("accept failed", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		delay = 0

		sess := NewSession(conn)
		s.logger.Info("client connected", "addr", sess.Addr, "session", sess.ID)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleSession(ctx, sess)
		}()
	}
}
