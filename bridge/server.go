// Package bridge serves the line protocol over TCP: one connection at a
// time, one request per connection, every request evaluated in the same
// execution context.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

var (
	ErrIdleTimeout  = errors.New("idle timeout waiting for connection")
	ErrStopping     = errors.New("bridge is shutting down")
	ErrNotListening = errors.New("server is not listening")
)

// Server accepts connections serially and hands each to a session.
type Server struct {
	cfg        serverConfig
	dispatcher *Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	ln      net.Listener
	tcp     *net.TCPListener
	closing atomic.Bool
}

// NewServer returns a Server evaluating requests with eval.
func NewServer(eval Evaluator, opts ...Option) *Server {
	cfg := defaultServerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		cfg:        cfg,
		dispatcher: NewDispatcher(eval, cfg.logger, cfg.output),
		logger:     cfg.logger,
	}
}

// Listen binds host:port. Port 0 picks a free port; see Addr.
func (s *Server) Listen(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tcp, _ = l.(*net.TCPListener)
	s.ln = netutil.LimitListener(l, 1)
	s.logger.Info("listening", zap.Stringer("addr", l.Addr()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts and handles connections one at a time until EXIT is
// received, Close is called, or ctx is done; all of those return nil. If
// no connection arrives within the idle timeout Serve returns
// ErrIdleTimeout. The listener is closed when Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln, tcp := s.ln, s.tcp
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	var tempDelay time.Duration
	for {
		if s.cfg.idleTimeout > 0 && tcp != nil {
			tcp.SetDeadline(time.Now().Add(s.cfg.idleTimeout))
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("no connection within idle timeout", zap.Duration("timeout", s.cfg.idleTimeout))
				return ErrIdleTimeout
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay = min(tempDelay*2, time.Second)
			}
			s.logger.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", tempDelay))
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		if s.handle(ctx, conn) {
			s.logger.Info("exit requested, shutting down")
			return nil
		}
	}
}

// ListenAndServe binds host:port and serves until shutdown.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	if err := s.Listen(host, port); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// handle runs one session to completion. A panic is logged and the
// connection dropped; the server keeps serving.
func (s *Server) handle(ctx context.Context, conn net.Conn) (stop bool) {
	logger := s.logger.With(
		zap.String("conn", uuid.NewString()),
		zap.Stringer("remote", conn.RemoteAddr()),
	)
	logger.Debug("connection accepted")

	sess := &session{
		conn:         conn,
		logger:       logger,
		readTimeout:  s.cfg.readTimeout,
		writeTimeout: s.cfg.writeTimeout,
		bufferSize:   s.cfg.readBufferSize,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panic", zap.Any("panic", r), zap.Stack("stack"))
			sess.close()
			stop = false
		}
	}()

	return sess.run(ctx, s.dispatcher)
}

// Close stops Serve and closes the listener. It is safe to call from any
// goroutine and more than once.
func (s *Server) Close() error {
	s.closing.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}
