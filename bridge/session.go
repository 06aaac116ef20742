package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// session owns one accepted connection: one read, one dispatch, one write,
// then close.
type session struct {
	conn         net.Conn
	logger       *zap.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
	bufferSize   int
	closeOnce    sync.Once
}

// run reports whether the request was EXIT.
func (s *session) run(ctx context.Context, d *Dispatcher) bool {
	defer s.close()

	text, ok := s.receive()
	if !ok {
		return false
	}

	resp, stop := d.Dispatch(ctx, text)
	s.send(resp.Encode())
	return stop
}

// receive performs a single read. No bytes means no request.
func (s *session) receive() (string, bool) {
	if s.readTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}

	buf := make([]byte, s.bufferSize)
	n, err := s.conn.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			s.logger.Debug("receive failed", zap.Error(err))
		} else {
			s.logger.Debug("empty request")
		}
		return "", false
	}

	return strings.ToValidUTF8(string(buf[:n]), "\uFFFD"), true
}

// send writes the encoded response. Failures are logged, not returned;
// the client may already be gone.
func (s *session) send(encoded string) {
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := io.WriteString(s.conn, encoded); err != nil {
		s.logger.Warn("send failed", zap.Error(err))
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("close failed", zap.Error(err))
		}
		s.logger.Debug("connection closed")
	})
}
