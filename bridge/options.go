package bridge

import (
	"io"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 5000
	DefaultIdleTimeout    = 600 * time.Second
	DefaultReadTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 60 * time.Second
	DefaultReadBufferSize = 65536
)

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	idleTimeout    time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	readBufferSize int
	logger         *zap.Logger
	output         io.Writer
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		idleTimeout:    DefaultIdleTimeout,
		readTimeout:    DefaultReadTimeout,
		writeTimeout:   DefaultWriteTimeout,
		readBufferSize: DefaultReadBufferSize,
		logger:         zap.NewNop(),
		output:         io.Discard,
	}
}

// WithIdleTimeout bounds how long Serve waits for the next connection.
// Zero waits forever.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *serverConfig) {
		c.idleTimeout = d
	}
}

// WithReadTimeout bounds how long a session waits for its request. Zero
// waits forever.
func WithReadTimeout(d time.Duration) Option {
	return func(c *serverConfig) {
		c.readTimeout = d
	}
}

// WithWriteTimeout bounds how long writing the response may block on a
// client that does not read. Zero waits forever.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *serverConfig) {
		c.writeTimeout = d
	}
}

// WithReadBufferSize sets the most bytes read for one request. Anything a
// client sends beyond it is ignored.
func WithReadBufferSize(n int) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.readBufferSize = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOutput receives anything evaluated code prints.
func WithOutput(w io.Writer) Option {
	return func(c *serverConfig) {
		if w != nil {
			c.output = w
		}
	}
}
