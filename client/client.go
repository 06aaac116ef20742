// Package client talks to a running bridge: one connection per request,
// one line out, one reply back.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/caffeineduck/evalbridge/protocol"
)

// ErrNoResponse means the bridge closed the connection without replying.
var ErrNoResponse = errors.New("no response from bridge")

// DefaultTimeout bounds a whole request when the context has no deadline.
const DefaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request. Zero relies on the context alone.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client sends requests to a bridge at a fixed address.
type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

func New(addr string, opts ...Option) *Client {
	c := &Client{addr: addr, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr returns the bridge address.
func (c *Client) Addr() string {
	return c.addr
}

// Send writes line on a fresh connection and returns the raw reply.
func (c *Client) Send(ctx context.Context, line string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", fmt.Errorf("connect %s: %w", c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := io.WriteString(conn, line); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("receive: %w", err)
	}
	if len(reply) == 0 {
		return "", ErrNoResponse
	}
	return string(reply), nil
}

// Do sends req and decodes the reply. An ERROR reply is a Response with
// StatusError, not a Go error.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	reply, err := c.Send(ctx, req.String())
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.Decode(reply)
}

func (c *Client) Exec(ctx context.Context, code string) (protocol.Response, error) {
	return c.Do(ctx, protocol.Exec(code))
}

func (c *Client) Import(ctx context.Context, module string) (protocol.Response, error) {
	return c.Do(ctx, protocol.Import(module))
}

func (c *Client) Ping(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.Ping())
}

// Exit asks the bridge to shut down.
func (c *Client) Exit(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.Exit())
}
