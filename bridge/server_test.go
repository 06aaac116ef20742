package bridge_test

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/evalbridge/bridge"
	"github.com/caffeineduck/evalbridge/executor"
	"github.com/caffeineduck/evalbridge/hostfunc"
	"github.com/caffeineduck/evalbridge/language/starlark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type running struct {
	srv  *bridge.Server
	addr string
	done chan error
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		r.done <- err
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func startBridge(t *testing.T, opts ...bridge.Option) *running {
	t.Helper()

	exec, err := executor.New(hostfunc.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })

	ns, err := exec.NewNamespace(context.Background(), starlark.New())
	require.NoError(t, err)
	t.Cleanup(func() { ns.Close() })

	srv := bridge.NewServer(ns, opts...)
	require.NoError(t, srv.Listen("127.0.0.1", 0))

	r := &running{srv: srv, addr: srv.Addr().String(), done: make(chan error, 1)}
	go func() { r.done <- srv.Serve(context.Background()) }()

	t.Cleanup(func() {
		srv.Close()
		r.wait(t)
	})
	return r
}

// send performs one request the way the host-side launcher does.
func send(t *testing.T, addr, line string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, err = io.WriteString(conn, line)
	require.NoError(t, err)

	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(reply)
}

func TestSequence(t *testing.T) {
	r := startBridge(t)

	steps := []struct {
		request string
		want    string
	}{
		{"x = 5", "RESULT:ok"},
		{"result = x + 1", "RESULT:6"},
		{"PING", "PONG"},
		{"IMPORT:math", "RESULT:ok"},
		{"result = math.sqrt(16)", "RESULT:4.0"},
	}
	for _, step := range steps {
		assert.Equal(t, step.want, send(t, r.addr, step.request), "request %q", step.request)
	}

	reply := send(t, r.addr, "IMPORT:not_a_real_module_xyz")
	assert.True(t, strings.HasPrefix(reply, "ERROR:\n"), "got %q", reply)
	assert.Contains(t, reply, "not_a_real_module_xyz")

	assert.Equal(t, "RESULT:ok", send(t, r.addr, "EXIT"))
	require.NoError(t, r.wait(t))

	_, err := net.DialTimeout("tcp", r.addr, time.Second)
	assert.Error(t, err, "listener should be closed after EXIT")
}

func TestResultNotReportedUnlessBound(t *testing.T) {
	r := startBridge(t)

	assert.Equal(t, "RESULT:hello", send(t, r.addr, `result = "hello"`))
	assert.Equal(t, "RESULT:ok", send(t, r.addr, "y = 1"))
}

func TestRepeatedExecUpdatesState(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		wants []string
	}{
		{"augmented assignment", "counter += 1\nresult = counter", []string{"RESULT:1", "RESULT:2"}},
		{"reassignment", "counter = counter + 1\nresult = counter", []string{"RESULT:1", "RESULT:2"}},
		{"loop accumulator", "for i in range(3):\n    counter = counter + 1\nresult = counter", []string{"RESULT:3", "RESULT:6"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := startBridge(t)
			require.Equal(t, "RESULT:ok", send(t, r.addr, "counter = 0"))
			for _, want := range tt.wants {
				assert.Equal(t, want, send(t, r.addr, tt.code))
			}
		})
	}
}

func TestErrorThenPing(t *testing.T) {
	r := startBridge(t)

	reply := send(t, r.addr, "1 // 0")
	require.True(t, strings.HasPrefix(reply, "ERROR:\nTraceback (most recent call last):"), "got %q", reply)
	assert.Contains(t, reply, "division by zero")

	assert.Equal(t, "PONG", send(t, r.addr, "PING"))
	assert.Equal(t, "RESULT:2", send(t, r.addr, "result = 1 + 1"))
}

func TestSyntaxErrorReply(t *testing.T) {
	r := startBridge(t)

	reply := send(t, r.addr, "def (")
	assert.True(t, strings.HasPrefix(reply, "ERROR:\n"), "got %q", reply)
	assert.Contains(t, reply, "SyntaxError")
}

func TestPingIsIdempotent(t *testing.T) {
	r := startBridge(t)

	send(t, r.addr, "counter = [0]")
	for i := 0; i < 3; i++ {
		assert.Equal(t, "PONG", send(t, r.addr, "PING"))
	}
	assert.Equal(t, "RESULT:[0]", send(t, r.addr, "result = counter"))
}

func TestImportIsIdempotent(t *testing.T) {
	r := startBridge(t)

	assert.Equal(t, "RESULT:ok", send(t, r.addr, "IMPORT:math"))
	assert.Equal(t, "RESULT:ok", send(t, r.addr, "IMPORT: math "))
	assert.Equal(t, "RESULT:3.0", send(t, r.addr, "result = math.sqrt(9)"))
}

func TestPrefixPrecedence(t *testing.T) {
	r := startBridge(t)

	// Anything starting with PING is a ping, whatever follows.
	assert.Equal(t, "PONG", send(t, r.addr, "PINGPONG"))

	assert.Equal(t, "RESULT:ok", send(t, r.addr, "EXITING = 1"))
	require.NoError(t, r.wait(t))
}

func TestEmptyConnectionGetsNoReply(t *testing.T) {
	r := startBridge(t)

	conn, err := net.Dial("tcp", r.addr)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	reply, err := io.ReadAll(conn)
	conn.Close()
	require.NoError(t, err)
	assert.Empty(t, reply)

	assert.Equal(t, "PONG", send(t, r.addr, "PING"))
}

func TestReadTimeoutDropsSilentClient(t *testing.T) {
	r := startBridge(t, bridge.WithReadTimeout(50*time.Millisecond))

	conn, err := net.Dial("tcp", r.addr)
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	reply, err := io.ReadAll(conn)
	conn.Close()
	require.NoError(t, err)
	assert.Empty(t, reply)

	assert.Equal(t, "PONG", send(t, r.addr, "PING"))
}

func TestIdleTimeout(t *testing.T) {
	r := startBridge(t, bridge.WithIdleTimeout(50*time.Millisecond))

	assert.ErrorIs(t, r.wait(t), bridge.ErrIdleTimeout)
}

func TestCloseStopsServe(t *testing.T) {
	r := startBridge(t)

	assert.Equal(t, "PONG", send(t, r.addr, "PING"))
	require.NoError(t, r.srv.Close())
	assert.NoError(t, r.wait(t))
	assert.NoError(t, r.srv.Close(), "second Close should be a no-op")
}

func TestContextCancelStopsServe(t *testing.T) {
	exec, err := executor.New(nil)
	require.NoError(t, err)
	defer exec.Close()
	ns, err := exec.NewNamespace(context.Background(), starlark.New())
	require.NoError(t, err)
	defer ns.Close()

	srv := bridge.NewServer(ns)
	require.NoError(t, srv.Listen("127.0.0.1", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeWithoutListen(t *testing.T) {
	srv := bridge.NewServer(nil)
	assert.ErrorIs(t, srv.Serve(context.Background()), bridge.ErrNotListening)
	assert.Nil(t, srv.Addr())
}

func TestListenFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	srv := bridge.NewServer(nil)
	assert.Error(t, srv.Listen("127.0.0.1", port))
}

func TestOutputForwarded(t *testing.T) {
	var out strings.Builder
	r := startBridge(t, bridge.WithOutput(&out))

	assert.Equal(t, "RESULT:ok", send(t, r.addr, `print("hello from script")`))
	r.srv.Close()
	r.wait(t)
	assert.Equal(t, "hello from script\n", out.String())
}
