package bridge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/caffeineduck/evalbridge/executor"
	"github.com/caffeineduck/evalbridge/protocol"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeEvaluator struct {
	execs   []string
	imports []string
	result  executor.Result
	panics  bool
}

func (f *fakeEvaluator) Exec(ctx context.Context, code string) executor.Result {
	if f.panics {
		panic("evaluator exploded")
	}
	f.execs = append(f.execs, code)
	return f.result
}

func (f *fakeEvaluator) Import(ctx context.Context, module string) executor.Result {
	f.imports = append(f.imports, module)
	return f.result
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		result   executor.Result
		want     protocol.Response
		wantStop bool
	}{
		{"exit", "EXIT", executor.Result{}, protocol.Ack(), true},
		{"ping", "PING", executor.Result{}, protocol.PongResponse(), false},
		{"import ok", "IMPORT:math", executor.Result{}, protocol.Ack(), false},
		{
			"import failure", "IMPORT:nope",
			executor.Result{Error: executor.NewImportError("nope", nil)},
			protocol.Failure(`ImportError: cannot import "nope": module not found`), false,
		},
		{"exec unbound", "x = 1", executor.Result{}, protocol.Ack(), false},
		{"exec bound", "result = 6", executor.Result{Value: "6", Bound: true}, protocol.Result("6"), false},
		{
			"exec failure", "boom",
			executor.Result{Error: &executor.EvalError{Kind: executor.KindRuntime, Message: "boom", Trace: "Traceback: boom"}},
			protocol.Failure("Traceback: boom"), false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(&fakeEvaluator{result: tt.result}, nil, nil)
			got, stop := d.Dispatch(context.Background(), tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}
			if stop != tt.wantStop {
				t.Errorf("stop = %v, want %v", stop, tt.wantStop)
			}
		})
	}
}

func TestDispatchRoutesPayload(t *testing.T) {
	eval := &fakeEvaluator{}
	d := NewDispatcher(eval, nil, nil)

	d.Dispatch(context.Background(), "IMPORT:  json ")
	d.Dispatch(context.Background(), "PING")
	d.Dispatch(context.Background(), "a = 1\nb = 2")

	if diff := cmp.Diff([]string{"json"}, eval.imports); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a = 1\nb = 2"}, eval.execs); diff != "" {
		t.Errorf("execs mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := NewDispatcher(&fakeEvaluator{panics: true}, nil, nil)

	resp, stop := d.Dispatch(context.Background(), "x = 1")
	if resp.Status != protocol.StatusError || stop {
		t.Fatalf("expected error response, got %+v stop=%v", resp, stop)
	}
	if !strings.HasPrefix(resp.Payload, "panic: evaluator exploded") {
		t.Errorf("unexpected payload %q", resp.Payload)
	}
	if d.State() != StateRunning {
		t.Errorf("state = %s, want running", d.State())
	}
}

func TestDispatchAfterExitRefused(t *testing.T) {
	eval := &fakeEvaluator{}
	d := NewDispatcher(eval, nil, nil)

	d.Dispatch(context.Background(), "EXIT")
	if d.State() != StateStopping {
		t.Fatalf("state = %s, want stopping", d.State())
	}

	resp, stop := d.Dispatch(context.Background(), "x = 1")
	if resp.Status != protocol.StatusError || stop {
		t.Errorf("expected refusal, got %+v stop=%v", resp, stop)
	}
	if resp.Payload != ErrStopping.Error() {
		t.Errorf("unexpected payload %q", resp.Payload)
	}
	if len(eval.execs) != 0 {
		t.Error("namespace touched after EXIT")
	}
}

func TestDispatchWritesOutput(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(&fakeEvaluator{result: executor.Result{Output: "printed\n"}}, nil, &out)

	d.Dispatch(context.Background(), "print('printed')")
	if out.String() != "printed\n" {
		t.Errorf("output = %q", out.String())
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("stdout closed")
}

func TestDispatchOutputWriteFailureLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	eval := &fakeEvaluator{result: executor.Result{Output: "printed\n", Value: "1", Bound: true}}
	d := NewDispatcher(eval, zap.New(core), brokenWriter{})

	resp, _ := d.Dispatch(context.Background(), "print('printed')")
	if resp != protocol.Result("1") {
		t.Errorf("write failure changed the reply: %+v", resp)
	}

	entries := logs.FilterMessage("forward output failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["error"]; got != "stdout closed" {
		t.Errorf("logged error = %v", got)
	}
}

func TestStateString(t *testing.T) {
	if StateRunning.String() != "running" || StateStopping.String() != "stopping" {
		t.Error("unexpected state names")
	}
}
