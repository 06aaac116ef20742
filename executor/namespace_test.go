package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/caffeineduck/evalbridge/hostfunc"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	exec, err := New(hostfunc.NewRegistry())
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	t.Cleanup(func() { exec.Close() })
	return exec
}

func newTestNamespace(t *testing.T, opts ...NamespaceOption) *Namespace {
	t.Helper()
	ns, err := newTestExecutor(t).NewNamespace(context.Background(), &fakeLanguage{}, opts...)
	if err != nil {
		t.Fatalf("failed to create namespace: %v", err)
	}
	t.Cleanup(func() { ns.Close() })
	return ns
}

func TestNamespaceStatePersists(t *testing.T) {
	ns := newTestNamespace(t)
	ctx := context.Background()

	if res := ns.Exec(ctx, "x=5"); res.Error != nil || res.Bound {
		t.Fatalf("first exec: %+v", res)
	}

	res := ns.Exec(ctx, "result=6")
	if res.Error != nil {
		t.Fatalf("second exec failed: %v", res.Error)
	}
	if !res.Bound || res.Value != "6" {
		t.Errorf("expected bound result 6, got %+v", res)
	}

	if got := strings.Join(ns.Names(), ","); got != "result,x" {
		t.Errorf("Names() = %s", got)
	}
}

func TestNamespaceResultName(t *testing.T) {
	ns := newTestNamespace(t, WithResultName("out"))
	ctx := context.Background()

	if res := ns.Exec(ctx, "result=1"); res.Bound {
		t.Error("result should not count when the result name is out")
	}
	if res := ns.Exec(ctx, "out=2"); !res.Bound || res.Value != "2" {
		t.Errorf("expected out=2 to be reported, got %+v", res)
	}
	if ns.ResultName() != "out" {
		t.Errorf("ResultName() = %s", ns.ResultName())
	}
}

func TestNamespaceOutputCaptured(t *testing.T) {
	ns := newTestNamespace(t)
	res := ns.Exec(context.Background(), "print hello; print world")
	if res.Output != "hello\nworld\n" {
		t.Errorf("unexpected output %q", res.Output)
	}
}

func TestNamespaceFailureKeepsNamespaceUsable(t *testing.T) {
	ns := newTestNamespace(t)
	ctx := context.Background()

	res := ns.Exec(ctx, "fail")
	var evalErr *EvalError
	if !errors.As(res.Error, &evalErr) || evalErr.Kind != KindRuntime {
		t.Fatalf("expected runtime EvalError, got %v", res.Error)
	}
	if Trace(res.Error) != "Traceback: failed" {
		t.Errorf("unexpected trace %q", Trace(res.Error))
	}

	if res := ns.Exec(ctx, "result=ok"); res.Error != nil || res.Value != "ok" {
		t.Errorf("namespace unusable after failure: %+v", res)
	}
}

func TestNamespaceRecoversPanic(t *testing.T) {
	ns := newTestNamespace(t)
	ctx := context.Background()

	res := ns.Exec(ctx, "panic")
	var evalErr *EvalError
	if !errors.As(res.Error, &evalErr) || evalErr.Kind != KindPanic {
		t.Fatalf("expected panic EvalError, got %v", res.Error)
	}
	if !strings.Contains(evalErr.Trace, "panic: boom") {
		t.Errorf("trace missing panic value: %q", evalErr.Trace)
	}
	if res.Duration <= 0 {
		t.Error("duration not recorded after panic")
	}

	if res := ns.Exec(ctx, "result=1"); res.Error != nil {
		t.Errorf("namespace unusable after panic: %v", res.Error)
	}
}

func TestNamespaceImport(t *testing.T) {
	ns := newTestNamespace(t)
	ctx := context.Background()

	if res := ns.Import(ctx, "math"); res.Error != nil {
		t.Fatalf("import failed: %v", res.Error)
	}

	tests := []string{"missing", ""}
	for _, module := range tests {
		res := ns.Import(ctx, module)
		if !errors.Is(res.Error, ErrModuleNotFound) {
			t.Errorf("Import(%q): expected ErrModuleNotFound, got %v", module, res.Error)
		}
	}
}

func TestNamespaceBootstrap(t *testing.T) {
	ns := newTestNamespace(t, WithBootstrap("greeting=hi"))
	if got := strings.Join(ns.Names(), ","); got != "greeting" {
		t.Errorf("bootstrap binding missing, names = %s", got)
	}
}

func TestNamespaceBootstrapFailure(t *testing.T) {
	exec := newTestExecutor(t)
	_, err := exec.NewNamespace(context.Background(), &fakeLanguage{}, WithBootstrap("fail"))
	if err == nil || !strings.Contains(err.Error(), "bootstrap") {
		t.Errorf("expected bootstrap error, got %v", err)
	}
}

func TestNamespaceClose(t *testing.T) {
	ns := newTestNamespace(t)
	ctx := context.Background()

	if err := ns.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := ns.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	if res := ns.Exec(ctx, "x=1"); !errors.Is(res.Error, ErrNamespaceClosed) {
		t.Errorf("expected ErrNamespaceClosed, got %v", res.Error)
	}
	if res := ns.Import(ctx, "math"); !errors.Is(res.Error, ErrNamespaceClosed) {
		t.Errorf("expected ErrNamespaceClosed, got %v", res.Error)
	}
	if names := ns.Names(); names != nil {
		t.Errorf("expected no names after close, got %v", names)
	}
}

func TestExecutorRun(t *testing.T) {
	exec := newTestExecutor(t)
	lang := &fakeLanguage{}

	res := exec.Run(context.Background(), lang, "result=42")
	if res.Error != nil || res.Value != "42" {
		t.Errorf("unexpected result %+v", res)
	}

	// Each Run gets a fresh namespace.
	exec.Run(context.Background(), lang, "x=1")
	if lang.created != 2 {
		t.Errorf("expected 2 interpreters, got %d", lang.created)
	}
}

func TestTraceFallsBackToMessage(t *testing.T) {
	err := errors.New("plain failure")
	if Trace(err) != "plain failure" {
		t.Errorf("Trace() = %q", Trace(err))
	}

	wrapped := &EvalError{Kind: KindSyntax, Message: "bad token"}
	if Trace(wrapped) != "syntax error: bad token" {
		t.Errorf("Trace() = %q", Trace(wrapped))
	}
}
