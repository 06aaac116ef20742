package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Namespace is the execution context shared by every request: one set of
// bindings that lives until Close. Evaluations are serialized.
type Namespace struct {
	lang   Language
	interp Interpreter
	cfg    namespaceConfig
	logger *zap.Logger

	execMu sync.Mutex
	closed bool
}

// NewNamespace creates an interpreter for lang and runs the bootstrap code,
// if any, into it.
func (e *Executor) NewNamespace(ctx context.Context, lang Language, opts ...NamespaceOption) (*Namespace, error) {
	cfg := defaultNamespaceConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	interp, err := lang.NewInterpreter(Env{
		Executor:   e,
		Registry:   e.registry,
		ModulePath: cfg.modulePath,
		Logger:     cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s interpreter: %w", lang.Name(), err)
	}

	ns := &Namespace{
		lang:   lang,
		interp: interp,
		cfg:    cfg,
		logger: cfg.logger.With(zap.String("lang", lang.Name())),
	}

	if cfg.bootstrap != "" {
		if res := ns.Exec(ctx, cfg.bootstrap); res.Error != nil {
			interp.Close()
			return nil, fmt.Errorf("bootstrap: %w", res.Error)
		}
		ns.logger.Debug("bootstrap complete", zap.Strings("names", ns.Names()))
	}

	return ns, nil
}

// Language returns the language the namespace evaluates.
func (n *Namespace) Language() string {
	return n.lang.Name()
}

// ResultName returns the binding reported after each evaluation.
func (n *Namespace) ResultName() string {
	return n.cfg.resultName
}

// Exec evaluates code against the shared bindings. Failures, including
// panics inside the interpreter, are reported in Result.Error.
func (n *Namespace) Exec(ctx context.Context, code string) (result Result) {
	n.execMu.Lock()
	defer n.execMu.Unlock()

	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if n.closed {
		return Result{Error: ErrNamespaceClosed}
	}

	defer n.recoverInto(&result)

	out, err := n.interp.Exec(ctx, code, n.cfg.resultName)
	return Result{
		Output: out.Output,
		Value:  out.Value,
		Bound:  out.Bound && err == nil,
		Error:  err,
	}
}

// Import binds module into the namespace under its name.
func (n *Namespace) Import(ctx context.Context, module string) (result Result) {
	n.execMu.Lock()
	defer n.execMu.Unlock()

	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if n.closed {
		return Result{Error: ErrNamespaceClosed}
	}

	defer n.recoverInto(&result)

	if module == "" {
		return Result{Error: NewImportError(module, fmt.Errorf("empty module name: %w", ErrModuleNotFound))}
	}
	return Result{Error: n.interp.Import(ctx, module)}
}

// Names returns the current binding names, sorted.
func (n *Namespace) Names() []string {
	n.execMu.Lock()
	defer n.execMu.Unlock()
	if n.closed {
		return nil
	}
	return n.interp.Names()
}

// Close releases the interpreter. Later calls report ErrNamespaceClosed.
func (n *Namespace) Close() error {
	n.execMu.Lock()
	defer n.execMu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	return n.interp.Close()
}

func (n *Namespace) recoverInto(result *Result) {
	r := recover()
	if r == nil {
		return
	}
	stack := string(debug.Stack())
	n.logger.Error("interpreter panic", zap.Any("panic", r))
	*result = Result{Error: &EvalError{
		Kind:    KindPanic,
		Message: fmt.Sprint(r),
		Trace:   fmt.Sprintf("panic: %v\n\n%s", r, stack),
	}}
}
