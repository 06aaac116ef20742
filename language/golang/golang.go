// Package golang provides a Go language adapter backed by the yaegi
// interpreter. Request code is evaluated as a sequence of top-level
// statements and declarations in one persistent interpreter.
package golang

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/scanner"
	"reflect"
	"sort"

	"github.com/caffeineduck/evalbridge/executor"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"
)

// Name is the identifier used to select this language.
const Name = "go"

// Option configures the Go language adapter.
type Option func(*Go)

// WithAllowedImports restricts import paths, both for IMPORT and for import
// declarations inside request code. With no list every stdlib package may
// be imported.
func WithAllowedImports(paths ...string) Option {
	return func(g *Go) {
		if g.allowed == nil && len(paths) > 0 {
			g.allowed = make(map[string]bool)
		}
		for _, p := range paths {
			g.allowed[p] = true
		}
	}
}

// Go implements executor.Language.
type Go struct {
	allowed map[string]bool
}

// New returns a Go language adapter.
func New(opts ...Option) *Go {
	g := &Go{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "go".
func (g *Go) Name() string {
	return Name
}

// NewInterpreter returns a yaegi interpreter with the standard library
// available. The first module path entry, if any, is used as the GOPATH
// for source packages.
func (g *Go) NewInterpreter(env executor.Env) (executor.Interpreter, error) {
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	in := &Interpreter{
		allowed: g.allowed,
		logger:  logger,
		names:   make(map[string]bool),
	}

	opts := interp.Options{Stdout: &in.out, Stderr: &in.out}
	if len(env.ModulePath) > 0 {
		opts.GoPath = env.ModulePath[0]
	}

	in.vm = interp.New(opts)
	if err := in.vm.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	return in, nil
}

// Interpreter evaluates Go fragments in one persistent yaegi interpreter.
type Interpreter struct {
	vm      *interp.Interpreter
	allowed map[string]bool
	logger  *zap.Logger
	out     bytes.Buffer
	names   map[string]bool
}

// Exec evaluates code. The result name counts as bound when the fragment
// assigns it at top level.
func (in *Interpreter) Exec(ctx context.Context, code, resultName string) (executor.Outcome, error) {
	in.out.Reset()

	top := scanTopLevel(code)
	if err := in.checkImports(top.imports); err != nil {
		return executor.Outcome{}, err
	}

	if _, err := in.vm.EvalWithContext(ctx, code); err != nil {
		return executor.Outcome{Output: in.out.String()}, evalError(err)
	}
	for _, name := range top.declared {
		in.names[name] = true
	}

	outcome := executor.Outcome{Output: in.out.String()}
	if top.assigned[resultName] {
		v, err := in.vm.Eval(resultName)
		if err != nil {
			return outcome, evalError(err)
		}
		outcome.Value, outcome.Bound = render(v), true
	}
	return outcome, nil
}

// Import evaluates an import declaration for path. The package is bound
// under its default name.
func (in *Interpreter) Import(ctx context.Context, path string) error {
	if err := in.checkImports([]importSpec{{path: path}}); err != nil {
		return err
	}
	if _, err := in.vm.EvalWithContext(ctx, fmt.Sprintf("import %q", path)); err != nil {
		return executor.NewImportError(path, fmt.Errorf("%w: %v", executor.ErrModuleNotFound, err))
	}
	in.names[importSpec{path: path}.name()] = true
	in.logger.Debug("imported package", zap.String("path", path))
	return nil
}

// Names returns the names declared by successful evaluations, sorted.
func (in *Interpreter) Names() []string {
	names := make([]string, 0, len(in.names))
	for name := range in.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (in *Interpreter) Close() error {
	return nil
}

func (in *Interpreter) checkImports(specs []importSpec) error {
	if in.allowed == nil {
		return nil
	}
	for _, spec := range specs {
		if !in.allowed[spec.path] {
			return executor.NewImportError(spec.path, errors.New("import not allowed"))
		}
	}
	return nil
}

func evalError(err error) error {
	var p interp.Panic
	if errors.As(err, &p) {
		return &executor.EvalError{
			Kind:    executor.KindPanic,
			Message: fmt.Sprint(p.Value),
			Trace:   fmt.Sprintf("panic: %v\n\n%s", p.Value, p.Stack),
			Err:     err,
		}
	}

	var list scanner.ErrorList
	if errors.As(err, &list) {
		return &executor.EvalError{
			Kind:    executor.KindSyntax,
			Message: list.Error(),
			Trace:   "SyntaxError: " + list.Error(),
			Err:     err,
		}
	}

	return &executor.EvalError{
		Kind:    executor.KindRuntime,
		Message: err.Error(),
		Trace:   "Error: " + err.Error(),
		Err:     err,
	}
}

func render(v reflect.Value) string {
	if !v.IsValid() {
		return "<nil>"
	}
	if v.Kind() == reflect.String {
		return v.String()
	}
	if v.CanInterface() {
		return fmt.Sprint(v.Interface())
	}
	return v.String()
}
