// Package starlark provides the Starlark language adapter, a Python dialect
// interpreted in-process by go.starlark.net.
package starlark

import (
	"bytes"
	"context"
	"errors"

	"github.com/caffeineduck/evalbridge/executor"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

// Name is the identifier used to select this language.
const Name = "starlark"

// requestFile is the filename reported in diagnostics for request code.
const requestFile = "<request>"

func init() {
	// Request code is a sequence of top-level chunks sharing one set of
	// globals, the way an interactive session behaves.
	resolve.AllowSet = true
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true
	resolve.LoadBindsGlobally = true
}

// Starlark implements executor.Language.
type Starlark struct{}

// New returns a Starlark language adapter.
func New() *Starlark {
	return &Starlark{}
}

// Name returns "starlark".
func (s *Starlark) Name() string {
	return Name
}

// NewInterpreter returns an interpreter with empty globals.
func (s *Starlark) NewInterpreter(env executor.Env) (executor.Interpreter, error) {
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{
		env:     env,
		logger:  logger,
		globals: make(starlark.StringDict),
		loader:  newLoader(env, logger),
	}, nil
}

// Interpreter evaluates request code against persistent globals.
type Interpreter struct {
	env     executor.Env
	logger  *zap.Logger
	globals starlark.StringDict
	loader  *loader
}

// Exec runs code as one chunk of an interactive session: globals from
// earlier requests are module globals of the chunk, so they can be read,
// reassigned and updated in place. Whatever the chunk binds is written back,
// even when it fails part way. Globals are never frozen.
func (in *Interpreter) Exec(ctx context.Context, code, resultName string) (executor.Outcome, error) {
	var out bytes.Buffer
	thread := in.newThread(ctx, &out)

	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	defer stop()

	f, err := syntax.Parse(requestFile, code, 0)
	if err != nil {
		return executor.Outcome{Output: out.String()}, compileError(err)
	}

	before := in.globals[resultName]
	err = starlark.ExecREPLChunk(f, thread, in.globals)

	outcome := executor.Outcome{Output: out.String()}
	if err != nil {
		var resolveErrs resolve.ErrorList
		if errors.As(err, &resolveErrs) {
			return outcome, compileError(err)
		}
		return outcome, runtimeError(err)
	}

	if v, ok := in.globals[resultName]; ok && assigned(f.Stmts, resultName, before, v) {
		outcome.Value, outcome.Bound = render(v), true
	}
	return outcome, nil
}

// Import binds a module under the last component of its dotted name.
func (in *Interpreter) Import(ctx context.Context, module string) error {
	var out bytes.Buffer
	thread := in.newThread(ctx, &out)

	mod, err := in.loader.module(thread, module)
	if err != nil {
		return executor.NewImportError(module, err)
	}
	in.globals[bindingName(module)] = mod
	in.logger.Debug("imported module", zap.String("module", module))
	return nil
}

// Names returns the current global names, sorted.
func (in *Interpreter) Names() []string {
	return in.globals.Keys()
}

// Close releases any wasm modules loaded by IMPORT.
func (in *Interpreter) Close() error {
	return in.loader.close()
}

func (in *Interpreter) newThread(ctx context.Context, out *bytes.Buffer) *starlark.Thread {
	thread := &starlark.Thread{
		Name: "request",
		Print: func(_ *starlark.Thread, msg string) {
			out.WriteString(msg)
			out.WriteByte('\n')
		},
		Load: in.loader.load,
	}
	thread.SetLocal(contextKey, ctx)
	return thread
}

// render formats a value the way a script author expects to read it:
// strings without quotes, everything else in its Starlark form.
func render(v starlark.Value) string {
	if s, ok := v.(starlark.String); ok {
		return s.GoString()
	}
	return v.String()
}
