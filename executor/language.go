package executor

import (
	"context"

	"github.com/caffeineduck/evalbridge/hostfunc"
	"go.uber.org/zap"
)

// Language creates interpreters for one scripting language.
// Implement this interface to add support for a new language.
type Language interface {
	// Name returns a unique identifier for this language (e.g. "starlark", "go").
	Name() string

	// NewInterpreter returns a fresh interpreter with empty bindings.
	NewInterpreter(env Env) (Interpreter, error)
}

// Env is what an interpreter may use from its host.
type Env struct {
	// Executor loads WebAssembly modules on behalf of IMPORT.
	Executor *Executor

	// Registry holds host functions exposed as importable modules.
	Registry *hostfunc.Registry

	// ModulePath lists directories searched for script and wasm modules.
	ModulePath []string

	Logger *zap.Logger
}

// Outcome is what an interpreter reports for one successful evaluation.
type Outcome struct {
	// Output holds anything the code printed.
	Output string

	// Value is the rendered binding of the result name. Only meaningful
	// when Bound is true.
	Value string

	// Bound reports whether this evaluation assigned the result name.
	Bound bool
}

// Interpreter evaluates code against bindings that persist across calls.
// Implementations are not required to be safe for concurrent use; the
// Namespace serializes access.
type Interpreter interface {
	// Exec evaluates code. Failures are returned as *EvalError.
	Exec(ctx context.Context, code, resultName string) (Outcome, error)

	// Import binds the module identified by module under its name.
	Import(ctx context.Context, module string) error

	// Names returns the current binding names, sorted.
	Names() []string

	Close() error
}
