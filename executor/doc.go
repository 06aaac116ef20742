// Package executor evaluates code inside a persistent namespace.
//
// # Overview
//
// An [Executor] owns the WebAssembly runtime and the host function
// registry. A [Namespace] wraps one [Interpreter] whose bindings survive
// from one evaluation to the next, so names defined by one request are
// visible to later ones.
//
// # Basic Usage
//
//	exec, err := executor.New(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	ns, err := exec.NewNamespace(ctx, starlark.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ns.Close()
//
//	ns.Exec(ctx, `x = 5`)
//	res := ns.Exec(ctx, `result = x + 1`)
//	fmt.Println(res.Value) // 6
//
// # Errors
//
// Evaluation failures never escape as panics. They are returned in
// [Result].Error as an [*EvalError] whose Trace is suitable for sending back
// to a client.
//
// # WebAssembly modules
//
// [Executor.LoadWasm] instantiates a module and exposes its exported
// functions. Interpreters use it to make .wasm files importable.
//
// # Language Interface
//
// To add support for a new language, implement the [Language] interface.
// See [github.com/caffeineduck/evalbridge/language/starlark] for an example.
package executor
