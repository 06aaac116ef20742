// Package evalbridge is a remote code-execution bridge: a long-lived process
// that evaluates code sent over a local TCP socket inside one persistent
// interpreter namespace.
//
// # Overview
//
// Each connection carries exactly one request and receives one reply:
//
//	EXIT            -> RESULT:ok, then the process exits 0
//	IMPORT:<name>   -> RESULT:ok or ERROR:\n<traceback>
//	PING            -> PONG
//	<code>          -> RESULT:<value>, RESULT:ok or ERROR:\n<traceback>
//
// Bindings made by one request are visible to the next. Requests are
// processed strictly one at a time.
//
// # Basic Usage
//
//	exec, _ := executor.New(hostfunc.NewRegistry())
//	defer exec.Close()
//
//	ns, _ := exec.NewNamespace(ctx, starlark.New())
//	defer ns.Close()
//
//	srv := bridge.NewServer(ns)
//	if err := srv.Listen("127.0.0.1", 5000); err != nil {
//	    log.Fatal(err)
//	}
//	srv.Serve(ctx) // returns nil after EXIT
//
// From another process:
//
//	c := client.New("127.0.0.1:5000")
//	c.Exec(ctx, "x = 5")
//	resp, _ := c.Exec(ctx, "result = x + 1") // RESULT:6
//
// # Capabilities
//
// Host modules (kv, http, fs) are opt-in through a [hostfunc.Registry] and
// become importable with IMPORT. Script modules (.star) and WebAssembly
// modules (.wasm) are found on the module path.
//
// See the [bridge], [executor], [protocol], [language/starlark] and
// [language/golang] packages for detailed API documentation.
package evalbridge
