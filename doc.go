// Package wasmtailcall rewrites self-recursive WebAssembly functions so that
// recursion whose result is returned unchanged becomes a return_call.
//
// Compilers that route every result through a local and a shared exit block
// hide tail calls: the recursive call is followed by a local.set and a
// branch instead of a return. Executed as is, such a function uses one stack
// frame per level and exhausts the stack at modest depths. The rewrite
// deletes the staging, turns the other exits into direct returns and fuses
// the call with its return, after which a tail-call capable engine runs any
// depth in constant stack space.
//
// # Architecture Overview
//
//	wasmtailcall/
//	├── tailcall/        Transform, function matchers, reports, listings
//	├── wasm/            Core WASM binary parsing, instruction codec, text listing
//	├── runtime/         Rewrite, persist, load and bind units as Go callables
//	├── engine/          wazero integration with the tail-call feature, WIT signatures
//	├── store/           Persistence of rewritten units (memory, files, SQLite)
//	├── config/          TOML or YAML configuration and environment overrides
//	├── errors/          Structured error types with phase and kind
//	└── cmd/tailcall/    Command line: rewrite, dis, run, demo, inspect
//
// # Quick Start
//
// Rewrite a module:
//
//	out, report, err := tailcall.Transform(wasmBytes, tailcall.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Sites(), "site(s) rewritten")
//
// Rewrite and call a function:
//
//	rt, err := runtime.New(ctx, runtime.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	unit, err := rt.Rewrite(ctx, wasmBytes, "sum")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sum, err := runtime.Bind[uint64, uint64](unit)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	total, err := sum(ctx, 10_000_000, 0)
//
// # Scope
//
// Only direct self-recursion is rewritten, in functions of the form
// (param x acc) (result acc). Calls to other functions, indirect calls and
// calls whose result is used before being returned are reported and left
// unchanged. A module without a rewritable site is returned byte for byte.
//
// # Thread Safety
//
// Transform is stateless and safe for concurrent use. Runtime serializes
// rewrites; calls on one unit are serialized because wazero functions are
// not safe for concurrent use.
package wasmtailcall
