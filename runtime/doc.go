// Package runtime loads tail-call rewritten functions and binds them to
// Go callables.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	unit, err := rt.Rewrite(ctx, wasmBytes, "sum")
//	if err != nil {
//	    // no rewritable tail call: use the original
//	    unit, err = rt.Load(ctx, wasmBytes, "sum")
//	}
//
//	sum, err := runtime.Bind[uint64, uint64](unit)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	total, err := sum(ctx, 10_000_000, 0)
//
// # Units
//
// Rewrite transforms the function, writes the result to the configured
// store under a fresh "rewritten-<uuid>" name, reads it back, compiles it
// and instantiates it. Units are cached per input module and function
// name, so repeated requests bind the same instance. A persistent store
// (file or SQLite) also lets a later process skip the transformation.
//
// Calls on a unit are serialized.
package runtime
