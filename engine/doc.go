// Package engine provides the wazero runtime that executes rewritten
// modules.
//
// The runtime is created with the tail-call proposal enabled, so modules
// containing return_call compile and run in constant stack space. The
// proposal can be switched off with Config.DisableTailCalls to reproduce
// the behavior of a runtime without tail calls.
//
// # Architecture
//
//	WazeroEngine   - Creates and manages a wazero runtime
//	WazeroModule   - A compiled core module, can create instances
//	WazeroInstance - A running instance with exports
//
// # Engines
//
// KindCompiler translates functions to native code; a return_call whose
// arguments fit in registers becomes a jump. KindInterpreter caps the call
// stack at a few thousand frames, which makes the difference between an
// ordinary self call and a tail call observable at modest depths.
//
// # Scalar signatures
//
// Signature maps WIT scalar types to core values:
//
//	WIT Type               Core
//	bool, u8-u32, s8-s32   i32
//	char                   i32
//	u64, s64               i64
//	f32                    f32
//	f64                    f64
//
// A signature is written in WIT syntax, e.g. "func(n: u64, acc: u64) -> u64",
// and used to convert untyped inputs before calling an export.
package engine
