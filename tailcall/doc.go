// Package tailcall rewrites self-recursive WebAssembly functions so their
// recursive call runs as a tail call.
//
// # Overview
//
// Compilers often stage the result of a recursive call through a local and
// a shared exit block instead of returning it directly:
//
//	block
//	  ...
//	  call $sum
//	  local.set $ret
//	  br 0
//	end
//	local.get $ret
//
// Such a call is in tail position but runs as an ordinary call, so deep
// recursion exhausts the call stack. Transform recognizes the pattern and
// replaces the call with return_call, which runtimes implementing the
// tail-call proposal execute without growing the stack:
//
//	block
//	  ...
//	  return_call $sum
//	end
//	unreachable
//
// Other exits of the function that branch to the same staged load become
// direct returns.
//
// # Scope
//
// Only direct self calls are rewritten, in functions with the signature
// (param x acc) (result acc). Calls to other functions, indirect calls and
// calls whose result is used by anything other than a return are left as
// they are and explained in the Report.
//
// # Usage
//
//	out, report, err := tailcall.Transform(wasmBytes, tailcall.Config{
//	    Functions: tailcall.NewFunctionNameMatcher([]string{"sum"}),
//	})
//	if err != nil {
//	    return err
//	}
//	for _, fn := range report.Funcs {
//	    fmt.Println(fn.Name, fn.Sites)
//	}
//
// The output must be run with tail calls enabled, e.g. in wazero with
// experimental.CoreFeaturesTailCall.
//
// Transform is idempotent: a rewritten call is already a tail call and is
// reported as such on a second run.
package tailcall
