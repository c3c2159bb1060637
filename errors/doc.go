// Package errors provides the structured error type of the tail-call
// rewriter and its harness.
//
// Errors are categorized by Phase (where the error occurred) and Kind
// (error category). Locator rejections use the same type with
// PhaseLocate and one of the rejection kinds; Kind.Rejection tells them
// apart from failures.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLocate, errors.KindNotSelfRecursive).
//		Func("sum").
//		At(12).
//		Detail("callee %d is not the current function", 3).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Reject(errors.KindNoStagedValue, "sum", 12, "no load before return")
//	err := errors.NotFound(errors.PhaseBind, "function", "sum")
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind only.
package errors
