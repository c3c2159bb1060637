package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode    Phase = "decode"    // binary module to instructions
	PhaseNormalize Phase = "normalize" // instructions to linked stream
	PhaseLocate    Phase = "locate"    // tail-call site search
	PhaseRewrite   Phase = "rewrite"   // stream edits and compaction
	PhaseEncode    Phase = "encode"    // stream back to binary
	PhaseLoad      Phase = "load"      // module compilation
	PhaseBind      Phase = "bind"      // typed callable construction
	PhaseStore     Phase = "store"     // persistence of rewritten units
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseRuntime   Phase = "runtime"   // execution
)

// Kind categorizes the error
type Kind string

// Rejection kinds explain why a call-family instruction is not a rewritable
// tail-call site. They are reported, never returned as failures.
const (
	KindNoTailCallPattern     Kind = "no_tail_call_pattern"
	KindDisallowedInstruction Kind = "disallowed_instruction"
	KindAlreadyRewritten      Kind = "already_rewritten"
	KindNotSelfRecursive      Kind = "not_self_recursive"
	KindNoStagedValue         Kind = "no_staged_value"
	KindSharedExit            Kind = "shared_exit"
)

const (
	KindInvalidData   Kind = "invalid_data"
	KindUnsupported   Kind = "unsupported"
	KindNotFound      Kind = "not_found"
	KindTypeMismatch  Kind = "type_mismatch"
	KindInstantiation Kind = "instantiation"
	KindInvalidInput  Kind = "invalid_input"
)

// Rejection reports whether the kind is a locator rejection rather than a
// failure.
func (k Kind) Rejection() bool {
	switch k {
	case KindNoTailCallPattern, KindDisallowedInstruction, KindAlreadyRewritten,
		KindNotSelfRecursive, KindNoStagedValue, KindSharedExit:
		return true
	}
	return false
}

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Func   string // function the error refers to, if any
	Detail string
	Index  int // instruction position within Func; valid when Located
	// Located is set when Index refers to an instruction.
	Located bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Func != "" {
		b.WriteString(" in ")
		b.WriteString(e.Func)
	}
	if e.Located {
		fmt.Fprintf(&b, " at #%d", e.Index)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Func sets the function name
func (b *Builder) Func(name string) *Builder {
	b.err.Func = name
	return b
}

// At sets the instruction position
func (b *Builder) At(index int) *Builder {
	b.err.Index = index
	b.err.Located = true
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Reject creates a locator rejection for the candidate at index.
func Reject(kind Kind, fn string, index int, detail string, args ...any) *Error {
	return New(PhaseLocate, kind).Func(fn).At(index).Detail(detail, args...).Build()
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, fn, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Func:   fn,
		Detail: fmt.Sprintf("want %s, got %s", want, got),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, fn string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Func:   fn,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
