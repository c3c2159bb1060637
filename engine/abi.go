package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-tailcall/errors"
)

// Signature is the WIT view of a core function whose parameters and
// results are all scalars, e.g. "func(n: u64, acc: u64) -> u64".
type Signature struct {
	Names   []string
	Params  []wit.Type
	Results []wit.Type
}

var scalarTypes = map[string]wit.Type{
	"bool": wit.Bool{},
	"u8":   wit.U8{},
	"s8":   wit.S8{},
	"u16":  wit.U16{},
	"s16":  wit.S16{},
	"u32":  wit.U32{},
	"s32":  wit.S32{},
	"u64":  wit.U64{},
	"s64":  wit.S64{},
	"f32":  wit.F32{},
	"f64":  wit.F64{},
	"char": wit.Char{},
}

// ParseSignature parses a WIT function type with scalar parameters and at
// most one scalar result. Parameter names are optional.
func ParseSignature(s string) (*Signature, error) {
	src := strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(src, "func")
	if !ok {
		return nil, signatureError(s, "missing func keyword")
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "(") {
		return nil, signatureError(s, "missing parameter list")
	}
	closing := strings.IndexByte(rest, ')')
	if closing < 0 {
		return nil, signatureError(s, "unterminated parameter list")
	}
	params, tail := rest[1:closing], strings.TrimSpace(rest[closing+1:])

	sig := &Signature{}
	if strings.TrimSpace(params) != "" {
		for i, p := range strings.Split(params, ",") {
			name, typ, named := strings.Cut(p, ":")
			if !named {
				name, typ = fmt.Sprintf("p%d", i), name
			}
			t, err := scalarType(s, typ)
			if err != nil {
				return nil, err
			}
			sig.Names = append(sig.Names, strings.TrimSpace(name))
			sig.Params = append(sig.Params, t)
		}
	}

	if tail == "" {
		return sig, nil
	}
	result, ok := strings.CutPrefix(tail, "->")
	if !ok {
		return nil, signatureError(s, fmt.Sprintf("unexpected %q", tail))
	}
	t, err := scalarType(s, result)
	if err != nil {
		return nil, err
	}
	sig.Results = []wit.Type{t}
	return sig, nil
}

func scalarType(sig, name string) (wit.Type, error) {
	t, ok := scalarTypes[strings.TrimSpace(name)]
	if !ok {
		return nil, signatureError(sig, fmt.Sprintf("unsupported type %q", strings.TrimSpace(name)))
	}
	return t, nil
}

func signatureError(sig, detail string) error {
	return errors.New(errors.PhaseBind, errors.KindInvalidInput).
		Value(sig).
		Detail("signature: %s", detail).
		Build()
}

// SignatureFor derives a signature from a core function definition,
// reading i32 as u32 and i64 as u64.
func SignatureFor(def api.FunctionDefinition) (*Signature, error) {
	sig := &Signature{}
	for i, vt := range def.ParamTypes() {
		t, err := defaultType(def.Name(), vt)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("p%d", i)
		if names := def.ParamNames(); i < len(names) && names[i] != "" {
			name = names[i]
		}
		sig.Names = append(sig.Names, name)
		sig.Params = append(sig.Params, t)
	}
	for _, vt := range def.ResultTypes() {
		t, err := defaultType(def.Name(), vt)
		if err != nil {
			return nil, err
		}
		sig.Results = append(sig.Results, t)
	}
	return sig, nil
}

func defaultType(fn string, vt api.ValueType) (wit.Type, error) {
	switch vt {
	case api.ValueTypeI32:
		return wit.U32{}, nil
	case api.ValueTypeI64:
		return wit.U64{}, nil
	case api.ValueTypeF32:
		return wit.F32{}, nil
	case api.ValueTypeF64:
		return wit.F64{}, nil
	default:
		return nil, errors.New(errors.PhaseBind, errors.KindUnsupported).
			Func(fn).
			Detail("value type %s", api.ValueTypeName(vt)).
			Build()
	}
}

// CoreType returns the core value type a scalar WIT type flattens to.
func CoreType(t wit.Type) (api.ValueType, error) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.U64, wit.S64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	default:
		return 0, errors.Unsupported(errors.PhaseBind, fmt.Sprintf("WIT type %T", t))
	}
}

// Check reports whether the signature flattens to the core types of def.
func (s *Signature) Check(def api.FunctionDefinition) error {
	if err := checkTypes(def.Name(), "parameters", s.Params, def.ParamTypes()); err != nil {
		return err
	}
	return checkTypes(def.Name(), "results", s.Results, def.ResultTypes())
}

func checkTypes(fn, what string, types []wit.Type, core []api.ValueType) error {
	want := make([]string, len(core))
	for i, vt := range core {
		want[i] = api.ValueTypeName(vt)
	}
	got := make([]string, len(types))
	mismatch := len(types) != len(core)
	for i, t := range types {
		vt, err := CoreType(t)
		if err != nil {
			return err
		}
		got[i] = api.ValueTypeName(vt)
		if i < len(core) && core[i] != vt {
			mismatch = true
		}
	}
	if mismatch {
		return errors.TypeMismatch(errors.PhaseBind, fn,
			what+" ("+strings.Join(want, " ")+")",
			"("+strings.Join(got, " ")+")")
	}
	return nil
}

// String renders the signature in WIT syntax.
func (s *Signature) String() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, t := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if i < len(s.Names) && s.Names[i] != "" {
			b.WriteString(s.Names[i] + ": ")
		}
		b.WriteString(TypeName(t))
	}
	b.WriteString(")")
	if len(s.Results) > 0 {
		b.WriteString(" -> " + TypeName(s.Results[0]))
	}
	return b.String()
}

// TypeName returns the WIT name of a scalar type.
func TypeName(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// Lower flattens Go values to core values.
func (s *Signature) Lower(values []any) ([]uint64, error) {
	if len(values) != len(s.Params) {
		return nil, errors.InvalidInput(errors.PhaseBind,
			fmt.Sprintf("expected %d arguments, got %d", len(s.Params), len(values)))
	}
	flat := make([]uint64, 0, len(values))
	for i, v := range values {
		raw, err := flatten(s.Params[i], v)
		if err != nil {
			return nil, err
		}
		flat = append(flat, raw)
	}
	return flat, nil
}

// Lift converts core results to Go values.
func (s *Signature) Lift(raw []uint64) ([]any, error) {
	if len(raw) != len(s.Results) {
		return nil, errors.InvalidInput(errors.PhaseBind,
			fmt.Sprintf("expected %d results, got %d", len(s.Results), len(raw)))
	}
	out := make([]any, len(raw))
	for i, r := range raw {
		v, err := lift(s.Results[i], r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

func flatten(t wit.Type, value any) (uint64, error) {
	switch t.(type) {
	case wit.Bool:
		v, ok := value.(bool)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseBind, "", "bool", typeName(value))
		}
		if v {
			return 1, nil
		}
		return 0, nil
	case wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32:
		v, ok := integer(value)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseBind, "", "integer", typeName(value))
		}
		return uint64(uint32(v)), nil
	case wit.U64, wit.S64:
		v, ok := integer(value)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseBind, "", "integer", typeName(value))
		}
		return v, nil
	case wit.F32:
		switch v := value.(type) {
		case float32:
			return uint64(math.Float32bits(v)), nil
		case float64:
			return uint64(math.Float32bits(float32(v))), nil
		}
		return 0, errors.TypeMismatch(errors.PhaseBind, "", "float32", typeName(value))
	case wit.F64:
		switch v := value.(type) {
		case float64:
			return math.Float64bits(v), nil
		case float32:
			return math.Float64bits(float64(v)), nil
		}
		return 0, errors.TypeMismatch(errors.PhaseBind, "", "float64", typeName(value))
	case wit.Char:
		var r rune
		switch v := value.(type) {
		case rune:
			r = v
		case string:
			if v == "" {
				return 0, errors.InvalidInput(errors.PhaseBind, "empty string cannot be converted to char")
			}
			r, _ = utf8.DecodeRuneInString(v)
		default:
			return 0, errors.TypeMismatch(errors.PhaseBind, "", "rune", typeName(value))
		}
		if !utf8.ValidRune(r) {
			return 0, errors.InvalidInput(errors.PhaseBind, fmt.Sprintf("invalid Unicode scalar value: 0x%X", r))
		}
		return uint64(r), nil
	default:
		return 0, errors.Unsupported(errors.PhaseBind, fmt.Sprintf("WIT type %T", t))
	}
}

func integer(value any) (uint64, bool) {
	switch v := value.(type) {
	case int:
		return uint64(v), true
	case int8:
		return uint64(v), true
	case int16:
		return uint64(v), true
	case int32:
		return uint64(v), true
	case int64:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	}
	return 0, false
}

func lift(t wit.Type, raw uint64) (any, error) {
	switch t.(type) {
	case wit.Bool:
		return raw != 0, nil
	case wit.U8:
		return uint8(raw), nil
	case wit.S8:
		return int8(raw), nil
	case wit.U16:
		return uint16(raw), nil
	case wit.S16:
		return int16(raw), nil
	case wit.U32:
		return uint32(raw), nil
	case wit.S32:
		return int32(raw), nil
	case wit.U64:
		return raw, nil
	case wit.S64:
		return int64(raw), nil
	case wit.F32:
		return math.Float32frombits(uint32(raw)), nil
	case wit.F64:
		return math.Float64frombits(raw), nil
	case wit.Char:
		return rune(uint32(raw)), nil
	default:
		return nil, errors.Unsupported(errors.PhaseBind, fmt.Sprintf("WIT type %T", t))
	}
}

// ParseArgs converts command-line arguments to Go values of the parameter
// types.
func (s *Signature) ParseArgs(args []string) ([]any, error) {
	if len(args) != len(s.Params) {
		return nil, errors.InvalidInput(errors.PhaseBind,
			fmt.Sprintf("%s takes %d arguments, got %d", s, len(s.Params), len(args)))
	}
	out := make([]any, len(args))
	for i, a := range args {
		v, err := ParseValue(s.Params[i], a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ParseValue parses the text form of a scalar value.
func ParseValue(t wit.Type, s string) (any, error) {
	s = strings.TrimSpace(s)
	var (
		v   any
		err error
	)
	switch t.(type) {
	case wit.Bool:
		v, err = strconv.ParseBool(s)
	case wit.U8, wit.U16, wit.U32:
		var n uint64
		n, err = strconv.ParseUint(s, 0, 32)
		v = uint32(n)
	case wit.S8, wit.S16, wit.S32:
		var n int64
		n, err = strconv.ParseInt(s, 0, 32)
		v = int32(n)
	case wit.U64:
		v, err = strconv.ParseUint(s, 0, 64)
	case wit.S64:
		v, err = strconv.ParseInt(s, 0, 64)
	case wit.F32:
		var f float64
		f, err = strconv.ParseFloat(s, 32)
		v = float32(f)
	case wit.F64:
		v, err = strconv.ParseFloat(s, 64)
	case wit.Char:
		v = s
	default:
		return nil, errors.Unsupported(errors.PhaseBind, fmt.Sprintf("WIT type %T", t))
	}
	if err != nil {
		return nil, errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Value(s).
			Detail("parse %s", TypeName(t)).
			Cause(err).
			Build()
	}
	return v, nil
}
