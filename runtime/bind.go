package runtime

import (
	"context"
	"reflect"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-tailcall/errors"
)

// Value is a Go type with a direct core value representation.
type Value interface {
	~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Func is a typed callable of a (param x acc) (result acc) function.
type Func[A, R Value] func(ctx context.Context, arg A, acc R) (R, error)

// Bind returns a typed callable for the unit's function. A and R must map
// to the core types of the parameter and the accumulator.
func Bind[A, R Value](u *Unit) (Func[A, R], error) {
	params, results := u.def.ParamTypes(), u.def.ResultTypes()
	want := []api.ValueType{coreType[A](), coreType[R]()}
	if len(params) != 2 || len(results) != 1 || params[0] != want[0] || params[1] != want[1] || results[0] != want[1] {
		return nil, errors.TypeMismatch(errors.PhaseBind, u.Func,
			signature(want, want[1:]), signature(params, results))
	}

	return func(ctx context.Context, arg A, acc R) (R, error) {
		raw, err := u.CallRaw(ctx, encode(arg), encode(acc))
		if err != nil {
			var zero R
			return zero, err
		}
		return decode[R](raw[0]), nil
	}, nil
}

func signature(params, results []api.ValueType) string {
	s := "("
	for i, p := range params {
		if i > 0 {
			s += " "
		}
		s += api.ValueTypeName(p)
	}
	s += ") -> ("
	for i, r := range results {
		if i > 0 {
			s += " "
		}
		s += api.ValueTypeName(r)
	}
	return s + ")"
}

func coreType[T Value]() api.ValueType {
	var zero T
	switch reflect.TypeOf(zero).Kind() {
	case reflect.Int32, reflect.Uint32:
		return api.ValueTypeI32
	case reflect.Int64, reflect.Uint64:
		return api.ValueTypeI64
	case reflect.Float32:
		return api.ValueTypeF32
	default:
		return api.ValueTypeF64
	}
}

func encode[T Value](v T) uint64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int32:
		return api.EncodeI32(int32(rv.Int()))
	case reflect.Uint32:
		return api.EncodeU32(uint32(rv.Uint()))
	case reflect.Int64:
		return api.EncodeI64(rv.Int())
	case reflect.Uint64:
		return rv.Uint()
	case reflect.Float32:
		return api.EncodeF32(float32(rv.Float()))
	default:
		return api.EncodeF64(rv.Float())
	}
}

func decode[T Value](raw uint64) T {
	var zero T
	rv := reflect.New(reflect.TypeOf(zero)).Elem()
	switch rv.Kind() {
	case reflect.Int32:
		rv.SetInt(int64(api.DecodeI32(raw)))
	case reflect.Uint32:
		rv.SetUint(uint64(api.DecodeU32(raw)))
	case reflect.Int64:
		rv.SetInt(int64(raw))
	case reflect.Uint64:
		rv.SetUint(raw)
	case reflect.Float32:
		rv.SetFloat(float64(api.DecodeF32(raw)))
	default:
		rv.SetFloat(api.DecodeF64(raw))
	}
	return rv.Interface().(T)
}
