package plugin

import (
	"context"
	"reflect"
	"strings"
	"unicode"

	"github.com/wippyai/wrap-runtime/codec"
	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/errors"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	invokerType = reflect.TypeOf((*core.Invoker)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	argsMapType = reflect.TypeOf(map[string]any(nil))
)

// FromModule registers every exported method of v as a plugin method.
// Method names are converted from PascalCase to camelCase
// (SampleMethod -> sampleMethod, HTTPGet -> httpGet).
//
// Supported signatures, where Args is map[string]any, a struct or a
// pointer to a struct decoded from the argument map by msgpack tags:
//
//	func(ctx context.Context) (R, error)
//	func(ctx context.Context, args Args) (R, error)
//	func(ctx context.Context, args Args, invoker core.Invoker) (R, error)
//
// A method may also return only an error.
func FromModule(v any, opts ...Option) (*Package, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, errors.InvalidInput(errors.PhaseLoad, "plugin module cannot be nil")
	}
	rt := rv.Type()

	methods := make(map[string]Method, rt.NumMethod())
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !m.IsExported() {
			continue
		}
		name := toCamelCase(m.Name)
		adapted, err := adapt(name, rv.Method(i))
		if err != nil {
			return nil, err
		}
		methods[name] = adapted
	}
	if len(methods) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, rt.String()+" has no exported methods")
	}

	return NewPackage(methods, append([]Option{WithName(moduleName(rt))}, opts...)...), nil
}

func moduleName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "plugin"
	}
	return toCamelCase(t.Name())
}

func adapt(name string, fn reflect.Value) (Method, error) {
	t := fn.Type()
	bad := func(detail string) error {
		return errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
			Path(name).
			Type(t.String()).
			Detail("%s", detail).
			Build()
	}

	if t.NumIn() < 1 || t.NumIn() > 3 || t.In(0) != contextType {
		return nil, bad("first parameter must be context.Context, followed by optional args and invoker")
	}
	var argsType reflect.Type
	if t.NumIn() >= 2 {
		argsType = t.In(1)
		if !validArgsType(argsType) {
			return nil, bad("args must be map[string]any or a struct")
		}
	}
	if t.NumIn() == 3 && t.In(2) != invokerType {
		return nil, bad("third parameter must be core.Invoker")
	}

	switch {
	case t.NumOut() == 1 && t.Out(0) == errorType:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return nil, bad("results must be (R, error) or error")
	}

	return func(ctx context.Context, args map[string]any, invoker core.Invoker) (any, error) {
		in := []reflect.Value{reflect.ValueOf(ctx)}
		if argsType != nil {
			av, err := argsValue(name, argsType, args)
			if err != nil {
				return nil, err
			}
			in = append(in, av)
		}
		if t.NumIn() == 3 {
			iv := reflect.Zero(invokerType)
			if invoker != nil {
				iv = reflect.ValueOf(invoker)
			}
			in = append(in, iv)
		}

		out := fn.Call(in)
		errv := out[len(out)-1]
		if !errv.IsNil() {
			return nil, errv.Interface().(error)
		}
		if len(out) == 1 {
			return nil, nil
		}
		return out[0].Interface(), nil
	}, nil
}

func validArgsType(t reflect.Type) bool {
	if t == argsMapType {
		return true
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func argsValue(name string, t reflect.Type, args map[string]any) (reflect.Value, error) {
	if t == argsMapType {
		return reflect.ValueOf(args), nil
	}

	data, err := codec.Marshal(args)
	if err != nil {
		return reflect.Value{}, err
	}

	ptr := t.Kind() == reflect.Pointer
	target := t
	if ptr {
		target = t.Elem()
	}
	pv := reflect.New(target)
	if err := codec.UnmarshalInto(data, pv.Interface()); err != nil {
		return reflect.Value{}, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Path(name, "args").
			Type(target.String()).
			Cause(err).
			Detail("decode arguments").
			Build()
	}
	if ptr {
		return pv, nil
	}
	return pv.Elem(), nil
}

// toCamelCase lower-cases the leading word of a PascalCase name. Acronyms
// are folded: GetHTTPClient -> getHttpClient.
func toCamelCase(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			result.WriteRune(r)
			continue
		}

		acronymEnd := i + 1
		for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
			acronymEnd++
		}
		if acronymEnd > i+1 && acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
			acronymEnd--
		}

		if i == 0 {
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
		for j := i + 1; j < acronymEnd; j++ {
			result.WriteRune(unicode.ToLower(runes[j]))
		}
		i = acronymEnd - 1
	}
	return result.String()
}
