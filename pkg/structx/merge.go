package structx

import (
	"fmt"
	"reflect"
)

// MergeWithDefaults builds a value from its `envDefault` tags, then overlays every
// non-zero field of v on top of it. Adapter configs call it so that a partially
// filled YAML section still gets sane defaults.
func MergeWithDefaults[T any](v T) (T, error) {
	var def T
	if err := SetEnvDefault(&def); err != nil {
		return def, err
	}
	return MergeStructs[T](def, v)
}

// MergeStructs Merges multiple structs, where later non-zero fields overwrite earlier ones.
// Nested structs are merged field by field instead of being replaced wholesale.
func MergeStructs[T any](v ...T) (T, error) {
	var zero T
	if len(v) == 0 {
		return zero, fmt.Errorf("no values provided")
	}
	first := reflect.ValueOf(v[0])
	var result reflect.Value
	switch first.Kind() {
	case reflect.Ptr:
		if first.Elem().Kind() != reflect.Struct {
			return zero, fmt.Errorf("pointer must point to struct")
		}
		result = reflect.New(first.Elem().Type())
		result.Elem().Set(first.Elem())
	case reflect.Struct:
		result = reflect.New(first.Type()).Elem()
		result.Set(first)
	default:
		return zero, fmt.Errorf("unsupported type: %s", first.Kind())
	}
	dst := result
	if dst.Kind() == reflect.Ptr {
		dst = dst.Elem()
	}
	for _, item := range v[1:] {
		src := reflect.ValueOf(item)
		if src.Kind() == reflect.Ptr {
			if src.IsNil() {
				continue
			}
			src = src.Elem()
		}
		if src.Kind() != reflect.Struct {
			continue
		}
		mergeInto(dst, src)
	}
	return result.Interface().(T), nil
}

func mergeInto(dst, src reflect.Value) {
	for i := 0; i < src.NumField(); i++ {
		if !dst.Field(i).CanSet() {
			continue
		}
		field := src.Field(i)
		if field.Kind() == reflect.Struct && field.Type().NumField() > 0 && isPlainStruct(field.Type()) {
			mergeInto(dst.Field(i), field)
			continue
		}
		if !field.IsZero() {
			dst.Field(i).Set(field)
		}
	}
}

// isPlainStruct reports whether t only has exported fields, which excludes values
// such as time.Time that must be copied as a whole.
func isPlainStruct(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			return false
		}
	}
	return true
}
