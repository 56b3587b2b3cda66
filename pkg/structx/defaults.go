package structx

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// SetEnvDefault applies `envDefault` tag values to the zero fields of s.
func SetEnvDefault(s any) error {
	return (&DefaultSetter{TagName: "envDefault", Separator: ","}).Set(s)
}

// DefaultSetter fills zero-valued struct fields from a struct tag.
type DefaultSetter struct {
	TagName   string // tag holding the default
	Separator string // separator for slice defaults
}

// Set applies defaults to s, which must be a pointer to a struct.
func (sd *DefaultSetter) Set(s any) error {
	v := reflect.ValueOf(s)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("expected pointer to struct, got %T", s)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("expected pointer to struct, got %T", s)
	}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := sd.Set(field.Addr().Interface()); err != nil {
				return err
			}
			continue
		}
		tag := sf.Tag.Get(sd.TagName)
		if tag == "" || !field.IsZero() {
			continue
		}
		if field.Kind() == reflect.Slice {
			parts := strings.Split(tag, sd.Separator)
			slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
			for j, part := range parts {
				if err := setScalar(slice.Index(j), strings.TrimSpace(part)); err != nil {
					return fmt.Errorf("field %s: %w", sf.Name, err)
				}
			}
			field.Set(slice)
			continue
		}
		if field.Kind() == reflect.Map {
			tmp := reflect.New(field.Type())
			if err := json.Unmarshal([]byte(tag), tmp.Interface()); err != nil {
				return fmt.Errorf("field %s: %w", sf.Name, err)
			}
			field.Set(tmp.Elem())
			continue
		}
		if err := setScalar(field, tag); err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
	}
	return nil
}

func setScalar(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(val)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(val)
	case reflect.Float32, reflect.Float64:
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(val)
	case reflect.Bool:
		val, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(val)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}
