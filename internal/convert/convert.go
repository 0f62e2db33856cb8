// Package convert coerces stored or externally supplied values into the typed
// inputs activities expect. Values that went through a JSON round trip (numbers
// as float64, objects as maps, timestamps as strings) are the common case.
package convert

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var (
	durationType = reflect.TypeFor[time.Duration]()
	timeType     = reflect.TypeFor[time.Time]()
)

// ConversionError reports a value that cannot be coerced to the requested type.
type ConversionError struct {
	Value  any
	Target reflect.Type
	Cause  error
}

func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot convert %T to %s: %s", e.Value, e.Target, e.Cause.Error())
	}
	return fmt.Sprintf("cannot convert %T to %s", e.Value, e.Target)
}

func (e *ConversionError) Unwrap() error {
	return e.Cause
}

// To converts value into T.
func To[T any](value any) (T, error) {
	var zero T
	out, err := ToType(value, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	return out.(T), nil
}

// ToType converts value into the target type. A nil value yields the target's zero value.
func ToType(value any, target reflect.Type) (any, error) {
	if value == nil {
		return reflect.Zero(target).Interface(), nil
	}

	source := reflect.TypeOf(value)
	if source == target || source.AssignableTo(target) {
		if target.Kind() == reflect.Interface {
			return value, nil
		}
		return reflect.ValueOf(value).Convert(target).Interface(), nil
	}

	out, err := convert(value, target)
	if err != nil {
		return nil, &ConversionError{Value: value, Target: target, Cause: err}
	}
	return out, nil
}

func convert(value any, target reflect.Type) (any, error) {
	switch target {
	case durationType:
		d, err := cast.ToDurationE(value)
		return d, err
	case timeType:
		t, err := cast.ToTimeE(value)
		return t, err
	}

	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(target).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(value)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(target).Interface(), nil
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(f).Convert(target).Interface(), nil
	case reflect.Bool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(b).Convert(target).Interface(), nil
	case reflect.String:
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(s).Convert(target).Interface(), nil
	}

	return viaJSON(value, target)
}

// viaJSON handles structs, maps and slices: JSON text is decoded directly,
// anything else is re-encoded and decoded into the target shape.
func viaJSON(value any, target reflect.Type) (any, error) {
	var raw []byte
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			return nil, fmt.Errorf("string is not a JSON document")
		}
		raw = []byte(trimmed)
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode source: %w", err)
		}
		raw = b
	}

	ptr := reflect.New(target)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode into %s: %w", target, err)
	}
	return ptr.Elem().Interface(), nil
}

// Normalize round-trips a value through JSON so that it has the shape it will
// have after being persisted (maps, float64 numbers, strings).
func Normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
