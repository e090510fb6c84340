package settings

import (
	"fmt"
	"reflect"
	"time"
)

// Getter is implemented by Instance and Proxy.
type Getter interface {
	Get(attr string) (any, error)
}

// Value resolves attr from g and converts the result to T. An optional field
// without a value yields the zero T.
func Value[T any](g Getter, attr string) (T, error) {
	var zero T
	val, err := g.Get(attr)
	if err != nil {
		return zero, err
	}
	if val == nil {
		return zero, nil
	}
	if v, ok := val.(T); ok {
		return v, nil
	}

	converted, err := convertTo(val, reflect.TypeFor[T](), DefaultTagName)
	if err != nil {
		return zero, fmt.Errorf("attribute %q: %w", attr, err)
	}
	return converted.(T), nil
}

// String retrieves attr as a string, rendering numbers, booleans and
// Stringers as text.
func (s *Instance) String(attr string) (string, error) { return Value[string](s, attr) }

// Int64 retrieves attr as an int64 from numeric types, whole floats,
// parsable strings and booleans.
func (s *Instance) Int64(attr string) (int64, error) { return Value[int64](s, attr) }

// Bool retrieves attr as a bool. Numbers are false when zero.
func (s *Instance) Bool(attr string) (bool, error) { return Value[bool](s, attr) }

// Float64 retrieves attr as a float64.
func (s *Instance) Float64(attr string) (float64, error) { return Value[float64](s, attr) }

// Duration retrieves attr as a time.Duration, parsing strings like "1m30s".
func (s *Instance) Duration(attr string) (time.Duration, error) {
	return Value[time.Duration](s, attr)
}
