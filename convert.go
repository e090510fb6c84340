package settings

import (
	"encoding"
	"fmt"
	"math"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	timeType            = reflect.TypeFor[time.Time]()
	durationType        = reflect.TypeFor[time.Duration]()
	decimalType         = reflect.TypeFor[decimal.Decimal]()
	ipNetType           = reflect.TypeFor[net.IPNet]()
	urlType             = reflect.TypeFor[url.URL]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	stringType          = reflect.TypeFor[string]()
)

// timeLayouts are tried in order when parsing textual timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// convertField converts raw to the declared type of f. A nil result with a
// nil error means the value is absent.
func convertField(f *Field, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	t := f.Type()
	if t != nil && matchesType(raw, t) {
		return raw, nil
	}

	if f.converter != nil {
		v, err := f.converter(raw)
		if err != nil {
			return nil, f.conversionError(raw, err)
		}
		if v == nil && f.required {
			return nil, f.conversionError(raw, ErrNilConversion)
		}
		return v, nil
	}

	if t == nil {
		return raw, nil
	}

	v, err := convertTo(raw, t, f.tagName())
	if err != nil {
		return nil, f.conversionError(raw, err)
	}
	return v, nil
}

func (f *Field) conversionError(raw any, err error) error {
	return &ConversionError{
		Field: f.name,
		Type:  f.Type(),
		Class: f.className(),
		Value: raw,
		Err:   err,
	}
}

func (f *Field) tagName() string {
	if f.source == nil || f.source.tagName == "" {
		return DefaultTagName
	}
	return f.source.tagName
}

// matchesType reports whether v can be returned as-is for declared type t.
func matchesType(v any, t reflect.Type) bool {
	vt := reflect.TypeOf(v)
	if vt == t {
		return true
	}
	return t.Kind() == reflect.Interface && vt.Implements(t)
}

// convertTo converts raw to type t using the built-in conversions.
func convertTo(raw any, t reflect.Type, tagName string) (any, error) {
	if raw == nil {
		return reflect.Zero(t).Interface(), nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Type() == t {
		return raw, nil
	}
	if t.Kind() == reflect.Interface {
		if rv.Type().Implements(t) {
			return raw, nil
		}
		return nil, fmt.Errorf("type %T does not implement %s", raw, t)
	}

	switch t {
	case durationType:
		return toDuration(raw)
	case timeType:
		return toTime(raw)
	case decimalType:
		return toDecimal(raw)
	case ipNetType, urlType:
		s, ok := textOf(raw)
		if !ok {
			return nil, fmt.Errorf("cannot convert type %T to %s", raw, t)
		}
		return netHook(t)(stringType, t, s)
	}

	if s, ok := textOf(raw); ok && reflect.PointerTo(t).Implements(textUnmarshalerType) {
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return nil, err
		}
		return ptr.Elem().Interface(), nil
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		b, err := toBool(raw)
		if err != nil {
			return nil, err
		}
		out.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		if out.OverflowInt(i) {
			return nil, fmt.Errorf("value %d overflows %s", i, t)
		}
		out.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := toUint64(raw)
		if err != nil {
			return nil, err
		}
		if out.OverflowUint(u) {
			return nil, fmt.Errorf("value %d overflows %s", u, t)
		}
		out.SetUint(u)

	case reflect.Float32, reflect.Float64:
		fl, err := toFloat64(raw)
		if err != nil {
			return nil, err
		}
		if out.OverflowFloat(fl) {
			return nil, fmt.Errorf("value %g overflows %s", fl, t)
		}
		out.SetFloat(fl)

	case reflect.String:
		s, err := toString(raw)
		if err != nil {
			return nil, err
		}
		out.SetString(s)

	case reflect.Ptr:
		if rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return reflect.Zero(t).Interface(), nil
			}
			raw = rv.Elem().Interface()
		}
		elem, err := convertTo(raw, t.Elem(), tagName)
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(reflect.ValueOf(elem))
		return ptr.Interface(), nil

	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return decodeComposite(raw, t, tagName)

	default:
		if rv.Type().ConvertibleTo(t) {
			return rv.Convert(t).Interface(), nil
		}
		return nil, fmt.Errorf("cannot convert type %T to %s", raw, t)
	}

	return out.Interface(), nil
}

// textOf returns the textual form of string-like values.
func textOf(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

// toBool accepts booleans, numbers (0 is false) and the usual textual tokens.
func toBool(raw any) (bool, error) {
	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		s := strings.ToLower(strings.TrimSpace(v.String()))
		switch s {
		case "1", "t", "true", "y", "yes", "on":
			return true, nil
		case "0", "f", "false", "n", "no", "off":
			return false, nil
		}
		return false, fmt.Errorf("cannot convert string %q to bool", v.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return v.Float() != 0, nil
	}
	return false, fmt.Errorf("cannot convert type %T to bool", raw)
}

// toInt64 accepts integers, whole floats, booleans and parsable strings.
func toInt64(raw any) (int64, error) {
	if d, ok := raw.(decimal.Decimal); ok {
		if !d.IsInteger() {
			return 0, fmt.Errorf("cannot convert decimal %s to integer without truncation", d)
		}
		return d.IntPart(), nil
	}

	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("cannot convert unsigned integer %d to int64: overflow", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return wholeFloat(v.Float())
	case reflect.String:
		s := strings.TrimSpace(v.String())
		i, err := strconv.ParseInt(s, 0, 64) // base 0 accepts 0x, 0o and 0b prefixes
		if err == nil {
			return i, nil
		}
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return wholeFloat(f)
		}
		return 0, fmt.Errorf("cannot convert string %q to integer: %w", v.String(), err)
	case reflect.Bool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot convert type %T to integer", raw)
}

func wholeFloat(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("cannot convert %g to integer without truncation", f)
	}
	return int64(f), nil
}

func toUint64(raw any) (uint64, error) {
	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), nil
	case reflect.String:
		u, err := strconv.ParseUint(strings.TrimSpace(v.String()), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to unsigned integer: %w", v.String(), err)
		}
		return u, nil
	}
	i, err := toInt64(raw)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("cannot convert negative value %d to unsigned integer", i)
	}
	return uint64(i), nil
}

// toFloat64 accepts numbers, booleans, decimals and parsable strings.
func toFloat64(raw any) (float64, error) {
	if d, ok := raw.(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f, nil
	}

	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), nil
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to float: %w", v.String(), err)
		}
		return f, nil
	case reflect.Bool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot convert type %T to float", raw)
}

// toString renders scalars, byte slices, Stringers and errors as text.
func toString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case error:
		return v.Error(), nil
	}

	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	}
	return "", fmt.Errorf("cannot convert type %T to string", raw)
}

func toDuration(raw any) (time.Duration, error) {
	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(strings.TrimSpace(v.String()))
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to duration: %w", v.String(), err)
		}
		return d, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := toInt64(raw)
		return time.Duration(i), err
	case reflect.Float32, reflect.Float64:
		return time.Duration(v.Float()), nil
	}
	return 0, fmt.Errorf("cannot convert type %T to duration", raw)
}

// toTime parses ISO-like timestamps and dates; integers are Unix seconds.
func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	}
	s, ok := textOf(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("cannot convert type %T to time", raw)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date or timestamp", s)
}

// toDecimal accepts textual and numeric input.
func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case *decimal.Decimal:
		if v != nil {
			return *v, nil
		}
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return decimal.NewFromInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return decimal.NewFromString(strconv.FormatUint(rv.Uint(), 10))
	}

	s, err := toString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("cannot convert type %T to decimal", raw)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("cannot convert %q to decimal: %w", s, err)
	}
	return d, nil
}

// Enum returns a converter that looks up members of an enumeration by value,
// or by name when the raw value is a string matching a member's text form.
func Enum[T comparable](members ...T) Converter {
	t := reflect.TypeFor[T]()
	return func(raw any) (any, error) {
		if s, ok := textOf(raw); ok {
			for _, m := range members {
				if fmt.Sprint(m) == s {
					return m, nil
				}
			}
		}
		v, err := convertTo(raw, t, DefaultTagName)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m == v.(T) {
				return m, nil
			}
		}
		return nil, fmt.Errorf("%v is not a valid %s", raw, t)
	}
}
