package settings

import (
	"fmt"
	"net"
	"net/url"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// DefaultTagName is the struct tag read from shapes and used when decoding
// composite values.
const DefaultTagName = "setting"

// decodeComposite decodes raw into a new value of struct, map, slice or
// array type t.
func decodeComposite(raw any, t reflect.Type, tagName string) (any, error) {
	out := reflect.New(t)
	if err := decodeInto(raw, out.Interface(), tagName); err != nil {
		return nil, err
	}
	return out.Elem().Interface(), nil
}

func decodeInto(raw any, target any, tagName string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          tagName,
		WeaklyTypedInput: true,
		Squash:           true,
		ZeroFields:       true,
		DecodeHook:       getDecodeHook(tagName),
	})
	if err != nil {
		return fmt.Errorf("decoder creation failed: %w", err)
	}
	return decoder.Decode(raw)
}

// Scan decodes every resolvable field of the instance into target, which must
// be a non-nil pointer to a struct or map. Keys are lookup names, so scanning
// into the shape type itself round-trips. Optional fields without a value are
// left at their zero value.
func (s *Instance) Scan(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("scan target must be non-nil pointer, got %T", target)
	}

	values := make(map[string]any)
	for _, f := range s.class.Fields() {
		v, err := s.Get(f.Attr())
		if err != nil {
			return err
		}
		if v != nil {
			values[f.Name()] = v
		}
	}

	if err := decodeInto(values, target, s.class.tagName); err != nil {
		return fmt.Errorf("scan %s: %w", s.class.Name(), err)
	}
	return nil
}

// getDecodeHook returns the composite decode hook for all type conversions
func getDecodeHook(tagName string) mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		// Network types
		stringToNetIPHookFunc(),
		netHook(ipNetType),
		netHook(urlType),

		// Standard hooks
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),

		// Scalars mapstructure's weak typing does not cover
		scalarHook(tagName),
	)
}

// stringToNetIPHookFunc handles net.IP conversion
func stringToNetIPHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(net.IP{}) {
			return data, nil
		}

		str := reflect.ValueOf(data).String()
		if len(str) > 45 { // Max IPv6 length
			return nil, fmt.Errorf("invalid IP length: %d", len(str))
		}
		ip := net.ParseIP(str)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address: %s", str)
		}
		return ip, nil
	}
}

// netHook handles net.IPNet and url.URL targets, by value or by pointer.
func netHook(want reflect.Type) mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		isPtr := t.Kind() == reflect.Ptr
		targetType := t
		if isPtr {
			targetType = t.Elem()
		}
		if targetType != want {
			return data, nil
		}

		str := reflect.ValueOf(data).String()
		var parsed any
		switch want {
		case ipNetType:
			if len(str) > 49 { // Max IPv6 CIDR length
				return nil, fmt.Errorf("invalid CIDR length: %d", len(str))
			}
			_, ipnet, err := net.ParseCIDR(str)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR: %w", err)
			}
			if !isPtr {
				return *ipnet, nil
			}
			parsed = ipnet
		case urlType:
			if len(str) > 2048 {
				return nil, fmt.Errorf("URL too long: %d bytes", len(str))
			}
			u, err := url.Parse(str)
			if err != nil {
				return nil, fmt.Errorf("invalid URL: %w", err)
			}
			if !isPtr {
				return *u, nil
			}
			parsed = u
		default:
			return data, nil
		}
		return parsed, nil
	}
}

// scalarHook routes textual input for booleans, timestamps, decimals and
// text-unmarshalable types through the same rules as top-level fields.
func scalarHook(tagName string) mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		switch {
		case t == timeType, t == decimalType, t.Kind() == reflect.Bool:
			return convertTo(data, t, tagName)
		case t != durationType && reflect.PointerTo(t).Implements(textUnmarshalerType):
			return convertTo(data, t, tagName)
		}
		return data, nil
	}
}
