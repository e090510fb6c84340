package settings

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// FlagSet creates a pflag.FlagSet with one flag per field. Flag names are the
// kebab-cased lookup names ("APIToken" becomes --api-token, "server.port"
// stays --server.port). Computed properties get no flag.
func (c *Class) FlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	for _, f := range c.Fields() {
		if f.IsProperty() {
			continue
		}
		flag := flagName(f.Name())
		if !validFlagName(flag) || fs.Lookup(flag) != nil {
			continue
		}
		usage := fmt.Sprintf("%s.%s", c.name, f.attr)

		t := f.Type()
		switch {
		case t == nil:
			fs.String(flag, flagDefault[string](f), usage)
		case t == durationType:
			fs.Duration(flag, flagDefault[time.Duration](f), usage)
		case t.Kind() == reflect.Bool:
			fs.Bool(flag, flagDefault[bool](f), usage)
		case t.Kind() >= reflect.Int && t.Kind() <= reflect.Int64:
			fs.Int64(flag, flagDefault[int64](f), usage)
		case t.Kind() >= reflect.Uint && t.Kind() <= reflect.Uint64:
			fs.Uint64(flag, flagDefault[uint64](f), usage)
		case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
			fs.Float64(flag, flagDefault[float64](f), usage)
		case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String:
			fs.StringSlice(flag, flagDefault[[]string](f), usage)
		default:
			fs.String(flag, flagDefault[string](f), usage)
		}
	}

	return fs
}

// flagDefault renders a literal field default as T for help output. Lazy
// defaults are not resolved.
func flagDefault[T any](f *Field) T {
	var zero T
	def := f.Default()
	if def == nil || def == Retrieve || isRef(def) {
		return zero
	}
	if v, ok := def.(T); ok {
		return v
	}
	v, err := convertTo(def, reflect.TypeFor[T](), DefaultTagName)
	if err != nil {
		return zero
	}
	return v.(T)
}

func validFlagName(name string) bool {
	for _, segment := range strings.Split(name, ".") {
		if !isValidKeySegment(segment) {
			return false
		}
	}
	return true
}

// FlagRetriever serves values of flags that were explicitly set on the
// command line. Flags left at their default report no value, so the rest of
// the resolution order still applies.
type FlagRetriever struct {
	Flags *pflag.FlagSet
}

// NewFlagRetriever wraps a parsed flag set.
func NewFlagRetriever(fs *pflag.FlagSet) *FlagRetriever {
	return &FlagRetriever{Flags: fs}
}

func (r *FlagRetriever) Retrieve(f *Field, _ *Instance) (any, bool, error) {
	if r.Flags == nil {
		return nil, false, nil
	}
	fl := r.Flags.Lookup(flagName(f.Name()))
	if fl == nil || !fl.Changed {
		return nil, false, nil
	}
	if sv, ok := fl.Value.(pflag.SliceValue); ok {
		return sv.GetSlice(), true, nil
	}
	return fl.Value.String(), true, nil
}
