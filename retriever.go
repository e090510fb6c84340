package settings

import (
	"fmt"
	"reflect"
	"strings"
)

// Retriever produces raw values for fields that have no instance-level value.
// A retriever reports absence with ok == false (or a nil value) and returns an
// error only when the source itself failed.
type Retriever interface {
	Retrieve(f *Field, s *Instance) (value any, ok bool, err error)
}

// RetrieverFunc adapts an ordinary function to the Retriever interface.
type RetrieverFunc func(f *Field, s *Instance) (any, bool, error)

// Retrieve calls fn(f, s).
func (fn RetrieverFunc) Retrieve(f *Field, s *Instance) (any, bool, error) {
	return fn(f, s)
}

// DefaultValueRetriever returns the field's stored default. It is the
// retriever of classes that configure no default retrievers.
type DefaultValueRetriever struct{}

func (DefaultValueRetriever) Retrieve(f *Field, _ *Instance) (any, bool, error) {
	v := f.Default()
	if v == nil || v == Retrieve {
		return nil, false, nil
	}
	return v, true, nil
}

// Chain tries each retriever in order and returns the first value found.
type Chain []Retriever

func (c Chain) Retrieve(f *Field, s *Instance) (any, bool, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		v, ok, err := r.Retrieve(f, s)
		if err != nil {
			return nil, false, err
		}
		if ok && v != nil {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// PropertyGetter computes a value from the instance it is read on.
type PropertyGetter func(s *Instance) (any, error)

// PropertyRetriever wraps a read-only computed property. The getter is bound
// to whichever instance the field is read from.
type PropertyRetriever struct {
	Getter PropertyGetter
	// Method is the shape method the getter was built from, when there is one.
	Method *reflect.Method
}

func (p *PropertyRetriever) Retrieve(_ *Field, s *Instance) (any, bool, error) {
	v, err := p.Getter(s)
	if err != nil {
		return nil, false, err
	}
	if isNil(v) {
		return nil, false, nil
	}
	return v, true, nil
}

// MapRetriever serves values from a static map keyed by lookup name.
// Nested maps can be addressed with dot-separated names.
type MapRetriever map[string]any

func (m MapRetriever) Retrieve(f *Field, _ *Instance) (any, bool, error) {
	if v, ok := m[f.Name()]; ok {
		return v, v != nil, nil
	}
	if !strings.Contains(f.Name(), ".") {
		return nil, false, nil
	}
	v := navigateToPath(map[string]any(m), f.Name())
	return v, v != nil, nil
}

// newMethodGetter binds a property method of the shape to a getter.
// The method has the form func(S) M(*Instance) R or func(S) M(*Instance) (R, error).
func newMethodGetter(receiver reflect.Value, m reflect.Method) PropertyGetter {
	return func(s *Instance) (any, error) {
		out := m.Func.Call([]reflect.Value{receiver, reflect.ValueOf(s)})
		if len(out) == 2 && !out[1].IsNil() {
			return nil, fmt.Errorf("property %s: %w", m.Name, out[1].Interface().(error))
		}
		return out[0].Interface(), nil
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
