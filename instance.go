package settings

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Instance holds explicit values for a settings class and resolves every
// other field lazily. An instance pushed as a scoped override keeps a
// reference to the instance it supersedes and consults it for unset fields.
type Instance struct {
	class *Class
	mgr   *Manager

	mu     sync.RWMutex
	values map[string]any
	parent *Instance
	active bool
}

// Class returns the class of the instance.
func (s *Instance) Class() *Class { return s.class }

// Parent returns the instance this one supersedes, if it is a pushed override.
func (s *Instance) Parent() *Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parent
}

func (s *Instance) manager() *Manager {
	if s.mgr != nil {
		return s.mgr
	}
	return DefaultManager()
}

// Set stores v as the explicit value of attr. The value is kept as given and
// converted when read; a value already of the declared type is returned as
// the same object. Setting Retrieve forces the field to be retrieved.
func (s *Instance) Set(attr string, v any) {
	s.mu.Lock()
	s.values[attr] = v
	s.mu.Unlock()
}

// Unset removes the explicit value of attr.
func (s *Instance) Unset(attr string) {
	s.mu.Lock()
	delete(s.values, attr)
	s.mu.Unlock()
}

// Lookup returns the explicit value stored for attr on this instance.
func (s *Instance) Lookup(attr string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[attr]
	return v, ok
}

// Get resolves attr. For fields the first available source wins: the value
// set on this instance or the nearest instance it supersedes, the field's
// retriever, then the default. Retrievers, property getters and references
// always see this instance. A required field with no value yields a
// *MissingValueError; an optional one yields nil.
func (s *Instance) Get(attr string) (any, error) {
	return s.get(attr, nil)
}

func (s *Instance) get(attr string, chain *resolving) (any, error) {
	if chain.has(s, attr) {
		return nil, fmt.Errorf("%w: %s", ErrReferenceCycle, chain.path(s, attr))
	}
	chain = &resolving{inst: s, attr: attr, next: chain}

	if f, ok := s.class.Field(attr); ok {
		return s.resolve(f, chain)
	}

	if v, ok := s.Lookup(attr); ok {
		return v, nil
	}
	if v, ok := s.class.plainValue(attr); ok && v != Retrieve {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s has no field or value %q", ErrUnknownAttribute, s.class.name, attr)
}

// MustGet is like Get but panics on error.
func (s *Instance) MustGet(attr string) any {
	v, err := s.Get(attr)
	if err != nil {
		panic(err)
	}
	return v
}

// resolve finds the raw value of f and converts it. Explicit values are
// looked up on s and then on the instances it supersedes; retrievers,
// defaults and references always run against s.
func (s *Instance) resolve(f *Field, chain *resolving) (any, error) {
	owner, raw, explicit := s.explicitValue(f.attr)
	plain := false
	if !explicit {
		raw, plain = s.class.plainValue(f.attr)
	}

	if (explicit || plain) && raw != Retrieve {
		if raw == nil {
			return s.absent(f, "value is nil")
		}
		v, err := s.materialize(f, raw, chain)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return s.absent(f, "converter returned no value")
		}
		if explicit && !isRef(raw) && !sameValue(raw, v) {
			owner.cache(f.attr, raw, v)
		}
		s.trace(f, "instance")
		return v, nil
	}

	r := f.retriever
	if r == nil {
		r = s.class.retriever
	}
	if r != nil {
		rv, ok, err := r.Retrieve(f, s)
		if err != nil {
			return nil, fmt.Errorf("retrieve %s: %w", f, err)
		}
		if ok && !isNil(rv) {
			v, err := s.materialize(f, rv, chain)
			if err != nil {
				return nil, err
			}
			if v != nil {
				s.trace(f, "retriever")
				return v, nil
			}
		}
	}

	if def := f.Default(); def != nil && def != Retrieve {
		v, err := s.materialize(f, def, chain)
		if err != nil {
			return nil, err
		}
		if v != nil {
			s.trace(f, "default")
			return v, nil
		}
	}

	return s.absent(f, "no value from any source")
}

// explicitValue returns the value set for attr on s or on the nearest
// superseded instance that has one. A Retrieve marker stops the walk.
func (s *Instance) explicitValue(attr string) (*Instance, any, bool) {
	for cur := s; cur != nil; cur = cur.Parent() {
		if v, ok := cur.Lookup(attr); ok {
			return cur, v, true
		}
	}
	return nil, nil, false
}

// materialize resolves forward references and converts the result.
func (s *Instance) materialize(f *Field, raw any, chain *resolving) (any, error) {
	if ref, ok := raw.(*Ref); ok {
		v, err := ref.resolve(s, chain)
		if err != nil {
			return nil, err
		}
		raw = v
	}
	return convertField(f, raw)
}

// absent yields nil for optional fields and a MissingValueError otherwise.
func (s *Instance) absent(f *Field, reason string) (any, error) {
	if !f.required {
		return nil, nil
	}
	return nil, &MissingValueError{
		Field:  f.name,
		Type:   f.Type(),
		Class:  f.className(),
		Reason: reason,
	}
}

// cache replaces the raw explicit value with its converted form, unless the
// value was changed concurrently.
func (s *Instance) cache(attr string, raw, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.values[attr]; ok && sameValue(cur, raw) {
		s.values[attr] = v
	}
}

func (s *Instance) trace(f *Field, source string) {
	s.manager().logger.Trace().
		Str("class", s.class.name).
		Str("field", f.name).
		Str("source", source).
		Msg("setting resolved")
}

// Debug returns a human-readable description of every field and where its
// value currently comes from.
func (s *Instance) Debug() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Settings %s:\n", s.class.name)
	for _, f := range s.class.Fields() {
		fmt.Fprintf(&b, "  %s (%s):\n", f.attr, f.name)
		if raw, ok := s.Lookup(f.attr); ok {
			fmt.Fprintf(&b, "    Explicit: %v\n", raw)
		}
		if f.HasDefault() {
			fmt.Fprintf(&b, "    Default: %v\n", f.Default())
		}
		v, err := s.Get(f.attr)
		if err != nil {
			fmt.Fprintf(&b, "    Error: %v\n", err)
			continue
		}
		fmt.Fprintf(&b, "    Current: %v\n", v)
	}

	var extra []string
	s.mu.RLock()
	for attr := range s.values {
		if _, ok := s.class.Field(attr); !ok {
			extra = append(extra, attr)
		}
	}
	s.mu.RUnlock()
	sort.Strings(extra)
	for _, attr := range extra {
		v, _ := s.Lookup(attr)
		fmt.Fprintf(&b, "  %s: %v\n", attr, v)
	}
	return b.String()
}

// resolving is the stack of attributes being read, used to stop reference
// cycles before they exhaust the goroutine stack.
type resolving struct {
	inst *Instance
	attr string
	next *resolving
}

func (r *resolving) has(s *Instance, attr string) bool {
	for ; r != nil; r = r.next {
		if r.inst == s && r.attr == attr {
			return true
		}
	}
	return false
}

func (r *resolving) path(s *Instance, attr string) string {
	steps := []string{s.class.name + "." + attr}
	for ; r != nil; r = r.next {
		steps = append(steps, r.inst.class.name+"."+r.attr)
		if r.inst == s && r.attr == attr {
			break
		}
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, " -> ")
}

func isRef(v any) bool {
	_, ok := v.(*Ref)
	return ok
}

// sameValue compares without panicking on uncomparable dynamic types.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() {
		return false
	}
	return va.Equal(vb)
}
