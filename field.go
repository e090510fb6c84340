package settings

import (
	"fmt"
	"reflect"
	"sync"
)

// marker is a sentinel value that can never collide with user data.
type marker struct{ name string }

func (m *marker) String() string { return m.name }

// Retrieve, used as a field default or as a value assigned to an instance,
// forces the field's retriever to run instead of treating the value as
// already resolved.
var Retrieve any = &marker{name: "settings.Retrieve"}

var noDefault any = &marker{name: "settings.NoDefault"}

// Converter turns a raw value into the declared type of a field.
// Returning a nil value signals that the field should be treated as unset.
type Converter func(raw any) (any, error)

// Field describes one configurable attribute of a settings class.
// Fields are built once when the class is defined. Only the default value can
// change afterwards, through Class.SetDefault.
type Field struct {
	name      string
	attr      string
	typ       reflect.Type
	converter Converter
	retriever Retriever
	required  bool
	source    *Class
	getter    *PropertyRetriever

	mu  sync.RWMutex
	def any
}

// FieldOption customizes a field. Options given to Builder.WithField are
// merged over whatever the shape declares for the same attribute.
type FieldOption func(*Field)

func newField(attr string) *Field {
	return &Field{
		name:     attr,
		attr:     attr,
		required: true,
		def:      noDefault,
	}
}

// Name sets the lookup name used by retrievers (defaults to the attribute name).
func Name(name string) FieldOption {
	return func(f *Field) { f.name = name }
}

// TypeOf sets the declared type of a field to T.
func TypeOf[T any]() FieldOption {
	return TypeHint(reflect.TypeFor[T]())
}

// TypeHint sets the declared type of a field.
func TypeHint(t reflect.Type) FieldOption {
	return func(f *Field) { f.typ = t }
}

// Default sets the default value. It may be a literal, a *Ref forward
// reference, or Retrieve.
func Default(v any) FieldOption {
	return func(f *Field) { f.def = v }
}

// NoDefault removes any default value.
func NoDefault() FieldOption {
	return func(f *Field) { f.def = noDefault }
}

// WithConverter sets a custom converter.
func WithConverter(c Converter) FieldOption {
	return func(f *Field) { f.converter = c }
}

// WithRetriever sets the retriever used for this field instead of the class
// default retrievers.
func WithRetriever(r Retriever) FieldOption {
	return func(f *Field) { f.retriever = r }
}

// Required marks the field as required (the default).
func Required() FieldOption {
	return func(f *Field) { f.required = true }
}

// Optional marks the field as not required; unresolved reads return nil.
func Optional() FieldOption {
	return func(f *Field) { f.required = false }
}

// Name returns the lookup name.
func (f *Field) Name() string { return f.name }

// Attr returns the attribute name the field is declared under.
func (f *Field) Attr() string { return f.attr }

// Required reports whether reading an unresolved value fails.
func (f *Field) Required() bool { return f.required }

// Converter returns the custom converter, if any.
func (f *Field) Converter() Converter { return f.converter }

// Retriever returns the retriever responsible for this field.
func (f *Field) Retriever() Retriever { return f.retriever }

// SourceClass returns the class that originally declared the field.
func (f *Field) SourceClass() *Class { return f.source }

// IsProperty reports whether the field is backed by a read-only getter.
func (f *Field) IsProperty() bool { return f.getter != nil }

// Type returns the declared type. A field without its own type hint whose
// default forwards to another field adopts that field's type. A cycle of
// such forwards has no type.
func (f *Field) Type() reflect.Type {
	return f.typeVia(nil)
}

func (f *Field) typeVia(seen map[*Field]bool) reflect.Type {
	if f.typ != nil {
		return f.typ
	}
	ref, ok := f.Default().(*Ref)
	if !ok {
		return nil
	}
	if seen[f] {
		return nil
	}
	if seen == nil {
		seen = make(map[*Field]bool)
	}
	seen[f] = true
	return ref.fieldType(seen)
}

// Default returns the current default value, or nil when there is none.
func (f *Field) Default() any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.def == noDefault {
		return nil
	}
	return f.def
}

// HasDefault reports whether a default value (including Retrieve) is set.
func (f *Field) HasDefault() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.def != noDefault && f.def != nil
}

func (f *Field) setDefault(v any) {
	f.mu.Lock()
	f.def = v
	f.mu.Unlock()
}

func (f *Field) className() string {
	if f.source == nil {
		return "<undefined>"
	}
	return f.source.Name()
}

// clone copies the descriptor so options can be merged without touching an
// inherited field.
func (f *Field) clone() *Field {
	c := &Field{
		name:      f.name,
		attr:      f.attr,
		typ:       f.typ,
		converter: f.converter,
		retriever: f.retriever,
		required:  f.required,
		source:    f.source,
		getter:    f.getter,
	}
	c.def = f.Default()
	if !f.HasDefault() {
		c.def = noDefault
	}
	return c
}

// merge applies opts. Attribute name and source class never change.
func (f *Field) merge(opts ...FieldOption) {
	attr, source := f.attr, f.source
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	f.attr, f.source = attr, source
}

func (f *Field) String() string {
	return fmt.Sprintf("Field(name=%q, type=%s, class=%s, required=%t)", f.name, typeName(f.Type()), f.className(), f.required)
}

// Ref is a lazy reference to a field of a settings class. It is resolved each
// time it is read, against the current instance of the target class, so the
// target may be defined after the reference is created.
type Ref struct {
	class *Class
	shape reflect.Type
	attr  string
	self  bool
}

// RefOf references attribute attr of the class defined from shape S.
func RefOf[S any](attr string) *Ref {
	return &Ref{shape: reflect.TypeFor[S](), attr: attr}
}

// Self references another attribute of the instance being read.
func Self(attr string) *Ref {
	return &Ref{attr: attr, self: true}
}

// Attr returns the referenced attribute name.
func (r *Ref) Attr() string { return r.attr }

// Value resolves the reference through the default manager.
func (r *Ref) Value() (any, error) {
	return r.resolve(nil, nil)
}

func (r *Ref) target() (*Class, error) {
	c := r.class
	if c == nil && r.shape != nil {
		c = lookupClass(r.shape)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: reference to %s.%s", ErrUnknownField, typeName(r.shape), r.attr)
	}
	if _, ok := c.Field(r.attr); !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, c.Name(), r.attr)
	}
	return c, nil
}

func (r *Ref) resolve(from *Instance, chain *resolving) (any, error) {
	if r.self {
		if from == nil {
			return nil, fmt.Errorf("%w: self reference %q used outside an instance", ErrUnknownAttribute, r.attr)
		}
		return from.get(r.attr, chain)
	}
	c, err := r.target()
	if err != nil {
		return nil, err
	}
	m := DefaultManager()
	if from != nil {
		m = from.manager()
	}
	return m.Current(c).get(r.attr, chain)
}

func (r *Ref) fieldType(seen map[*Field]bool) reflect.Type {
	if r.self {
		return nil
	}
	c, err := r.target()
	if err != nil {
		return nil
	}
	f, _ := c.Field(r.attr)
	return f.typeVia(seen)
}

func (r *Ref) String() string {
	switch {
	case r.self:
		return fmt.Sprintf("Ref(self.%s)", r.attr)
	case r.class != nil:
		return fmt.Sprintf("Ref(%s.%s)", r.class.Name(), r.attr)
	default:
		return fmt.Sprintf("Ref(%s.%s)", typeName(r.shape), r.attr)
	}
}
