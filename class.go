package settings

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	instanceType = reflect.TypeFor[*Instance]()
	errorType    = reflect.TypeFor[error]()
)

// registry maps shape struct types to their classes.
var registry sync.Map

func lookupClass(shape reflect.Type) *Class {
	if shape == nil {
		return nil
	}
	if shape.Kind() == reflect.Ptr {
		shape = shape.Elem()
	}
	if c, ok := registry.Load(shape); ok {
		return c.(*Class)
	}
	return nil
}

// ClassOf returns the class defined from shape S, or nil.
func ClassOf[S any]() *Class {
	return lookupClass(reflect.TypeFor[S]())
}

// Class is a defined settings type: an ordered set of field descriptors built
// from a shape struct, plus the retrievers consulted for unset fields.
type Class struct {
	name      string
	shape     reflect.Type
	tagName   string
	parent    *Class
	retriever Retriever
	logger    zerolog.Logger

	mu     sync.RWMutex
	fields map[string]*Field
	order  []string
	plain  map[string]any
}

// Name returns the class name (the shape type name unless overridden).
func (c *Class) Name() string { return c.name }

// Shape returns the struct type the class was defined from.
func (c *Class) Shape() reflect.Type { return c.shape }

// Parent returns the field-bearing class this class inherits from, if any.
func (c *Class) Parent() *Class { return c.parent }

// Retriever returns the default retriever for fields without their own.
// It is nil when the class has no default retrievers.
func (c *Class) Retriever() Retriever { return c.retriever }

// Field returns the field declared under attr, including inherited fields.
func (c *Class) Field(attr string) (*Field, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.fields[attr]
	return f, ok
}

// Fields returns all fields in declaration order, inherited fields first.
func (c *Class) Fields() []*Field {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Field, 0, len(c.order))
	for _, attr := range c.order {
		out = append(out, c.fields[attr])
	}
	return out
}

// Ref returns a lazy reference to field attr of this class. It panics if the
// class has no such field, since references are built at definition time.
func (c *Class) Ref(attr string) *Ref {
	if _, ok := c.Field(attr); !ok {
		panic(fmt.Sprintf("settings: %s has no field %q", c.name, attr))
	}
	return &Ref{class: c, shape: c.shape, attr: attr}
}

// SetDefault changes the default value of an existing field. All instances
// without their own value for the field observe the new default. New fields
// cannot be added to a defined class.
func (c *Class) SetDefault(attr string, v any) error {
	if _, isField := v.(*Field); isField {
		return &DefinitionError{Class: c.name, Attr: attr, Err: ErrFieldRedefinition}
	}

	if f, ok := c.Field(attr); ok {
		f.setDefault(v)
		c.logger.Debug().Str("class", c.name).Str("field", attr).Msg("default value changed")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.plain[attr]; ok {
		c.plain[attr] = v
		return nil
	}
	return &DefinitionError{Class: c.name, Attr: attr, Err: ErrUnknownField}
}

// plainValue returns a class-level plain attribute value contributed by a
// mixin struct.
func (c *Class) plainValue(attr string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.plain[attr]
	return v, ok
}

// New creates a detached instance with the given explicit values.
func (c *Class) New(values map[string]any) *Instance {
	s := &Instance{class: c, values: make(map[string]any, len(values))}
	for attr, v := range values {
		s.values[attr] = v
	}
	return s
}

// Current returns the current instance of the class from the default manager.
func (c *Class) Current() *Instance {
	return DefaultManager().Current(c)
}

// Proxy returns a proxy bound to the class through the default manager.
func (c *Class) Proxy() *Proxy {
	return DefaultManager().Proxy(c)
}

// Override runs fn with a new instance holding values as the current
// instance of the class on the default manager.
func (c *Class) Override(values map[string]any, fn func(s *Instance) error) error {
	return DefaultManager().Override(c, values, fn)
}

func (c *Class) String() string {
	return fmt.Sprintf("Class(%s)", c.name)
}

// classDef collects what a builder knows before a class is introspected.
type classDef struct {
	shape      any
	name       string
	tagName    string
	retrievers []Retriever
	fieldOpts  map[string][]FieldOption
	optOrder   []string
	getters    map[string]PropertyGetter
	logger     zerolog.Logger
}

// define introspects the shape and registers the resulting class.
func define(d *classDef) (*Class, error) {
	if d.shape == nil {
		return nil, fmt.Errorf("%w: shape is nil", ErrInvalidShape)
	}
	sv := reflect.ValueOf(d.shape)
	if sv.Kind() == reflect.Ptr {
		if sv.IsNil() {
			return nil, fmt.Errorf("%w: nil pointer %T", ErrInvalidShape, d.shape)
		}
		sv = sv.Elem()
	}
	if sv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %T, want struct", ErrInvalidShape, d.shape)
	}
	st := sv.Type()

	if lookupClass(st) != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDefined, st)
	}

	c := &Class{
		name:    d.name,
		shape:   st,
		tagName: d.tagName,
		logger:  d.logger,
		fields:  make(map[string]*Field),
		plain:   make(map[string]any),
	}
	if c.name == "" {
		c.name = st.Name()
	}
	if c.tagName == "" {
		c.tagName = DefaultTagName
	}

	mixins, err := c.registerEmbedded(sv)
	if err != nil {
		return nil, err
	}
	c.retriever = c.composeRetriever(d.retrievers, mixins)

	if err := c.registerFields(sv); err != nil {
		return nil, err
	}
	if err := c.registerProperties(sv, d); err != nil {
		return nil, err
	}
	if err := c.applyOptions(d); err != nil {
		return nil, err
	}

	if _, loaded := registry.LoadOrStore(st, c); loaded {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDefined, st)
	}

	c.logger.Debug().
		Str("class", c.name).
		Int("fields", len(c.order)).
		Bool("inherits", c.parent != nil).
		Msg("settings class defined")
	return c, nil
}

// registerEmbedded handles anonymous struct fields. A defined class with
// fields becomes the parent; field-less classes are returned as mixins whose
// retrievers are inherited; plain structs contribute class-level attribute
// values.
func (c *Class) registerEmbedded(sv reflect.Value) ([]*Class, error) {
	st := sv.Type()
	var parents, mixins []*Class

	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if !sf.Anonymous {
			continue
		}
		ft := sf.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() != reflect.Struct {
			continue
		}

		if base := lookupClass(ft); base != nil {
			if len(base.Fields()) > 0 {
				parents = append(parents, base)
			} else {
				mixins = append(mixins, base)
			}
			continue
		}

		// Plain mixin: exported non-zero values become class attributes.
		fv := sv.Field(i)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		for j := 0; j < ft.NumField(); j++ {
			mf := ft.Field(j)
			if !mf.IsExported() || mf.Anonymous {
				continue
			}
			if v := fv.Field(j); !v.IsZero() {
				c.plain[mf.Name] = v.Interface()
			}
		}
	}

	if len(parents) > 1 {
		names := make([]string, len(parents))
		for i, p := range parents {
			names[i] = p.name
		}
		return nil, &DefinitionError{
			Class: c.name,
			Attr:  strings.Join(names, ","),
			Err:   ErrMultipleInheritance,
		}
	}

	if len(parents) == 1 {
		p := parents[0]
		c.parent = p
		for _, f := range p.Fields() {
			c.addField(f)
		}
		p.mu.RLock()
		for k, v := range p.plain {
			if _, ok := c.plain[k]; !ok {
				c.plain[k] = v
			}
		}
		p.mu.RUnlock()
	}
	return mixins, nil
}

// composeRetriever builds the class default retriever: explicit retrievers
// (or the parent's), followed by those of field-less mixin classes.
func (c *Class) composeRetriever(own []Retriever, mixins []*Class) Retriever {
	var chain Chain
	switch {
	case len(own) > 0:
		chain = append(chain, own...)
	case c.parent != nil && c.parent.retriever != nil:
		chain = append(chain, c.parent.retriever)
	}
	for _, m := range mixins {
		if m.retriever != nil {
			chain = append(chain, m.retriever)
		}
	}

	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	}
	return chain
}

// registerFields builds one field per eligible exported struct field.
func (c *Class) registerFields(sv reflect.Value) error {
	st := sv.Type()
	var errs []error

	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		switch sf.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue
		}

		tag := sf.Tag.Get(c.tagName)
		if tag == "-" {
			continue
		}

		f := newField(sf.Name)
		f.source = c
		if !isEmptyInterface(sf.Type) {
			f.typ = sf.Type
		}

		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			f.name = parts[0]
		}
		for _, opt := range parts[1:] {
			switch strings.TrimSpace(opt) {
			case "optional":
				f.required = false
			case "required":
				f.required = true
			case "":
			default:
				errs = append(errs, &DefinitionError{Class: c.name, Attr: sf.Name, Err: fmt.Errorf("unknown tag option %q", opt)})
			}
		}

		if def, ok := sf.Tag.Lookup("default"); ok {
			f.def = def
		} else if fv := sv.Field(i); !fv.IsZero() {
			f.def = fv.Interface()
		}

		c.addField(f)
	}

	return errors.Join(errs...)
}

// registerProperties turns read-only getter methods of the shape into fields.
func (c *Class) registerProperties(sv reflect.Value, d *classDef) error {
	st := sv.Type()

	for i := 0; i < st.NumMethod(); i++ {
		m := st.Method(i)
		rt, ok := propertyType(m)
		if !ok {
			continue
		}

		if existing, inherited := c.Field(m.Name); inherited && existing.source != c && existing.IsProperty() {
			// promoted from the parent shape
			continue
		}

		_, replaced := d.getters[m.Name]
		if !replaced && hasSetter(st, m.Name, rt) {
			return &DefinitionError{Class: c.name, Attr: m.Name, Err: ErrPropertySetter}
		}

		f := newField(m.Name)
		f.source = c
		if !isEmptyInterface(rt) && rt.Kind() != reflect.Interface {
			f.typ = rt
		}
		getter := &PropertyRetriever{Getter: newMethodGetter(sv, m), Method: &m}
		f.getter = getter
		f.retriever = getter
		c.addField(f)
	}
	return nil
}

// applyOptions merges builder options and getter replacements over the
// introspected fields, creating fields the shape does not declare.
func (c *Class) applyOptions(d *classDef) error {
	attrs := append([]string(nil), d.optOrder...)
	for attr := range d.getters {
		if _, ok := d.fieldOpts[attr]; !ok {
			attrs = append(attrs, attr)
		}
	}

	for _, attr := range attrs {
		opts := d.fieldOpts[attr]
		for _, opt := range opts {
			if opt == nil {
				continue
			}
			probe := newField(attr)
			opt(probe)
			if isNil(probe.def) {
				continue
			}
			if _, isField := probe.def.(*Field); isField {
				return &DefinitionError{Class: c.name, Attr: attr, Err: ErrFieldRedefinition}
			}
		}

		f, exists := c.Field(attr)
		switch {
		case !exists:
			f = newField(attr)
			f.source = c
		case f.source != c:
			// inherited descriptors stay shared unless options change them
			f = f.clone()
		}
		f.merge(opts...)

		if g, ok := d.getters[attr]; ok {
			getter := &PropertyRetriever{Getter: g}
			if f.getter != nil {
				getter.Method = f.getter.Method
			}
			f.getter = getter
			f.retriever = getter
		}
		c.addField(f)
	}

	// Properties returning interface types need a hint from WithField.
	for _, f := range c.Fields() {
		if f.IsProperty() && f.Type() == nil {
			return &DefinitionError{Class: c.name, Attr: f.attr, Err: ErrNoTypeHint}
		}
	}
	return nil
}

func (c *Class) addField(f *Field) {
	if _, exists := c.fields[f.attr]; !exists {
		c.order = append(c.order, f.attr)
	}
	c.fields[f.attr] = f
}

// propertyType reports whether m has the getter form
// func(S) M(*Instance) R or func(S) M(*Instance) (R, error), returning R.
func propertyType(m reflect.Method) (reflect.Type, bool) {
	mt := m.Type
	if mt.NumIn() != 2 || mt.In(1) != instanceType {
		return nil, false
	}
	switch mt.NumOut() {
	case 1:
	case 2:
		if mt.Out(1) != errorType {
			return nil, false
		}
	default:
		return nil, false
	}
	return mt.Out(0), true
}

// hasSetter reports whether the shape has a write accessor SetName(*Instance, R).
func hasSetter(st reflect.Type, name string, rt reflect.Type) bool {
	m, ok := st.MethodByName("Set" + name)
	if !ok {
		if m, ok = reflect.PointerTo(st).MethodByName("Set" + name); !ok {
			return false
		}
	}
	mt := m.Type
	return mt.NumIn() == 3 && mt.In(1) == instanceType && mt.In(2) == rt
}

func isEmptyInterface(t reflect.Type) bool {
	return t.Kind() == reflect.Interface && t.NumMethod() == 0
}
