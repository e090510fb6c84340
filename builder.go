package settings

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Builder provides a fluent interface for defining settings classes
type Builder struct {
	def classDef
	err error
}

// NewBuilder creates a new class builder
func NewBuilder() *Builder {
	return &Builder{
		def: classDef{
			tagName:   DefaultTagName,
			fieldOpts: make(map[string][]FieldOption),
			getters:   make(map[string]PropertyGetter),
			logger:    zerolog.Nop(),
		},
	}
}

// WithShape sets the struct value the class is introspected from. Non-zero
// field values of the shape become field defaults.
func (b *Builder) WithShape(shape any) *Builder {
	b.def.shape = shape
	return b
}

// WithName overrides the class name used in diagnostics
func (b *Builder) WithName(name string) *Builder {
	b.def.name = name
	return b
}

// WithTagName sets the struct tag read for lookup names and options
func (b *Builder) WithTagName(tagName string) *Builder {
	if tagName != "" {
		b.def.tagName = tagName
	}
	return b
}

// WithDefaultRetrievers sets the retrievers consulted, in order, for fields
// without their own retriever. Without them the parent's are inherited.
func (b *Builder) WithDefaultRetrievers(retrievers ...Retriever) *Builder {
	for _, r := range retrievers {
		if r == nil {
			b.err = fmt.Errorf("%w: nil default retriever", ErrDefinition)
			return b
		}
	}
	b.def.retrievers = append(b.def.retrievers, retrievers...)
	return b
}

// WithField merges options into the field declared under attr, creating the
// field when the shape has no such attribute.
func (b *Builder) WithField(attr string, opts ...FieldOption) *Builder {
	if attr == "" {
		b.err = fmt.Errorf("%w: empty field attribute", ErrDefinition)
		return b
	}
	if _, seen := b.def.fieldOpts[attr]; !seen {
		b.def.optOrder = append(b.def.optOrder, attr)
	}
	b.def.fieldOpts[attr] = append(b.def.fieldOpts[attr], opts...)
	return b
}

// WithGetter installs fn as the read-only getter of attr, replacing any
// getter method of the shape. A companion setter method is not checked.
func (b *Builder) WithGetter(attr string, fn PropertyGetter) *Builder {
	if fn == nil {
		b.err = fmt.Errorf("%w: nil getter for %q", ErrDefinition, attr)
		return b
	}
	b.def.getters[attr] = fn
	return b
}

// WithLogger sets the logger for definition diagnostics
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.def.logger = logger
	return b
}

// Build introspects the shape and registers the class
func (b *Builder) Build() (*Class, error) {
	if b.err != nil {
		return nil, b.err
	}
	c, err := define(&b.def)
	if err != nil {
		b.def.logger.Error().Err(err).Str("class", b.def.name).Msg("settings class definition failed")
		return nil, err
	}
	return c, nil
}

// MustBuild is like Build but panics on error
func (b *Builder) MustBuild() *Class {
	c, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("settings class build failed: %v", err))
	}
	return c
}
