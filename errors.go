package settings

import (
	"errors"
	"fmt"
	"reflect"
)

// Error categories. Typed errors below unwrap to one or more of these so
// callers can branch with errors.Is without knowing the concrete type.
var (
	// ErrAttribute is the category for an attribute that has no usable value.
	ErrAttribute = errors.New("settings: attribute error")
	// ErrValue is the category for a value that is missing or malformed.
	ErrValue = errors.New("settings: value error")

	ErrMissingValue     = errors.New("missing value")
	ErrConversion       = errors.New("conversion failed")
	ErrNilConversion    = errors.New("converter returned nil")
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrReferenceCycle   = errors.New("forward reference cycle")

	// Definition-time errors
	ErrDefinition          = errors.New("invalid settings definition")
	ErrInvalidShape        = errors.New("settings shape must be a struct")
	ErrAlreadyDefined      = errors.New("settings shape already defined")
	ErrNoTypeHint          = errors.New("must have type hint for field")
	ErrPropertySetter      = errors.New("only read-only properties can be fields")
	ErrMultipleInheritance = errors.New("settings field inheritance from more than one parent")
	ErrUnknownField        = errors.New("no such settings field")
	ErrFieldRedefinition   = errors.New("settings field cannot be redefined after construction")

	// Scope errors
	ErrScopeOrder    = errors.New("settings scope popped out of order")
	ErrScopeActive   = errors.New("settings instance already active")
	ErrClassMismatch = errors.New("settings instance belongs to another class")

	// Source errors
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrFileFormat     = errors.New("unable to determine configuration format")
)

// MissingValueError reports a required field that resolved to no value.
// It matches ErrMissingValue, ErrAttribute and ErrValue.
type MissingValueError struct {
	Field  string
	Type   reflect.Type
	Class  string
	Reason string
}

func (e *MissingValueError) Error() string {
	msg := fmt.Sprintf("missing value for Field(name=%q, type=%s, class=%s)", e.Field, typeName(e.Type), e.Class)
	if e.Reason != "" {
		msg += ", " + e.Reason
	}
	return msg
}

func (e *MissingValueError) Unwrap() []error {
	return []error{ErrMissingValue, ErrAttribute, ErrValue}
}

// ConversionError reports a raw value that could not be converted to the
// declared type of a field.
type ConversionError struct {
	Field string
	Type  reflect.Type
	Class string
	Value any
	Err   error
}

func (e *ConversionError) Error() string {
	if errors.Is(e.Err, ErrNilConversion) {
		return fmt.Sprintf("after converting value %#v for Field(name=%q, type=%s, class=%s) the result was nil and the field is required",
			e.Value, e.Field, typeName(e.Type), e.Class)
	}
	return fmt.Sprintf("while attempting to convert value %#v (%T) for Field(name=%q, type=%s, class=%s): %v",
		e.Value, e.Value, e.Field, typeName(e.Type), e.Class, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	return []error{ErrConversion, ErrValue, e.Err}
}

// DefinitionError is returned when a settings class cannot be constructed.
type DefinitionError struct {
	Class string
	Attr  string
	Err   error
}

func (e *DefinitionError) Error() string {
	if e.Attr == "" {
		return fmt.Sprintf("settings: cannot define %s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("settings: cannot define %s.%s: %v", e.Class, e.Attr, e.Err)
}

func (e *DefinitionError) Unwrap() []error {
	return []error{ErrDefinition, e.Err}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<none>"
	}
	return t.String()
}
