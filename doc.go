// Package settings provides declarative, lazily resolved settings classes
// with scoped overrides for Go applications.
//
// A settings class is defined from a shape struct. Every exported field of
// the shape, and every read-only getter method of the form
// func(S) Name(*settings.Instance) R, becomes a Field. Values are resolved on
// each read rather than loaded up front.
//
// Features:
//   - Fields with lookup names, defaults, converters and requiredness
//   - Pluggable retrievers: environment, .env files, TOML/JSON/YAML files,
//     command-line flags, static maps, custom functions
//   - Forward references between classes, resolved at read time
//   - Built-in conversions for scalars, durations, timestamps, decimals,
//     network types and composite values
//   - A lazy singleton per class with stack-based scoped overrides
//   - Proxies that always follow the current instance
//
// Quick Start:
//
//	type AppSettings struct {
//	    settings.EnvVarSettings
//	    AppVersion string `setting:"APP_VERSION"`
//	    Port       int    `default:"8080"`
//	    Token      string `setting:",optional"`
//	}
//
//	var App = settings.MustDefine(AppSettings{})
//
//	port, err := App.Current().Int64("Port")
//
// Resolution order for a field (first value wins):
//  1. A value set on the instance (Set, or the values of Override)
//  2. A value set on an instance superseded by a scoped override
//  3. The field's retriever, or the class default retrievers
//  4. The field default
//
// Retrievers, property methods and Self references run against the instance
// being read, so a computed field inside an override sees the override's
// values. Reference cycles fail with ErrReferenceCycle.
//
// A required field without a value fails with *MissingValueError, which
// matches ErrMissingValue, ErrAttribute and ErrValue. Optional fields
// resolve to nil.
//
// Scoped overrides:
//
//	err := App.Override(map[string]any{"Port": 9090}, func(s *settings.Instance) error {
//	    // App.Current() is s here; unset fields fall through to the root instance
//	    return run()
//	})
//
// Thread Safety:
// Reads are safe from any goroutine. Scope pushes and pops must be strictly
// nested within one logical flow of control.
package settings
