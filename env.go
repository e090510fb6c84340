package settings

import (
	"os"
	"strings"
)

// EnvTransformFunc converts a field lookup name to an environment variable name.
type EnvTransformFunc func(name string) string

// EnvRetriever reads fields from process environment variables. Values are
// looked up on every read, so changes to the environment are visible
// immediately.
type EnvRetriever struct {
	// Prefix is prepended to the lookup name when Transform is nil.
	Prefix string

	// Transform customizes the variable name; it overrides Prefix.
	Transform EnvTransformFunc

	// Lookup replaces os.LookupEnv, mostly for tests.
	Lookup func(key string) (string, bool)
}

// NewEnvRetriever returns an EnvRetriever that looks up prefix+name.
func NewEnvRetriever(prefix string) *EnvRetriever {
	return &EnvRetriever{Prefix: prefix}
}

func (e *EnvRetriever) Retrieve(f *Field, _ *Instance) (any, bool, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(e.VarName(f.Name()))
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

// VarName returns the environment variable consulted for a lookup name.
func (e *EnvRetriever) VarName(name string) string {
	if e.Transform != nil {
		return e.Transform(name)
	}
	return e.Prefix + name
}

// UpperSnakeEnv maps "server.readTimeout" to PREFIX_SERVER_READ_TIMEOUT style names.
func UpperSnakeEnv(prefix string) EnvTransformFunc {
	return func(name string) string {
		env := strings.ReplaceAll(name, ".", "_")
		env = strings.ToUpper(snakeCase(env))
		if prefix != "" {
			env = prefix + env
		}
		return env
	}
}

// EnvVarSettings is a field-less base shape. Embed it in a settings shape to
// resolve unset fields from environment variables named after the field's
// lookup name.
//
//	type AppSettings struct {
//	    settings.EnvVarSettings
//	    AppVersion string `setting:"app_version"`
//	}
type EnvVarSettings struct{}

// EnvVarClass is the class of EnvVarSettings.
var EnvVarClass = MustDefine(EnvVarSettings{}, &EnvRetriever{})
