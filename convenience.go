package settings

import (
	"fmt"
	"os"
)

// Define creates a class from shape with the given default retrievers.
// This is the quick path for shapes that need no per-field options.
func Define(shape any, retrievers ...Retriever) (*Class, error) {
	return NewBuilder().
		WithShape(shape).
		WithDefaultRetrievers(retrievers...).
		Build()
}

// MustDefine is like Define but panics on error
func MustDefine(shape any, retrievers ...Retriever) *Class {
	c, err := Define(shape, retrievers...)
	if err != nil {
		panic(fmt.Sprintf("settings definition failed: %v", err))
	}
	return c
}

// Standard builds the usual retriever chain for an application: explicitly
// set command-line flags, then environment variables named by UpperSnakeEnv
// with envPrefix, then the configuration file found by discovery for
// appName, if any.
func Standard(appName, envPrefix string, flags *FlagRetriever) Retriever {
	chain := Chain{}
	if flags != nil {
		chain = append(chain, flags)
	}
	chain = append(chain, &EnvRetriever{Transform: UpperSnakeEnv(envPrefix)})
	if path, err := DiscoverFile(DefaultDiscoveryOptions(appName)); err == nil {
		chain = append(chain, NewFileRetriever(path))
	}
	return chain
}

// Dump writes the current instance of c from the default manager to stdout.
func Dump(c *Class) error {
	return c.Current().Dump(os.Stdout)
}
