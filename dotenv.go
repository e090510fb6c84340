package settings

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// DotenvRetriever serves values from .env files without exporting them to
// the process environment. Later files override earlier ones; missing files
// are skipped.
type DotenvRetriever struct {
	Files []string

	// Transform maps a lookup name to a variable name, as for EnvRetriever.
	Transform EnvTransformFunc

	once   sync.Once
	values map[string]string
	err    error
}

// NewDotenvRetriever reads the given files, or ".env" when none are given.
func NewDotenvRetriever(files ...string) *DotenvRetriever {
	if len(files) == 0 {
		files = []string{".env"}
	}
	return &DotenvRetriever{Files: files}
}

func (d *DotenvRetriever) Retrieve(f *Field, _ *Instance) (any, bool, error) {
	d.once.Do(d.load)
	if d.err != nil {
		return nil, false, d.err
	}

	name := f.Name()
	if d.Transform != nil {
		name = d.Transform(name)
	}
	v, ok := d.values[name]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (d *DotenvRetriever) load() {
	d.values = make(map[string]string)
	for _, file := range d.Files {
		env, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			d.err = fmt.Errorf("failed to read env file '%s': %w", file, err)
			return
		}
		for k, v := range env {
			d.values[k] = v
		}
	}
}
