package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Snapshot resolves every field and nests the values by lookup name.
// Optional fields without a value are omitted.
func (s *Instance) Snapshot() (map[string]any, error) {
	nested := make(map[string]any)
	for _, f := range s.class.Fields() {
		v, err := s.Get(f.attr)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		setNestedValue(nested, f.name, snapshotValue(v))
	}
	return nested, nil
}

// Dump writes the resolved settings to w as TOML.
func (s *Instance) Dump(w io.Writer) error {
	nested, err := s.Snapshot()
	if err != nil {
		return err
	}
	return toml.NewEncoder(w).Encode(nested)
}

// Save writes the resolved settings to path atomically. The format follows
// the extension: .json, .yaml/.yml, anything else is TOML.
func (s *Instance) Save(path string) error {
	nested, err := s.Snapshot()
	if err != nil {
		return err
	}

	var data []byte
	switch detectFileFormat(path) {
	case "json":
		if data, err = json.MarshalIndent(nested, "", "  "); err != nil {
			return fmt.Errorf("failed to marshal settings to JSON: %w", err)
		}
	case "yaml":
		if data, err = yaml.Marshal(nested); err != nil {
			return fmt.Errorf("failed to marshal settings to YAML: %w", err)
		}
	default:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(nested); err != nil {
			return fmt.Errorf("failed to marshal settings to TOML: %w", err)
		}
		data = buf.Bytes()
	}

	return atomicWriteFile(path, data)
}

// snapshotValue renders values the encoders would otherwise expand into
// tables or bare integers.
func snapshotValue(v any) any {
	switch t := v.(type) {
	case time.Duration:
		return t.String()
	case url.URL:
		return t.String()
	case *url.URL:
		return t.String()
	}
	return v
}

// atomicWriteFile writes data to a temporary file and renames it over path.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tempPath := tempFile.Name()
	defer os.Remove(tempPath) // Clean up on any error

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}
