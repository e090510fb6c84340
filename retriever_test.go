package settings

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldNamed(name string) *Field {
	return newField(name)
}

func TestChain(t *testing.T) {
	calls := 0
	counting := RetrieverFunc(func(f *Field, _ *Instance) (any, bool, error) {
		calls++
		return nil, false, nil
	})
	chain := Chain{
		counting,
		nil,
		MapRetriever{"a": nil},
		MapRetriever{"a": "first", "b": "b1"},
		MapRetriever{"a": "second"},
	}

	v, ok, err := chain.Retrieve(fieldNamed("a"), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", v)
	assert.Equal(t, 1, calls)

	_, ok, err = chain.Retrieve(fieldNamed("missing"), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultValueRetriever(t *testing.T) {
	f := fieldNamed("x")
	_, ok, err := DefaultValueRetriever{}.Retrieve(f, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	f.setDefault(Retrieve)
	_, ok, _ = DefaultValueRetriever{}.Retrieve(f, nil)
	assert.False(t, ok)

	f.setDefault(12)
	v, ok, _ := DefaultValueRetriever{}.Retrieve(f, nil)
	assert.True(t, ok)
	assert.Equal(t, 12, v)
}

func TestMapRetrieverPaths(t *testing.T) {
	m := MapRetriever{
		"flat.key": "flat",
		"server":   map[string]any{"port": 8080, "tls": map[string]any{"enabled": true}},
	}

	v, ok, _ := m.Retrieve(fieldNamed("flat.key"), nil)
	assert.True(t, ok)
	assert.Equal(t, "flat", v)

	v, ok, _ = m.Retrieve(fieldNamed("server.port"), nil)
	assert.True(t, ok)
	assert.Equal(t, 8080, v)

	v, ok, _ = m.Retrieve(fieldNamed("server.tls.enabled"), nil)
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok, _ = m.Retrieve(fieldNamed("server.missing"), nil)
	assert.False(t, ok)
}

func TestEnvNames(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		want   string
	}{
		{"APP_", "server.readTimeout", "APP_SERVER_READ_TIMEOUT"},
		{"APP_", "APIToken", "APP_API_TOKEN"},
		{"", "database.host", "DATABASE_HOST"},
		{"X_", "log_level", "X_LOG_LEVEL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UpperSnakeEnv(tt.prefix)(tt.name), tt.name)
	}

	assert.Equal(t, "PFX_name", NewEnvRetriever("PFX_").VarName("name"))

	e := &EnvRetriever{Lookup: func(key string) (string, bool) {
		if key == "port" {
			return "1", true
		}
		return "", false
	}}
	v, ok, err := e.Retrieve(fieldNamed("port"), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok, _ = e.Retrieve(fieldNamed("host"), nil)
	assert.False(t, ok)
}

func TestNameCasing(t *testing.T) {
	assert.Equal(t, "api_token", snakeCase("APIToken"))
	assert.Equal(t, "read_timeout", snakeCase("readTimeout"))
	assert.Equal(t, "http2_port", snakeCase("HTTP2Port"))
	assert.Equal(t, "already_snake", snakeCase("already_snake"))

	assert.Equal(t, "api-token", flagName("APIToken"))
	assert.Equal(t, "server.port", flagName("server.port"))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileRetriever(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"TOML", "app.toml", "[server]\nhost = \"file.local\"\nport = 9090\n"},
		{"JSON", "app.json", `{"server": {"host": "file.local", "port": 9090}}`},
		{"YAML", "app.yaml", "server:\n  host: file.local\n  port: 9090\n"},
		{"Sniffed JSON", "app.conf", `{"server": {"host": "file.local", "port": 9090}}`},
		{"Sniffed TOML", "app.conf", "[server]\nhost = \"file.local\"\nport = 9090\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFileRetriever(writeFile(t, tt.file, tt.content))
			require.NoError(t, r.Load())

			v, ok, err := r.Retrieve(fieldNamed("server.host"), nil)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "file.local", v)

			v, ok, err = r.Retrieve(fieldNamed("server.port"), nil)
			require.NoError(t, err)
			assert.True(t, ok)
			port, err := convertTo(v, reflect.TypeFor[int](), DefaultTagName)
			require.NoError(t, err)
			assert.Equal(t, 9090, port)

			table, ok, _ := r.Retrieve(fieldNamed("server"), nil)
			assert.True(t, ok)
			assert.IsType(t, map[string]any{}, table)
		})
	}

	t.Run("Missing File", func(t *testing.T) {
		r := NewFileRetriever(filepath.Join(t.TempDir(), "absent.toml"))
		assert.ErrorIs(t, r.Load(), ErrConfigNotFound)

		_, ok, err := r.Retrieve(fieldNamed("server.host"), nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Unknown Format", func(t *testing.T) {
		r := &FileRetriever{Path: writeFile(t, "app.toml", "a = 1\n"), Format: "ini"}
		assert.ErrorIs(t, r.Load(), ErrFileFormat)

		_, _, err := r.Retrieve(fieldNamed("a"), nil)
		assert.ErrorIs(t, err, ErrFileFormat)
	})

	t.Run("Malformed File", func(t *testing.T) {
		r := NewFileRetriever(writeFile(t, "app.json", "{not json"))
		assert.Error(t, r.Load())
	})

	t.Run("Size Limit", func(t *testing.T) {
		r := &FileRetriever{Path: writeFile(t, "app.toml", "key = \"a long enough value\"\n"), MaxFileSize: 4}
		assert.Error(t, r.Load())
	})

	t.Run("Reload", func(t *testing.T) {
		path := writeFile(t, "app.toml", "level = 1\n")
		r := NewFileRetriever(path)

		v, _, err := r.Retrieve(fieldNamed("level"), nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, v)

		require.NoError(t, os.WriteFile(path, []byte("level = 2\n"), 0644))
		v, _, _ = r.Retrieve(fieldNamed("level"), nil)
		assert.EqualValues(t, 1, v)

		require.NoError(t, r.Reload())
		v, _, _ = r.Retrieve(fieldNamed("level"), nil)
		assert.EqualValues(t, 2, v)

		values, err := r.Values()
		require.NoError(t, err)
		assert.Len(t, values, 1)
	})
}

// fileBackedSource outlives a single test run because the class using it is
// registered once per process.
var fileBackedSource = &FileRetriever{}

func TestFileRetrieverClass(t *testing.T) {
	type fileBackedShape struct {
		Host    string        `setting:"server.host" default:"localhost"`
		Port    int           `setting:"server.port" default:"80"`
		Timeout time.Duration `setting:"server.timeout" default:"1s"`
	}

	fileBackedSource.Path = writeFile(t, "svc.yaml", "server:\n  port: 8443\n  timeout: 250ms\n")
	require.NoError(t, fileBackedSource.Reload())

	c := mustClass(t, NewBuilder().
		WithShape(fileBackedShape{}).
		WithDefaultRetrievers(fileBackedSource))
	s := NewManager().Current(c)

	host, err := s.String("Host")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)

	port, err := s.Get("Port")
	require.NoError(t, err)
	assert.Equal(t, 8443, port)

	timeout, err := s.Duration("Timeout")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, timeout)
}

func TestDotenvRetriever(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	local := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(base, []byte("APP_HOST=base.local\nAPP_PORT=1000\n"), 0644))
	require.NoError(t, os.WriteFile(local, []byte("# local overrides\nAPP_PORT=2000\n"), 0644))

	d := NewDotenvRetriever(base, filepath.Join(dir, "missing.env"), local)
	d.Transform = UpperSnakeEnv("APP_")

	v, ok, err := d.Retrieve(fieldNamed("host"), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "base.local", v)

	v, ok, err = d.Retrieve(fieldNamed("port"), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2000", v)

	_, ok, err = d.Retrieve(fieldNamed("user"), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, isSet := os.LookupEnv("APP_HOST")
	assert.False(t, isSet, "dotenv values must not leak into the process environment")

	assert.Equal(t, []string{".env"}, NewDotenvRetriever().Files)
}

type flagShape struct {
	Host    string        `default:"localhost"`
	Port    int           `default:"8080"`
	Verbose bool
	Ratio   float64 `default:"0.5"`
	Timeout time.Duration `default:"2s"`
	Tags    []string
	APIKey  string `setting:",optional"`
}

func (flagShape) Addr(s *Instance) string {
	host, _ := s.String("Host")
	return host
}

func TestFlags(t *testing.T) {
	c := mustClass(t, NewBuilder().WithShape(flagShape{}))

	t.Run("Flag Set", func(t *testing.T) {
		fs := c.FlagSet("svc")

		require.NotNil(t, fs.Lookup("host"))
		assert.Equal(t, "localhost", fs.Lookup("host").DefValue)
		assert.Equal(t, "8080", fs.Lookup("port").DefValue)
		assert.Equal(t, "2s", fs.Lookup("timeout").DefValue)
		assert.Equal(t, "bool", fs.Lookup("verbose").Value.Type())
		assert.Equal(t, "stringSlice", fs.Lookup("tags").Value.Type())
		assert.NotNil(t, fs.Lookup("api-key"))
		assert.Nil(t, fs.Lookup("addr"), "computed properties get no flag")
	})

	t.Run("Only Changed Flags", func(t *testing.T) {
		fs := c.FlagSet("svc")
		require.NoError(t, fs.Parse([]string{"--port", "9000", "--tags", "a,b", "--verbose", "--api-key=secret"}))
		r := NewFlagRetriever(fs)

		v, ok, err := r.Retrieve(fieldNamed("Port"), nil)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "9000", v)

		v, ok, _ = r.Retrieve(fieldNamed("Tags"), nil)
		assert.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, v)

		v, ok, _ = r.Retrieve(fieldNamed("APIKey"), nil)
		assert.True(t, ok)
		assert.Equal(t, "secret", v)

		_, ok, _ = r.Retrieve(fieldNamed("Host"), nil)
		assert.False(t, ok)

		_, ok, _ = NewFlagRetriever(nil).Retrieve(fieldNamed("Port"), nil)
		assert.False(t, ok)
	})

	t.Run("Resolved Through Class", func(t *testing.T) {
		fs := c.FlagSet("svc")
		require.NoError(t, fs.Parse([]string{"--port=9100", "--verbose"}))
		flags := NewFlagRetriever(fs)

		s := NewManager().Current(c)

		field, _ := c.Field("Port")
		raw, ok, err := Chain{flags, DefaultValueRetriever{}}.Retrieve(field, s)
		require.NoError(t, err)
		require.True(t, ok)
		port, err := convertField(field, raw)
		require.NoError(t, err)
		assert.Equal(t, 9100, port)

		field, _ = c.Field("Verbose")
		raw, ok, _ = flags.Retrieve(field, s)
		require.True(t, ok)
		verbose, err := convertField(field, raw)
		require.NoError(t, err)
		assert.Equal(t, true, verbose)
	})
}

func TestDiscoverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0644))

	opts := DefaultDiscoveryOptions("svc")
	opts.Args = []string{}
	opts.UseXDG = false
	opts.UseCurrentDir = false
	opts.Paths = []string{filepath.Join(dir, "nothing-here"), dir}

	t.Run("Search Paths", func(t *testing.T) {
		found, err := DiscoverFile(opts)
		require.NoError(t, err)
		assert.Equal(t, path, found)
	})

	t.Run("CLI Flag Wins", func(t *testing.T) {
		o := opts
		o.Args = []string{"--verbose", "--config", "/explicit.toml"}
		found, err := DiscoverFile(o)
		require.NoError(t, err)
		assert.Equal(t, "/explicit.toml", found)

		o.Args = []string{"--config=/inline.toml"}
		found, err = DiscoverFile(o)
		require.NoError(t, err)
		assert.Equal(t, "/inline.toml", found)
	})

	t.Run("Environment Variable", func(t *testing.T) {
		t.Setenv("SVC_CONFIG", "/from/env.json")
		found, err := DiscoverFile(opts)
		require.NoError(t, err)
		assert.Equal(t, "/from/env.json", found)
	})

	t.Run("Not Found", func(t *testing.T) {
		o := opts
		o.Paths = []string{filepath.Join(dir, "nothing-here")}
		_, err := DiscoverFile(o)
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("XDG Config Home", func(t *testing.T) {
		xdg := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(xdg, "svc"), 0755))
		want := filepath.Join(xdg, "svc", "svc.toml")
		require.NoError(t, os.WriteFile(want, []byte("a = 1\n"), 0644))
		t.Setenv("XDG_CONFIG_HOME", xdg)

		o := opts
		o.Paths = nil
		o.UseXDG = true
		found, err := DiscoverFile(o)
		require.NoError(t, err)
		assert.Equal(t, want, found)
	})
}
