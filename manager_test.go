package settings

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scopeShape struct {
	Host string `default:"localhost"`
	Port int    `default:"5432"`
	Mode string `setting:",optional"`
}

type otherScopeShape struct {
	Name string `default:"other"`
}

type boundShape struct {
	Host  string `default:"localhost"`
	Port  int    `default:"1"`
	Alias any
}

func (boundShape) Addr(s *Instance) (string, error) {
	host, err := s.String("Host")
	if err != nil {
		return "", err
	}
	port, err := s.Int64("Port")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", host, port), nil
}

func scopeClass(t *testing.T) *Class {
	return mustClass(t, NewBuilder().
		WithShape(scopeShape{}).
		WithDefaultRetrievers(MapRetriever{"Mode": "retrieved"}))
}

func TestManagerCurrent(t *testing.T) {
	c := scopeClass(t)
	m := NewManager()

	assert.Equal(t, 0, m.Depth(c))
	root := m.Current(c)
	require.NotNil(t, root)
	assert.Same(t, root, m.Current(c))
	assert.Equal(t, 1, m.Depth(c))
	assert.Nil(t, root.Parent())

	// Managers are independent
	assert.NotSame(t, root, NewManager().Current(c))
}

func TestManagerPushPop(t *testing.T) {
	c := scopeClass(t)
	m := NewManager()
	root := m.Current(c)
	root.Set("Host", "root.local")

	t.Run("Nested Scopes", func(t *testing.T) {
		first := c.New(map[string]any{"Port": 6000})
		sc1, err := m.Push(c, first)
		require.NoError(t, err)
		assert.Same(t, first, m.Current(c))
		assert.Same(t, root, first.Parent())

		host, err := first.String("Host")
		require.NoError(t, err)
		assert.Equal(t, "root.local", host)

		second := c.New(map[string]any{"Host": "second.local"})
		sc2, err := m.Push(c, second)
		require.NoError(t, err)
		assert.Equal(t, 3, m.Depth(c))

		port, err := second.Int64("Port")
		require.NoError(t, err)
		assert.Equal(t, int64(6000), port)
		host, err = second.String("Host")
		require.NoError(t, err)
		assert.Equal(t, "second.local", host)

		require.NoError(t, m.Pop(sc2))
		assert.Same(t, first, m.Current(c))
		assert.Nil(t, second.Parent())

		require.NoError(t, m.Pop(sc1))
		assert.Same(t, root, m.Current(c))
		assert.Equal(t, 1, m.Depth(c))
	})

	t.Run("Out Of Order Pop", func(t *testing.T) {
		sc1, err := m.Push(c, c.New(nil))
		require.NoError(t, err)
		sc2, err := m.Push(c, c.New(nil))
		require.NoError(t, err)

		assert.ErrorIs(t, m.Pop(sc1), ErrScopeOrder)
		require.NoError(t, m.Pop(sc2))
		require.NoError(t, m.Pop(sc1))
		assert.ErrorIs(t, m.Pop(sc1), ErrScopeOrder)
		assert.ErrorIs(t, m.Pop(Scope{}), ErrScopeOrder)
	})

	t.Run("Already Active", func(t *testing.T) {
		inst := c.New(nil)
		sc, err := m.Push(c, inst)
		require.NoError(t, err)

		_, err = m.Push(c, inst)
		assert.ErrorIs(t, err, ErrScopeActive)

		_, err = m.Push(c, root)
		assert.ErrorIs(t, err, ErrScopeActive)

		require.NoError(t, m.Pop(sc))

		// A popped instance can be pushed again
		sc, err = m.Push(c, inst)
		require.NoError(t, err)
		require.NoError(t, m.Pop(sc))
	})

	t.Run("Class Mismatch", func(t *testing.T) {
		other := mustClass(t, NewBuilder().WithShape(otherScopeShape{}))

		_, err := m.Push(c, other.New(nil))
		assert.ErrorIs(t, err, ErrClassMismatch)

		_, err = m.Push(c, nil)
		assert.ErrorIs(t, err, ErrClassMismatch)
	})
}

func TestManagerOverride(t *testing.T) {
	c := scopeClass(t)

	t.Run("Values Visible Inside Only", func(t *testing.T) {
		m := NewManager()
		proxy := m.Proxy(c)

		err := m.Override(c, map[string]any{"Host": "scoped"}, func(s *Instance) error {
			assert.Same(t, s, proxy.Instance())
			host, err := proxy.String("Host")
			require.NoError(t, err)
			assert.Equal(t, "scoped", host)
			return nil
		})
		require.NoError(t, err)

		host, err := proxy.String("Host")
		require.NoError(t, err)
		assert.Equal(t, "localhost", host)
		assert.Equal(t, 1, m.Depth(c))
	})

	t.Run("Popped On Error", func(t *testing.T) {
		m := NewManager()
		boom := errors.New("boom")

		err := m.Override(c, nil, func(*Instance) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, m.Depth(c))
	})

	t.Run("Popped On Panic", func(t *testing.T) {
		m := NewManager()

		assert.Panics(t, func() {
			_ = m.Override(c, nil, func(*Instance) error { panic("boom") })
		})
		assert.Equal(t, 1, m.Depth(c))
	})

	t.Run("Retrieve Marker Skips Parent", func(t *testing.T) {
		m := NewManager()
		m.Current(c).Set("Mode", "root")

		err := m.Override(c, nil, func(s *Instance) error {
			v, err := s.Get("Mode")
			require.NoError(t, err)
			assert.Equal(t, "root", v)

			s.Set("Mode", Retrieve)
			v, err = s.Get("Mode")
			require.NoError(t, err)
			assert.Equal(t, "retrieved", v)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Default Manager", func(t *testing.T) {
		t.Cleanup(func() { DefaultManager().Reset(c) })

		err := c.Override(map[string]any{"Port": 7000}, func(*Instance) error {
			port, err := c.Proxy().Int64("Port")
			require.NoError(t, err)
			assert.Equal(t, int64(7000), port)
			return nil
		})
		require.NoError(t, err)

		port, err := c.Current().Int64("Port")
		require.NoError(t, err)
		assert.Equal(t, int64(5432), port)
	})
}

func TestOverrideBindsToReadingInstance(t *testing.T) {
	c := mustClass(t, NewBuilder().
		WithShape(boundShape{}).
		WithField("Alias", Default(Self("Host"))))
	m := NewManager()
	p := m.Proxy(c)

	err := m.Override(c, map[string]any{"Host": "10.0.0.1"}, func(s *Instance) error {
		addr, err := p.String("Addr")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1:1", addr)

		alias, err := p.Get("Alias")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1", alias)

		// values not overridden still come from the superseded instance
		m.Current(c).Parent().Set("Port", 2)
		addr, err = s.String("Addr")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1:2", addr)
		return nil
	})
	require.NoError(t, err)

	addr, err := p.String("Addr")
	require.NoError(t, err)
	assert.Equal(t, "localhost:2", addr)

	alias, err := p.Get("Alias")
	require.NoError(t, err)
	assert.Equal(t, "localhost", alias)
}

func TestManagerReset(t *testing.T) {
	c := scopeClass(t)
	m := NewManager()

	root := m.Current(c)
	root.Set("Host", "stale")
	sc, err := m.Push(c, c.New(nil))
	require.NoError(t, err)

	m.Reset(c)
	assert.Equal(t, 0, m.Depth(c))
	assert.ErrorIs(t, m.Pop(sc), ErrScopeOrder)

	fresh := m.Current(c)
	assert.NotSame(t, root, fresh)
	host, err := fresh.String("Host")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
}

func TestProxyForwarding(t *testing.T) {
	c := scopeClass(t)
	m := NewManager()
	p := m.Proxy(c)

	assert.Same(t, c, p.Class())

	p.Set("Port", "9000")
	raw, ok := p.Lookup("Port")
	require.True(t, ok)
	assert.Equal(t, "9000", raw)
	assert.Equal(t, 9000, p.MustGet("Port"))

	p.Unset("Port")
	v, err := p.Get("Port")
	require.NoError(t, err)
	assert.Equal(t, 5432, v)

	var out scopeShape
	require.NoError(t, p.Scan(&out))
	assert.Equal(t, "localhost", out.Host)
	assert.Equal(t, "retrieved", out.Mode)
}

func TestManagerConcurrentReads(t *testing.T) {
	c := scopeClass(t)
	m := NewManager()
	p := m.Proxy(c)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				host, err := p.String("Host")
				assert.NoError(t, err)
				assert.Equal(t, "localhost", host)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, m.Depth(c))
}
