package settings

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// DefaultManager returns the process-wide manager used by the class-level
// conveniences and by forward references.
func DefaultManager() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}

// Manager tracks the current instance of each settings class. Every class has
// a stack of instances: the bottom is a lazily created root and each scoped
// override is pushed on top. Push and Pop must be strictly nested.
type Manager struct {
	mu     sync.Mutex
	stacks map[*Class][]*Instance
	logger zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for scope changes and value resolution.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a manager with empty stacks.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		stacks: make(map[*Class][]*Instance),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scope identifies one pushed override. Pass it to Pop to end the override.
type Scope struct {
	class *Class
	inst  *Instance
	depth int
}

// Instance returns the pushed instance.
func (sc Scope) Instance() *Instance { return sc.inst }

// Current returns the current instance of c, creating the root instance on
// first use.
func (m *Manager) Current(c *Class) *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked(c)
}

func (m *Manager) currentLocked(c *Class) *Instance {
	stack := m.stacks[c]
	if len(stack) > 0 {
		return stack[len(stack)-1]
	}

	root := c.New(nil)
	root.mgr = m
	root.active = true
	m.stacks[c] = []*Instance{root}
	m.logger.Debug().Str("class", c.name).Msg("settings instance created")
	return root
}

// Push makes inst the current instance of c until the returned scope is
// popped. The previously current instance becomes inst's parent.
func (m *Manager) Push(c *Class, inst *Instance) (Scope, error) {
	if inst == nil {
		return Scope{}, fmt.Errorf("%w: cannot push nil instance as %s", ErrClassMismatch, c.name)
	}
	if inst.class != c {
		return Scope{}, fmt.Errorf("%w: cannot push %s instance as %s", ErrClassMismatch, inst.class.name, c.name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.active {
		return Scope{}, fmt.Errorf("%w: %s", ErrScopeActive, c.name)
	}

	inst.parent = m.currentLocked(c)
	inst.mgr = m
	inst.active = true
	m.stacks[c] = append(m.stacks[c], inst)
	depth := len(m.stacks[c])

	m.logger.Debug().Str("class", c.name).Int("depth", depth).Msg("settings scope pushed")
	return Scope{class: c, inst: inst, depth: depth}, nil
}

// Pop ends a scope, restoring the instance that was current before it was
// pushed. Scopes must be popped in reverse order of pushing.
func (m *Manager) Pop(sc Scope) error {
	if sc.inst == nil {
		return fmt.Errorf("%w: empty scope", ErrScopeOrder)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stack := m.stacks[sc.class]
	if len(stack) != sc.depth || stack[len(stack)-1] != sc.inst {
		return fmt.Errorf("%w: %s scope at depth %d popped while depth is %d", ErrScopeOrder, sc.class.name, sc.depth, len(stack))
	}

	m.stacks[sc.class] = stack[:len(stack)-1]
	sc.inst.mu.Lock()
	sc.inst.active = false
	sc.inst.parent = nil
	sc.inst.mu.Unlock()

	m.logger.Debug().Str("class", sc.class.name).Int("depth", sc.depth-1).Msg("settings scope popped")
	return nil
}

// Override pushes a new instance of c holding values, runs fn with it and
// pops it again, whether fn returns an error or panics.
func (m *Manager) Override(c *Class, values map[string]any, fn func(s *Instance) error) (err error) {
	sc, err := m.Push(c, c.New(values))
	if err != nil {
		return err
	}
	defer func() {
		if perr := m.Pop(sc); perr != nil && err == nil {
			err = perr
		}
	}()
	return fn(sc.inst)
}

// Depth returns the number of instances on the stack of c, including the root.
func (m *Manager) Depth(c *Class) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stacks[c])
}

// Reset discards all instances of c; the next Current creates a fresh root.
func (m *Manager) Reset(c *Class) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range m.stacks[c] {
		inst.mu.Lock()
		inst.active = false
		inst.parent = nil
		inst.mu.Unlock()
	}
	delete(m.stacks, c)
	m.logger.Debug().Str("class", c.name).Msg("settings stack reset")
}

// Proxy returns a proxy that resolves c through this manager.
func (m *Manager) Proxy(c *Class) *Proxy {
	return &Proxy{class: c, mgr: m}
}
