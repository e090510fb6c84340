package settings

import "time"

// Proxy stands in for whatever instance of a class is current. It holds no
// values itself; every access goes to Manager.Current at the time of the
// call, so a proxy captured early follows later scoped overrides.
type Proxy struct {
	class *Class
	mgr   *Manager
}

// Class returns the class the proxy is bound to.
func (p *Proxy) Class() *Class { return p.class }

// Instance returns the instance the proxy currently resolves to.
func (p *Proxy) Instance() *Instance { return p.mgr.Current(p.class) }

func (p *Proxy) Get(attr string) (any, error) { return p.Instance().Get(attr) }

func (p *Proxy) MustGet(attr string) any { return p.Instance().MustGet(attr) }

func (p *Proxy) Set(attr string, v any) { p.Instance().Set(attr, v) }

func (p *Proxy) Unset(attr string) { p.Instance().Unset(attr) }

func (p *Proxy) Lookup(attr string) (any, bool) { return p.Instance().Lookup(attr) }

func (p *Proxy) Scan(target any) error { return p.Instance().Scan(target) }

func (p *Proxy) String(attr string) (string, error) { return p.Instance().String(attr) }

func (p *Proxy) Int64(attr string) (int64, error) { return p.Instance().Int64(attr) }

func (p *Proxy) Bool(attr string) (bool, error) { return p.Instance().Bool(attr) }

func (p *Proxy) Float64(attr string) (float64, error) { return p.Instance().Float64(attr) }

func (p *Proxy) Duration(attr string) (time.Duration, error) { return p.Instance().Duration(attr) }
