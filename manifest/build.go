package manifest

import (
	"fmt"

	"github.com/chazu/vmgen/cache"
	"github.com/chazu/vmgen/compiler"
	"github.com/chazu/vmgen/vm"
)

// ---------------------------------------------------------------------------
// Building compiler inputs from configuration
// ---------------------------------------------------------------------------

// Env returns a declaration table holding the configured builtins, in
// configuration order.
func (m *Manifest) Env() (*vm.Env, error) {
	e := vm.NewEnv()
	for _, b := range m.Builtins {
		kind, err := vm.ParseDeclKind(b.Kind)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", b.Name, err)
		}
		if e, err = e.WithBuiltin(b.Name, b.Arity, kind); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// CasesTable returns the frozen registry of configured case analyzers.
func (m *Manifest) CasesTable() (*vm.CasesTable, error) {
	ct := vm.NewCasesTable()
	for _, c := range m.Cases {
		if err := ct.Register(c.Name, c.Index, c.Alternatives); err != nil {
			return nil, err
		}
	}
	ct.Freeze()
	return ct, nil
}

// Tracer returns a tracer with the configured classes enabled, or nil when
// none are.
func (m *Manifest) Tracer() (*compiler.Tracer, error) {
	if len(m.Compiler.Trace) == 0 {
		return nil, nil
	}
	t := compiler.NewTracer()
	if err := t.Enable(m.Compiler.Trace...); err != nil {
		return nil, err
	}
	return t, nil
}

// Driver returns a batch driver configured from m. The caller owns the
// returned cache store and must close it.
func (m *Manifest) Driver() (*compiler.Driver, cache.Store, error) {
	cases, err := m.CasesTable()
	if err != nil {
		return nil, nil, err
	}
	tracer, err := m.Tracer()
	if err != nil {
		return nil, nil, err
	}
	store, err := cache.Open(m.CachePath())
	if err != nil {
		return nil, nil, err
	}
	return &compiler.Driver{
		Cases:  cases,
		Tracer: tracer,
		Cache:  store,
		Jobs:   m.Compiler.Jobs,
		Verify: m.Compiler.Verify,
	}, store, nil
}
