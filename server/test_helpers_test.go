package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/vmgen/compiler"
	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/vm"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// Every test builds its own table and worker; tables are immutable, so
// there is nothing to share between tests beyond the base builtins.
// ---------------------------------------------------------------------------

// baseEnv holds nat.add (builtin, arity 2) and io.print (native, arity 1).
func baseEnv(t *testing.T) *vm.Env {
	t.Helper()
	env, err := vm.NewEnv().WithBuiltin("nat.add", 2, vm.DeclBuiltin)
	if err != nil {
		t.Fatal(err)
	}
	if env, err = env.WithBuiltin("io.print", 1, vm.DeclNative); err != nil {
		t.Fatal(err)
	}
	return env
}

// newTestService creates a CompileService over a fresh worker. The worker
// is stopped when the test ends.
func newTestService(t *testing.T, driver *compiler.Driver) (*CompileService, *EnvWorker) {
	t.Helper()
	w := NewEnvWorker(baseEnv(t))
	t.Cleanup(w.Stop)
	return NewCompileService(w, driver), w
}

// newTestServer starts the full HTTP stack and returns a client for it.
func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *Client) {
	t.Helper()
	s := New(baseEnv(t), opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return s, NewClient(ts.Client(), ts.URL)
}

// ---------------------------------------------------------------------------
// Request builder helpers
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}

func lam(names string, body ir.Term) ir.Term {
	return ir.Lam(strings.Fields(names), body)
}

// doubleDecls defines double x = nat.add x x and quad x = double (double x).
func doubleDecls() []ir.Declaration {
	return []ir.Declaration{
		{Name: "quad", Value: lam("x", ir.Mk(ir.Const("double"), ir.Mk(ir.Const("double"), ir.BVar(0))))},
		{Name: "double", Value: lam("x", ir.Mk(ir.Const("nat.add"), ir.BVar(0), ir.BVar(0)))},
	}
}
