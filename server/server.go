package server

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/vmgen/compiler"
	"github.com/chazu/vmgen/vm"
)

// Server is the compile service wrapping a live declaration table.
// It serves the Connect, gRPC and gRPC-Web protocols on the same port.
type Server struct {
	worker *EnvWorker
	mux    *http.ServeMux
	log    commonlog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	driver *compiler.Driver
}

// WithDriver sets the batch driver used by Compile. Without this, batches
// compile with the zero Driver.
func WithDriver(d *compiler.Driver) ServerOption {
	return func(c *serverConfig) { c.driver = d }
}

// New creates a Server whose table starts as env.
func New(env *vm.Env, opts ...ServerOption) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		worker: NewEnvWorker(env),
		mux:    http.NewServeMux(),
		log:    commonlog.GetLogger("vmgen.server"),
	}

	svc := NewCompileService(s.worker, cfg.driver)
	handlerOpts := []connect.HandlerOption{
		connect.WithCodec(cborCodec{}),
		connect.WithRecover(s.recoverPanic),
	}
	s.mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, svc.Compile, handlerOpts...))
	s.mux.Handle(LookupProcedure, connect.NewUnaryHandler(LookupProcedure, svc.Lookup, handlerOpts...))
	s.mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, svc.Disassemble, handlerOpts...))

	return s
}

// recoverPanic turns a handler panic into CodeInternal.
func (s *Server) recoverPanic(_ context.Context, spec connect.Spec, _ http.Header, r any) error {
	s.log.Error("handler panicked", "procedure", spec.Procedure, "panic", fmt.Sprint(r))
	if ie, ok := compiler.AsInvariant(r); ok {
		return connect.NewError(connect.CodeInternal, ie)
	}
	return connect.NewError(connect.CodeInternal, fmt.Errorf("panic: %v", r))
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Env returns the current declaration table.
func (s *Server) Env() *vm.Env {
	return s.worker.Snapshot()
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	s.log.Noticef("vmgen compile service listening on %s", addr)
	s.log.Noticef("  Connect (CBOR): http://%s%s", addr, CompileProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the table worker. Later compiles fail with
// CodeUnavailable.
func (s *Server) Stop() {
	s.worker.Stop()
}
