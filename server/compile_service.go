package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/vmgen/compiler"
	"github.com/chazu/vmgen/vm"
)

// CompileService implements the compile service handlers.
type CompileService struct {
	worker *EnvWorker
	driver *compiler.Driver
	log    commonlog.Logger
}

// NewCompileService creates a CompileService. A nil driver compiles with
// the zero Driver.
func NewCompileService(worker *EnvWorker, driver *compiler.Driver) *CompileService {
	if driver == nil {
		driver = &compiler.Driver{}
	}
	return &CompileService{
		worker: worker,
		driver: driver,
		log:    commonlog.GetLogger("vmgen.server"),
	}
}

// Compile compiles a batch against the current table and installs it.
func (s *CompileService) Compile(
	ctx context.Context,
	req *connect.Request[CompileRequest],
) (*connect.Response[CompileResponse], error) {
	decls := req.Msg.Decls
	if len(decls) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("batch is empty"))
	}

	value, err := s.worker.Update(ctx, func(env *vm.Env) (*vm.Env, interface{}, error) {
		res, err := s.driver.Compile(ctx, env, decls)
		if err != nil {
			return nil, nil, err
		}
		return res.Env, res, nil
	})
	if err != nil {
		s.log.Info("compile failed", "decls", len(decls), "error", err.Error())
		return nil, connectError(err)
	}

	res := value.(*compiler.Result)
	s.log.Info("compiled batch", "decls", len(decls), "cacheHits", res.CacheHits)
	return connect.NewResponse(&CompileResponse{
		Procedures: res.Procedures,
		CacheHits:  res.CacheHits,
		TableSize:  res.Env.Len(),
	}), nil
}

// Lookup returns the table record of a global.
func (s *CompileService) Lookup(
	ctx context.Context,
	req *connect.Request[LookupRequest],
) (*connect.Response[LookupResponse], error) {
	if req.Msg.Name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("name is required"))
	}

	decl, ok := s.worker.Snapshot().Lookup(req.Msg.Name)
	if !ok {
		return connect.NewResponse(&LookupResponse{}), nil
	}
	return connect.NewResponse(&LookupResponse{
		Found: true,
		Name:  decl.Name,
		Kind:  decl.Kind.String(),
		Arity: decl.Arity,
		Index: decl.Index,
	}), nil
}

// Disassemble returns the listing of a compiled procedure.
func (s *CompileService) Disassemble(
	ctx context.Context,
	req *connect.Request[DisassembleRequest],
) (*connect.Response[DisassembleResponse], error) {
	if req.Msg.Name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("name is required"))
	}

	env := s.worker.Snapshot()
	proc, ok := env.Procedure(req.Msg.Name)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("procedure %q not found", req.Msg.Name))
	}
	return connect.NewResponse(&DisassembleResponse{
		Name:    proc.Name,
		Arity:   proc.Arity,
		Listing: vm.Disassemble(env, proc.Code),
	}), nil
}

// connectError maps compiler failures onto Connect codes.
func connectError(err error) error {
	var (
		uce *compiler.UnknownConstantError
		ume *compiler.UnsupportedMacroError
		ie  *compiler.InvariantError
		ve  *vm.VerifyError
	)
	switch {
	case errors.As(err, &uce):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.As(err, &ume):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &ie), errors.As(err, &ve):
		return connect.NewError(connect.CodeInternal, err)
	case errors.Is(err, compiler.ErrDuplicateInBatch),
		errors.Is(err, vm.ErrDuplicateDecl):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
