package server

import (
	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/vm"
)

// Procedure paths of the compile service.
const (
	CompileServiceName = "vmgen.v1.CompileService"

	CompileProcedure     = "/" + CompileServiceName + "/Compile"
	LookupProcedure      = "/" + CompileServiceName + "/Lookup"
	DisassembleProcedure = "/" + CompileServiceName + "/Disassemble"
)

// CompileRequest carries one batch of closed, erased declarations.
type CompileRequest struct {
	Decls []ir.Declaration `cbor:"1,keyasint"`
}

// CompileResponse returns the installed code in batch order.
type CompileResponse struct {
	Procedures []*vm.Procedure `cbor:"1,keyasint"`
	CacheHits  int             `cbor:"2,keyasint,omitempty"`
	// TableSize is the number of globals after installation.
	TableSize int `cbor:"3,keyasint"`
}

// LookupRequest names a global.
type LookupRequest struct {
	Name string `cbor:"1,keyasint"`
}

// LookupResponse is the table record of a global, if any.
type LookupResponse struct {
	Found bool   `cbor:"1,keyasint"`
	Name  string `cbor:"2,keyasint,omitempty"`
	Kind  string `cbor:"3,keyasint,omitempty"`
	Arity uint32 `cbor:"4,keyasint,omitempty"`
	Index uint32 `cbor:"5,keyasint,omitempty"`
}

// DisassembleRequest names a compiled procedure.
type DisassembleRequest struct {
	Name string `cbor:"1,keyasint"`
}

// DisassembleResponse is the listing of a procedure.
type DisassembleResponse struct {
	Name    string `cbor:"1,keyasint"`
	Arity   uint32 `cbor:"2,keyasint"`
	Listing string `cbor:"3,keyasint"`
}
