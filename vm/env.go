package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Global declaration table
// ---------------------------------------------------------------------------

// DeclKind says how a global is implemented.
type DeclKind uint8

const (
	DeclBuiltin  DeclKind = iota + 1 // VM intrinsic
	DeclNative                       // foreign function
	DeclCompiled                     // bytecode procedure
)

func (k DeclKind) String() string {
	switch k {
	case DeclBuiltin:
		return "builtin"
	case DeclNative:
		return "native"
	case DeclCompiled:
		return "compiled"
	}
	return fmt.Sprintf("DeclKind(%d)", uint8(k))
}

// ParseDeclKind maps a configuration spelling to a DeclKind.
func ParseDeclKind(s string) (DeclKind, error) {
	switch s {
	case "builtin":
		return DeclBuiltin, nil
	case "native", "cfun":
		return DeclNative, nil
	case "compiled":
		return DeclCompiled, nil
	}
	return 0, fmt.Errorf("vm: unknown declaration kind %q", s)
}

// Decl is the table record of one global.
type Decl struct {
	Name  string
	Arity uint32
	Kind  DeclKind
	Index uint32
}

// Reservation asks for a compiled-procedure slot of the given arity.
type Reservation struct {
	Name  string
	Arity uint32
}

var (
	// ErrDuplicateDecl is returned when a builtin or native name is added twice.
	ErrDuplicateDecl = errors.New("vm: duplicate declaration")
	// ErrNotReserved is returned when installing code for a name with no compiled slot.
	ErrNotReserved = errors.New("vm: no reserved slot")
	// ErrArityMismatch is returned when installed code disagrees with its reservation.
	ErrArityMismatch = errors.New("vm: arity mismatch")
)

// Env is an immutable global declaration table. Every update returns a new
// Env; values already handed out keep seeing the table they were given.
type Env struct {
	decls  []Decl
	procs  []*Procedure
	byName map[string]uint32
}

// NewEnv returns an empty table.
func NewEnv() *Env {
	return &Env{byName: make(map[string]uint32)}
}

func (e *Env) clone(extra int) *Env {
	n := &Env{
		decls:  make([]Decl, len(e.decls), len(e.decls)+extra),
		procs:  make([]*Procedure, len(e.procs), len(e.procs)+extra),
		byName: make(map[string]uint32, len(e.byName)+extra),
	}
	copy(n.decls, e.decls)
	copy(n.procs, e.procs)
	for k, v := range e.byName {
		n.byName[k] = v
	}
	return n
}

func (e *Env) add(d Decl) {
	d.Index = uint32(len(e.decls))
	e.decls = append(e.decls, d)
	e.procs = append(e.procs, nil)
	e.byName[d.Name] = d.Index
}

// Len returns the number of declarations.
func (e *Env) Len() int {
	return len(e.decls)
}

// Lookup returns the record for name.
func (e *Env) Lookup(name string) (Decl, bool) {
	idx, ok := e.byName[name]
	if !ok {
		return Decl{}, false
	}
	return e.decls[idx], true
}

// DeclAt returns the record with the given index.
func (e *Env) DeclAt(idx uint32) (Decl, bool) {
	if int(idx) >= len(e.decls) {
		return Decl{}, false
	}
	return e.decls[idx], true
}

// Decls returns all records in index order.
func (e *Env) Decls() []Decl {
	return append([]Decl(nil), e.decls...)
}

// Procedure returns the installed code for name, if any.
func (e *Env) Procedure(name string) (*Procedure, bool) {
	idx, ok := e.byName[name]
	if !ok || e.procs[idx] == nil {
		return nil, false
	}
	return e.procs[idx], true
}

// WithBuiltin returns a table that also contains a builtin or native
// declaration.
func (e *Env) WithBuiltin(name string, arity uint32, kind DeclKind) (*Env, error) {
	if kind != DeclBuiltin && kind != DeclNative {
		return nil, fmt.Errorf("vm: %s cannot be declared as %s", name, kind)
	}
	if _, ok := e.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDecl, name)
	}
	n := e.clone(1)
	n.add(Decl{Name: name, Arity: arity, Kind: kind})
	return n, nil
}

// Reserve returns a table with a compiled-procedure slot for every
// reservation. A name that already has a compiled slot keeps its index and
// takes the new arity; its old code is dropped. Builtin and native names
// cannot be reserved.
func (e *Env) Reserve(rs []Reservation) (*Env, error) {
	n := e.clone(len(rs))
	for _, r := range rs {
		if idx, ok := n.byName[r.Name]; ok {
			d := n.decls[idx]
			if d.Kind != DeclCompiled {
				return nil, fmt.Errorf("%w: %s is a %s declaration", ErrDuplicateDecl, r.Name, d.Kind)
			}
			d.Arity = r.Arity
			n.decls[idx] = d
			n.procs[idx] = nil
			continue
		}
		n.add(Decl{Name: r.Name, Arity: r.Arity, Kind: DeclCompiled})
	}
	return n, nil
}

// Install returns a table with the given procedures attached to their
// reserved slots.
func (e *Env) Install(procs []*Procedure) (*Env, error) {
	n := e.clone(0)
	for _, p := range procs {
		idx, ok := n.byName[p.Name]
		if !ok || n.decls[idx].Kind != DeclCompiled {
			return nil, fmt.Errorf("%w: %s", ErrNotReserved, p.Name)
		}
		if n.decls[idx].Arity != p.Arity {
			return nil, fmt.Errorf("%w: %s reserved with arity %d, code has %d",
				ErrArityMismatch, p.Name, n.decls[idx].Arity, p.Arity)
		}
		n.procs[idx] = p
	}
	return n, nil
}
