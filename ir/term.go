// Package ir defines the erased intermediate representation consumed by the
// bytecode compiler.
//
// Terms arrive type-checked and erased: proofs and types are gone, recursors
// have been lowered to the internal constructor, projection and cases markers,
// and every declaration body is closed. Bound variables inside binder bodies
// are de Bruijn indices (Var); the compiler replaces them with Locals carrying
// a synthetic identity before it looks at the body.
package ir

import (
	"fmt"
	"math/big"
)

// ---------------------------------------------------------------------------
// Term kinds
// ---------------------------------------------------------------------------

// Kind identifies the shape of a Term.
type Kind uint8

const (
	KindVar Kind = iota + 1
	KindSort
	KindConstant
	KindMeta
	KindLocal
	KindApp
	KindLambda
	KindPi
	KindLet
	KindMacro
)

var kindNames = map[Kind]string{
	KindVar:      "Var",
	KindSort:     "Sort",
	KindConstant: "Constant",
	KindMeta:     "Meta",
	KindLocal:    "Local",
	KindApp:      "App",
	KindLambda:   "Lambda",
	KindPi:       "Pi",
	KindLet:      "Let",
	KindMacro:    "Macro",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Term is a node of the IR. The set of implementations is closed: only the
// types in this file satisfy it.
type Term interface {
	Kind() Kind
	isTerm()
}

// LocalID is the synthetic identity of a bound local.
type LocalID uint64

// Var is a loose bound variable, counted from the innermost binder.
type Var struct {
	Index uint32
}

// Sort is a universe. It never survives erasure.
type Sort struct {
	Level string
}

// Meta is a metavariable. It never survives elaboration.
type Meta struct {
	Name string
}

// Constant references a global by name. Marker is set by the erasure pass
// on the internal constructor/projection/cases heads.
type Constant struct {
	Name   string
	Marker Marker
}

// Local is a free local with a stable identity.
type Local struct {
	ID   LocalID
	Name string
}

// App applies Fn to Args. Fn may itself be an App; Spine flattens the chain.
type App struct {
	Fn   Term
	Args []Term
}

// Lambda binds one variable in Body.
type Lambda struct {
	Binder string
	Body   Term
}

// Pi is a dependent function type. It never survives erasure.
type Pi struct {
	Binder string
	Domain Term
	Body   Term
}

// LetBinding is one entry of a let chain.
type LetBinding struct {
	Name  string
	Value Term
}

// Let binds Bindings in order. Binding k sees bindings 0..k-1 as Var(k-1)..Var(0);
// Body sees all of them.
type Let struct {
	Bindings []LetBinding
	Body     Term
}

// Macro wraps an extension node.
type Macro struct {
	Def MacroDef
}

func (*Var) Kind() Kind      { return KindVar }
func (*Sort) Kind() Kind     { return KindSort }
func (*Constant) Kind() Kind { return KindConstant }
func (*Meta) Kind() Kind     { return KindMeta }
func (*Local) Kind() Kind    { return KindLocal }
func (*App) Kind() Kind      { return KindApp }
func (*Lambda) Kind() Kind   { return KindLambda }
func (*Pi) Kind() Kind       { return KindPi }
func (*Let) Kind() Kind      { return KindLet }
func (*Macro) Kind() Kind    { return KindMacro }

func (*Var) isTerm()      {}
func (*Sort) isTerm()     {}
func (*Constant) isTerm() {}
func (*Meta) isTerm()     {}
func (*Local) isTerm()    {}
func (*App) isTerm()      {}
func (*Lambda) isTerm()   {}
func (*Pi) isTerm()       {}
func (*Let) isTerm()      {}
func (*Macro) isTerm()    {}

// ---------------------------------------------------------------------------
// Macros
// ---------------------------------------------------------------------------

// MacroDef is the payload of a Macro node.
type MacroDef interface {
	// Tag names the macro kind in diagnostics.
	Tag() string
	isMacroDef()
}

// NatLit is an arbitrary-precision natural number literal.
type NatLit struct {
	Value *big.Int
}

// Quote embeds a term for reflective inspection at runtime.
type Quote struct {
	Expr Term
}

// Annotation tags Arg with a name that has no runtime meaning.
type Annotation struct {
	Name string
	Arg  Term
}

// OpaqueMacro is any macro the compiler does not understand.
type OpaqueMacro struct {
	Name string
	Args []Term
}

func (*NatLit) Tag() string        { return "nat_value" }
func (*Quote) Tag() string         { return "quote" }
func (a *Annotation) Tag() string  { return "annotation" }
func (m *OpaqueMacro) Tag() string { return m.Name }

func (*NatLit) isMacroDef()      {}
func (*Quote) isMacroDef()       {}
func (*Annotation) isMacroDef()  {}
func (*OpaqueMacro) isMacroDef() {}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Const returns an unmarked constant.
func Const(name string) *Constant { return &Constant{Name: name} }

// BVar returns the loose bound variable i.
func BVar(i uint32) *Var { return &Var{Index: i} }

// Mk returns fn applied to args, or fn itself when args is empty.
func Mk(fn Term, args ...Term) Term {
	if len(args) == 0 {
		return fn
	}
	return &App{Fn: fn, Args: args}
}

// Lam wraps body in one lambda per binder name, outermost first.
func Lam(binders []string, body Term) Term {
	for i := len(binders) - 1; i >= 0; i-- {
		body = &Lambda{Binder: binders[i], Body: body}
	}
	return body
}

// LetIn builds a single let chain.
func LetIn(body Term, bindings ...LetBinding) Term {
	return &Let{Bindings: bindings, Body: body}
}

// Nat returns a natural number literal.
func Nat(v int64) Term {
	return &Macro{Def: &NatLit{Value: big.NewInt(v)}}
}

// NatBig returns a natural number literal from an arbitrary-precision value.
func NatBig(v *big.Int) Term {
	return &Macro{Def: &NatLit{Value: new(big.Int).Set(v)}}
}

// QuoteOf returns a quotation of e.
func QuoteOf(e Term) Term {
	return &Macro{Def: &Quote{Expr: e}}
}

// Annotate wraps e in a named annotation.
func Annotate(name string, e Term) Term {
	return &Macro{Def: &Annotation{Name: name, Arg: e}}
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Declaration is one (name, closed term) pair of a compilation batch.
type Declaration struct {
	Name  string
	Value Term
}
