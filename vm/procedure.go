package vm

// ---------------------------------------------------------------------------
// Procedure: compiled code for one global
// ---------------------------------------------------------------------------

// Procedure is the finished code of a compiled global. The first Arity
// values of its frame are the arguments, last argument deepest.
type Procedure struct {
	Name  string
	Arity uint32
	Code  []Instruction
}

// Clone returns a deep copy of p.
func (p *Procedure) Clone() *Procedure {
	code := make([]Instruction, len(p.Code))
	for i, in := range p.Code {
		code[i] = in.Clone()
	}
	return &Procedure{Name: p.Name, Arity: p.Arity, Code: code}
}
