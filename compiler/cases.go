package compiler

import (
	"github.com/chazu/vmgen/ir"
	"github.com/chazu/vmgen/vm"
)

// ---------------------------------------------------------------------------
// Pattern-match lowering
//
// A cases application is (head major alt_1 ... alt_n). The major premise is
// compiled first; the dispatch instruction pops it and pushes the fields of
// the matching constructor, which the alternative's leading lambdas bind.
// Every alternative but the last ends in a GOTO to the join point.
// ---------------------------------------------------------------------------

// isCasesHead reports whether k heads a case analysis: the internal cases
// marker, the natural-number eliminator, or a registered built-in analyzer.
func (c *Compiler) isCasesHead(k *ir.Constant) bool {
	if _, ok := ir.IsInternalCases(k); ok {
		return true
	}
	if k.Marker.Kind != ir.NoMarker {
		return false
	}
	if k.Name == ir.NatCasesOnName {
		return true
	}
	_, ok := c.cases.Lookup(k.Name)
	return ok
}

func (c *Compiler) compileCasesOn(head *ir.Constant, args []ir.Term, bpz uint32, sc *scope) error {
	var dispatch vm.Instruction
	num, isInternal := ir.IsInternalCases(head)
	switch {
	case isInternal:
		switch num {
		case 1:
			dispatch = vm.Destruct()
		case 2:
			dispatch = vm.Cases2()
		default:
			dispatch = vm.CasesN(int(num))
		}
	case head.Name == ir.NatCasesOnName:
		num = 2
		dispatch = vm.NatCases()
	default:
		bc, _ := c.cases.Lookup(head.Name)
		num = bc.NumAlts
		dispatch = vm.BuiltinCases(bc.Index, int(num))
	}
	if num == 0 {
		invariantf("case analysis %s with no alternatives", describeHead(head))
	}
	if uint32(len(args)) != num+1 {
		invariantf("case analysis %s expects %d arguments, got %d", describeHead(head), num+1, len(args))
	}

	// Major premise
	if err := c.compileExpr(args[0], bpz, sc); err != nil {
		return err
	}
	casesPC := c.builder.Emit(dispatch)
	branches := dispatch.Op.Info().Branches

	entries := make([]int, 0, num)
	fields := make([]uint32, 0, num)
	gotos := make([]int, 0, num-1)
	for i, alt := range args[1:] {
		entries = append(entries, c.builder.NextPC())

		altScope := sc
		altBpz := bpz
		var locals []ir.Term
		b := alt
		for {
			lam, ok := b.(*ir.Lambda)
			if !ok {
				break
			}
			l := c.fresh(lam.Binder)
			altScope = altScope.bind(l.ID, altBpz)
			locals = append(locals, l)
			altBpz++
			b = lam.Body
		}
		b = ir.InstantiateRev(b, locals)

		if err := c.compileExpr(b, altBpz, altScope); err != nil {
			return err
		}
		if n := len(locals); n > 0 {
			c.builder.Emit(vm.Drop(uint32(n)))
		}
		fields = append(fields, uint32(len(locals)))

		if i+1 < int(num) {
			gotos = append(gotos, c.builder.Emit(vm.Goto()))
		}
	}

	c.builder.SetFields(casesPC, fields)
	if branches {
		for i, pc := range entries {
			c.builder.PatchTarget(casesPC, i, pc)
		}
	}
	end := c.builder.NextPC()
	for _, pc := range gotos {
		c.builder.PatchTarget(pc, 0, end)
	}
	return nil
}

func describeHead(k *ir.Constant) string {
	if k.Marker.Kind != ir.NoMarker {
		return k.Marker.String()
	}
	return k.Name
}
