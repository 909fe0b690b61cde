package ir

// ---------------------------------------------------------------------------
// Application spines and binder instantiation
// ---------------------------------------------------------------------------

// Spine returns the head of an application chain and its arguments in
// application order. A non-application is its own head with no arguments.
func Spine(e Term) (Term, []Term) {
	var chunks [][]Term
	for {
		app, ok := e.(*App)
		if !ok {
			break
		}
		chunks = append(chunks, app.Args)
		e = app.Fn
	}
	var args []Term
	for i := len(chunks) - 1; i >= 0; i-- {
		args = append(args, chunks[i]...)
	}
	return e, args
}

// Head returns the head of an application chain.
func Head(e Term) Term {
	for {
		app, ok := e.(*App)
		if !ok {
			return e
		}
		e = app.Fn
	}
}

// Arity counts the leading lambdas of e.
func Arity(e Term) uint32 {
	var n uint32
	for {
		lam, ok := e.(*Lambda)
		if !ok {
			return n
		}
		n++
		e = lam.Body
	}
}

// InstantiateRev replaces the loose variables of e by subst, where Var(0)
// is the last element of subst. Variables beyond subst are lowered by
// len(subst). Quotations are left untouched: their contents are data.
func InstantiateRev(e Term, subst []Term) Term {
	if len(subst) == 0 {
		return e
	}
	return instantiate(e, 0, subst)
}

func instantiate(e Term, offset uint32, subst []Term) Term {
	n := uint32(len(subst))
	switch t := e.(type) {
	case *Var:
		if t.Index < offset {
			return t
		}
		if t.Index < offset+n {
			return subst[n-1-(t.Index-offset)]
		}
		return &Var{Index: t.Index - n}
	case *Sort, *Constant, *Meta, *Local:
		return e
	case *App:
		args := make([]Term, len(t.Args))
		for i, a := range t.Args {
			args[i] = instantiate(a, offset, subst)
		}
		return &App{Fn: instantiate(t.Fn, offset, subst), Args: args}
	case *Lambda:
		return &Lambda{Binder: t.Binder, Body: instantiate(t.Body, offset+1, subst)}
	case *Pi:
		return &Pi{
			Binder: t.Binder,
			Domain: instantiate(t.Domain, offset, subst),
			Body:   instantiate(t.Body, offset+1, subst),
		}
	case *Let:
		bs := make([]LetBinding, len(t.Bindings))
		for i, b := range t.Bindings {
			bs[i] = LetBinding{Name: b.Name, Value: instantiate(b.Value, offset+uint32(i), subst)}
		}
		return &Let{Bindings: bs, Body: instantiate(t.Body, offset+uint32(len(t.Bindings)), subst)}
	case *Macro:
		switch d := t.Def.(type) {
		case *Annotation:
			return &Macro{Def: &Annotation{Name: d.Name, Arg: instantiate(d.Arg, offset, subst)}}
		case *OpaqueMacro:
			args := make([]Term, len(d.Args))
			for i, a := range d.Args {
				args[i] = instantiate(a, offset, subst)
			}
			return &Macro{Def: &OpaqueMacro{Name: d.Name, Args: args}}
		}
		return e
	}
	return e
}

// HasLooseVars reports whether e mentions a variable not bound inside it.
func HasLooseVars(e Term) bool {
	return looseAbove(e, 0)
}

func looseAbove(e Term, depth uint32) bool {
	switch t := e.(type) {
	case *Var:
		return t.Index >= depth
	case *App:
		if looseAbove(t.Fn, depth) {
			return true
		}
		for _, a := range t.Args {
			if looseAbove(a, depth) {
				return true
			}
		}
	case *Lambda:
		return looseAbove(t.Body, depth+1)
	case *Pi:
		return looseAbove(t.Domain, depth) || looseAbove(t.Body, depth+1)
	case *Let:
		for i, b := range t.Bindings {
			if looseAbove(b.Value, depth+uint32(i)) {
				return true
			}
		}
		return looseAbove(t.Body, depth+uint32(len(t.Bindings)))
	case *Macro:
		switch d := t.Def.(type) {
		case *Annotation:
			return looseAbove(d.Arg, depth)
		case *OpaqueMacro:
			for _, a := range d.Args {
				if looseAbove(a, depth) {
					return true
				}
			}
		}
	}
	return false
}

// Constants calls fn for every constant node in e, in pre-order.
// Quotations are not entered.
func Constants(e Term, fn func(*Constant)) {
	switch t := e.(type) {
	case *Constant:
		fn(t)
	case *App:
		Constants(t.Fn, fn)
		for _, a := range t.Args {
			Constants(a, fn)
		}
	case *Lambda:
		Constants(t.Body, fn)
	case *Pi:
		Constants(t.Domain, fn)
		Constants(t.Body, fn)
	case *Let:
		for _, b := range t.Bindings {
			Constants(b.Value, fn)
		}
		Constants(t.Body, fn)
	case *Macro:
		switch d := t.Def.(type) {
		case *Annotation:
			Constants(d.Arg, fn)
		case *OpaqueMacro:
			for _, a := range d.Args {
				Constants(a, fn)
			}
		}
	}
}
