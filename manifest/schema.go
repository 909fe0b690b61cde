package manifest

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ---------------------------------------------------------------------------
// Schema validation
// ---------------------------------------------------------------------------

const schemaSource = `
#Config: {
	project?: {
		name?: string
	}
	source?: {
		dirs?: [...string & !=""]
	}
	compiler?: {
		jobs?:   int & >=0
		trace?:  [...("compiler.code_gen" | "compiler.optimize_bytecode")]
		verify?: bool
	}
	cache?: {
		path?: string
	}
	server?: {
		port?: int & >=0 & <=65535
	}
	builtin?: [...#Builtin]
	cases?: [...#Cases]
}

#Builtin: {
	name:  string & !=""
	arity: int & >=0
	kind:  "builtin" | "native"
}

#Cases: {
	name:         string & !="" & !="nat.cases_on"
	index:        int & >=0
	alternatives: int & >=1
}
`

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compiling config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks a decoded manifest against the configuration schema.
func Validate(m *Manifest) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	v := ctx.Encode(m)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
