package schema

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// documentSchema constrains the shape of a Document. Type names are left
// as free strings so that ParseType reports them as ErrUnsupportedType.
const documentSchema = `
#Name: =~"^[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$"

#Type: string & !=""

#Method: {
	name:     #Name
	params?:  [...#Type]
	returns?: string
	skip?:    int & >=0
	slot?:    int & >=0
}

#Field: {
	name: #Name
	type: #Type
}

#Interface: {
	name:      #Name
	parent?:   #Name
	novtable?: bool
	fields?:   [...#Field]
	methods?:  [...#Method]
}

#Factory: {
	symbol:  =~"^[A-Za-z_][A-Za-z0-9_]*$"
	type:    #Name
	params?: [...#Type]
}

#Document: {
	interfaces?: [...#Interface]
	factories?:  [...#Factory]
}
`

// cue.Context is not safe for concurrent use.
var (
	cueMu  sync.Mutex
	cueCtx *cue.Context
	cueDoc cue.Value
)

func documentDef() (*cue.Context, cue.Value, error) {
	if cueCtx == nil {
		ctx := cuecontext.New()
		v := ctx.CompileString(documentSchema)
		if err := v.Err(); err != nil {
			return nil, cue.Value{}, fmt.Errorf("schema: compiling document definition: %w", err)
		}
		cueCtx = ctx
		cueDoc = v.LookupPath(cue.ParsePath("#Document"))
	}
	return cueCtx, cueDoc, nil
}

// Validate checks the structure of doc: identifier syntax, required keys,
// non-negative skips and slots, no unknown keys. Failures wrap
// ErrInvalidSchema.
func Validate(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidSchema)
	}

	cueMu.Lock()
	defer cueMu.Unlock()

	ctx, def, err := documentDef()
	if err != nil {
		return err
	}
	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return nil
}
