package spec

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

// documentSchema is the CUE schema every compiled specification document
// must satisfy. Validation happens before JSON decoding so structural
// problems surface with field-level positions instead of zero values.
const documentSchema = `
#Document: {
	domain:  string & !=""
	version?: string
	behaviors: [...#Behavior]
	global_invariants?: [...string & !=""]
}

#Behavior: {
	name: string & !=""
	preconditions?: [...string & !=""]
	postconditions?: [...string & !=""]
	invariants?: [...string & !=""]
}
`

// validateSchema checks raw JSON against the document schema.
// Returns a SpecError with the full CUE error detail on failure.
func validateSchema(data []byte) error {
	cuectx := cuecontext.New()

	schema := cuectx.CompileString(documentSchema).LookupPath(cue.MakePath(cue.Def("#Document")))
	if err := schema.Err(); err != nil {
		// Schema is a compile-time constant; failure here is a bug.
		return &SpecError{Message: "internal schema error", Err: err}
	}

	expr, err := cuejson.Extract("document.json", data)
	if err != nil {
		return &SpecError{Message: "invalid JSON", Err: err}
	}
	doc := cuectx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return &SpecError{Message: "invalid JSON", Err: err}
	}

	unified := schema.Unify(doc)
	// Concrete forces required fields to be present, not just
	// satisfiable: a document missing "domain" is an error, not an
	// incomplete value.
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return &SpecError{
			Message: "schema validation failed",
			Err:     cueerrors.New(cueerrors.Details(err, nil)),
		}
	}
	return nil
}
