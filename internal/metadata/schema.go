package metadata

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// schemaSource constrains the shape of the keys sqlgate itself reads.
// Every struct stays open so plugins can carry their own keys.
const schemaSource = `
#ForeignKey: {
	column:       string
	other_table:  string
	other_column: string
}

#Query: {
	sql: string
	...
}

#Table: {
	label_column?: string
	foreign_keys?: [...#ForeignKey]
	...
}

#Database: {
	queries?: {[string]: string | #Query}
	tables?: {[string]: #Table}
	...
}

#Metadata: {
	title?:        string
	license?:      string
	license_url?:  string
	source?:       string
	source_url?:   string
	about?:        string
	about_url?:    string
	custom_units?: [...string]
	plugins?: {[string]: _}
	databases?: {[string]: #Database}
	...
}
`

// validate checks doc against the #Metadata schema.
func validate(doc map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile metadata schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Metadata"))

	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid metadata: %s", cueerrors.Details(err, nil))
	}
	return nil
}
