// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ErrSchema is returned when the schema itself cannot be compiled or does not
// define the requested definition. It indicates a programming error, not bad
// user input.
var ErrSchema = errors.New("invalid CUE schema")

// Validate unifies value with definition (e.g. "#Config") from schema and
// requires the result to be concrete. Violations are returned as
// *ValidationError.
func Validate(schema, definition string, value any) error {
	ctx := cuecontext.New()

	compiled := ctx.CompileString(schema, cue.Filename("schema.cue"))
	if err := compiled.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	def := compiled.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("%w: definition %s not found", ErrSchema, definition)
	}

	encoded := ctx.Encode(value)
	if err := encoded.Err(); err != nil {
		return FormatError(err, definition)
	}

	if err := def.Unify(encoded).Validate(cue.Concrete(true)); err != nil {
		return FormatError(err, definition)
	}
	return nil
}
