// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates Go values against an embedded CUE schema and turns
// CUE's error lists into field-qualified messages.
//
//	//go:embed schema.cue
//	var schema string
//
//	if err := cueutil.Validate(schema, "#Config", view); err != nil {
//	    return err // *cueutil.ValidationError naming every offending field
//	}
package cueutil
