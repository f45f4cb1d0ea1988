// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrSchema is the class of all malformed-domain errors. Loading aborts.
	ErrSchema = errors.New("schema error")

	// ErrUnknownType is returned when a type name was never declared.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnknownPredicate is returned when a literal names an undeclared predicate.
	ErrUnknownPredicate = errors.New("unknown predicate")

	// ErrArityMismatch is returned when a literal's argument count differs
	// from its predicate signature.
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrTypeMismatch is returned when a parameter can never fill the
	// predicate slot it is used in.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrMultipleParents is returned when a type is declared with more than one parent.
	ErrMultipleParents = errors.New("type declared with multiple parents")

	// ErrTypeCycle is returned when the is-a relation contains a cycle.
	ErrTypeCycle = errors.New("cycle in type hierarchy")

	// ErrUnboundParameter is returned when a literal uses a variable that is
	// not in the action's parameter list.
	ErrUnboundParameter = errors.New("unbound parameter")

	// ErrDuplicate is returned for duplicate type, predicate, action or parameter names.
	ErrDuplicate = errors.New("duplicate declaration")

	// ErrContradiction is returned when a literal is required both true and
	// false, or is both added and deleted, by one action schema.
	ErrContradiction = errors.New("contradictory literals")
)

// SchemaError reports a malformed domain declaration.
//
// Description:
//
//	Carries the offending declaration (e.g. "action transit" or
//	"type box_loc") and the underlying cause. errors.Is(err, ErrSchema)
//	holds for every SchemaError regardless of cause.
type SchemaError struct {
	Declaration string
	Err         error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s: %v", e.Declaration, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is makes every SchemaError match ErrSchema.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// UnknownTypeError reports a reference to an undeclared type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.Type)
}

func (e *UnknownTypeError) Unwrap() error {
	return ErrUnknownType
}

func schemaErr(decl string, err error) error {
	return &SchemaError{Declaration: decl, Err: err}
}
