// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package problem

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianPlan/services/planner/domain"
)

var (
	// ErrUnknownObject is returned when a name does not resolve to a usable object.
	ErrUnknownObject = errors.New("unknown object")

	// ErrDuplicateObject is returned when two objects share a name.
	ErrDuplicateObject = errors.New("duplicate object")

	// ErrInvalidFact is returned for malformed initial facts or goal literals.
	ErrInvalidFact = errors.New("invalid fact")
)

// UnknownObjectError reports an undeclared object, or an object used where
// its declared type does not fit.
type UnknownObjectError struct {
	Object string
	Reason string
}

func (e *UnknownObjectError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unknown object %q", e.Object)
	}
	return fmt.Sprintf("unknown object %q: %s", e.Object, e.Reason)
}

func (e *UnknownObjectError) Unwrap() error {
	return ErrUnknownObject
}

// Object is a named problem constant with exactly one declared type.
type Object struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Catalog holds a problem's objects in declaration order.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Catalog struct {
	types   *domain.Hierarchy
	objects []Object
	index   map[string]int
}

// NewCatalog validates object declarations against the type hierarchy.
//
// Outputs:
//   - *Catalog: The catalog.
//   - error: *domain.UnknownTypeError for undeclared types, ErrDuplicateObject
//     for repeated names.
func NewCatalog(types *domain.Hierarchy, objects []Object) (*Catalog, error) {
	c := &Catalog{
		types:   types,
		objects: make([]Object, 0, len(objects)),
		index:   make(map[string]int, len(objects)),
	}
	for _, o := range objects {
		if o.Name == "" {
			return nil, fmt.Errorf("%w: empty object name", ErrInvalidFact)
		}
		if _, dup := c.index[o.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateObject, o.Name)
		}
		if !types.Declared(o.Type) {
			return nil, fmt.Errorf("object %s: %w", o.Name, &domain.UnknownTypeError{Type: o.Type})
		}
		c.index[o.Name] = len(c.objects)
		c.objects = append(c.objects, o)
	}
	return c, nil
}

// ObjectsOfType returns every object whose type is t or a subtype of t,
// in declaration order.
//
// Outputs:
//   - []Object: Matching objects. Empty if none.
//   - error: *domain.UnknownTypeError if t was never declared.
func (c *Catalog) ObjectsOfType(t string) ([]Object, error) {
	if !c.types.Declared(t) {
		return nil, &domain.UnknownTypeError{Type: t}
	}
	var out []Object
	for _, o := range c.objects {
		ok, err := c.types.IsSubtype(o.Type, t)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// Object looks up a declared object.
func (c *Catalog) Object(name string) (Object, bool) {
	idx, ok := c.index[name]
	if !ok {
		return Object{}, false
	}
	return c.objects[idx], true
}

// Objects returns all objects in declaration order.
func (c *Catalog) Objects() []Object {
	out := make([]Object, len(c.objects))
	copy(out, c.objects)
	return out
}

// Len returns the number of objects.
func (c *Catalog) Len() int {
	return len(c.objects)
}

// Check verifies that name is a declared object usable where typ is expected.
//
// Outputs:
//   - error: *UnknownObjectError when the object is missing or its type
//     is not a subtype of typ.
func (c *Catalog) Check(name, typ string) error {
	o, ok := c.Object(name)
	if !ok {
		return &UnknownObjectError{Object: name}
	}
	fits, err := c.types.IsSubtype(o.Type, typ)
	if err != nil {
		return err
	}
	if !fits {
		return &UnknownObjectError{
			Object: name,
			Reason: fmt.Sprintf("declared %s, not a %s", o.Type, typ),
		}
	}
	return nil
}
