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

import "fmt"

// RootType is the implicit root every declaration may name as a parent.
const RootType = "object"

// TypeDecl declares a type and its optional parent.
//
// An empty Parent places the type directly under RootType.
type TypeDecl struct {
	Name   string `json:"name" yaml:"name"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// Hierarchy is a forest of type names under a single-parent is-a relation.
//
// Description:
//
//	Built once from the domain's type declarations and immutable
//	afterwards. Every declared type resolves to exactly one path to a root.
//
// Thread Safety: Safe for concurrent use after construction.
type Hierarchy struct {
	parent map[string]string
	order  []string
}

// NewHierarchy builds and validates a type hierarchy.
//
// Description:
//
//	Declarations may appear in any order. A type declared twice with the
//	same parent is accepted; declared with two different parents it is
//	rejected, as are cycles and parents that were never declared.
//	RootType is always available.
//
// Inputs:
//   - decls: Type declarations.
//
// Outputs:
//   - *Hierarchy: The validated hierarchy.
//   - error: A *SchemaError on malformed declarations.
func NewHierarchy(decls []TypeDecl) (*Hierarchy, error) {
	h := &Hierarchy{
		parent: map[string]string{RootType: ""},
		order:  []string{RootType},
	}

	for _, d := range decls {
		decl := "type " + d.Name
		if d.Name == "" {
			return nil, schemaErr("type declaration", fmt.Errorf("empty type name"))
		}
		if d.Name == d.Parent {
			return nil, schemaErr(decl, ErrTypeCycle)
		}
		if d.Name == RootType {
			if d.Parent != "" {
				return nil, schemaErr(decl, fmt.Errorf("%s cannot have a parent", RootType))
			}
			continue
		}
		parent := d.Parent
		if parent == "" {
			parent = RootType
		}
		if prev, ok := h.parent[d.Name]; ok {
			if prev != parent {
				return nil, schemaErr(decl, fmt.Errorf("%w: %q and %q", ErrMultipleParents, prev, parent))
			}
			continue
		}
		h.parent[d.Name] = parent
		h.order = append(h.order, d.Name)
	}

	for _, name := range h.order {
		if p := h.parent[name]; p != "" {
			if _, ok := h.parent[p]; !ok {
				return nil, schemaErr("type "+name, &UnknownTypeError{Type: p})
			}
		}
	}

	for _, name := range h.order {
		seen := map[string]bool{name: true}
		for p := h.parent[name]; p != ""; p = h.parent[p] {
			if seen[p] {
				return nil, schemaErr("type "+name, ErrTypeCycle)
			}
			seen[p] = true
		}
	}

	return h, nil
}

// IsSubtype reports whether ancestor is child or lies on child's ancestor chain.
//
// Outputs:
//   - bool: True if child is-a ancestor.
//   - error: *UnknownTypeError if either name was never declared.
func (h *Hierarchy) IsSubtype(child, ancestor string) (bool, error) {
	if _, ok := h.parent[child]; !ok {
		return false, &UnknownTypeError{Type: child}
	}
	if _, ok := h.parent[ancestor]; !ok {
		return false, &UnknownTypeError{Type: ancestor}
	}
	for t := child; t != ""; t = h.parent[t] {
		if t == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// Declared reports whether the type name is known.
func (h *Hierarchy) Declared(name string) bool {
	_, ok := h.parent[name]
	return ok
}

// Parent returns the declared parent, or "" for RootType.
func (h *Hierarchy) Parent(name string) (string, error) {
	p, ok := h.parent[name]
	if !ok {
		return "", &UnknownTypeError{Type: name}
	}
	return p, nil
}

// Ancestors returns the chain from name (inclusive) up to its root.
func (h *Hierarchy) Ancestors(name string) ([]string, error) {
	if !h.Declared(name) {
		return nil, &UnknownTypeError{Type: name}
	}
	var chain []string
	for t := name; t != ""; t = h.parent[t] {
		chain = append(chain, t)
	}
	return chain, nil
}

// Types returns all type names in declaration order, RootType first.
func (h *Hierarchy) Types() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// related reports whether a and b lie on one ancestor chain.
func (h *Hierarchy) related(a, b string) (bool, error) {
	sub, err := h.IsSubtype(a, b)
	if err != nil || sub {
		return sub, err
	}
	return h.IsSubtype(b, a)
}
