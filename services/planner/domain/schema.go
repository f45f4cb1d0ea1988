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
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Schema Types
// -----------------------------------------------------------------------------

// Parameter is a typed slot. Action parameter names start with "?".
type Parameter struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// PredicateSignature fixes a predicate's name, arity and slot types.
type PredicateSignature struct {
	Name   string      `json:"name" yaml:"name"`
	Params []Parameter `json:"params" yaml:"params"`
}

// Arity returns the number of slots.
func (p PredicateSignature) Arity() int {
	return len(p.Params)
}

// Literal is a possibly negated predicate application.
//
// Args are either variables ("?b") bound by an action's parameters or
// object constants resolved against the problem's catalog.
type Literal struct {
	Predicate string   `json:"predicate" yaml:"predicate"`
	Args      []string `json:"args" yaml:"args"`
	Negated   bool     `json:"negated,omitempty" yaml:"negated,omitempty"`
}

// Pos builds a positive literal.
func Pos(predicate string, args ...string) Literal {
	return Literal{Predicate: predicate, Args: args}
}

// Neg builds a negative literal.
func Neg(predicate string, args ...string) Literal {
	return Literal{Predicate: predicate, Args: args, Negated: true}
}

// String renders the literal as "on(?b,?l)" or "not on(?b,?l)".
func (l Literal) String() string {
	s := l.Predicate + "(" + strings.Join(l.Args, ",") + ")"
	if l.Negated {
		return "not " + s
	}
	return s
}

// sameAtom reports whether two literals name the same atom, ignoring sign.
func (l Literal) sameAtom(o Literal) bool {
	if l.Predicate != o.Predicate || len(l.Args) != len(o.Args) {
		return false
	}
	for i := range l.Args {
		if l.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// IsVariable reports whether a literal argument is a parameter reference.
func IsVariable(arg string) bool {
	return strings.HasPrefix(arg, "?")
}

// ActionSchema is a STRIPS operator over typed parameters.
//
// Precondition holds positive and negative literals. Add and Delete hold
// positive literals only.
type ActionSchema struct {
	Name         string      `json:"name" yaml:"name"`
	Params       []Parameter `json:"params" yaml:"params"`
	Precondition []Literal   `json:"precondition" yaml:"precondition"`
	Add          []Literal   `json:"add" yaml:"add"`
	Delete       []Literal   `json:"delete" yaml:"delete"`
}

// Param returns the parameter with the given name.
func (a ActionSchema) Param(name string) (Parameter, bool) {
	for _, p := range a.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Definition is the parsed form of a domain description.
//
// It is produced by an external parser or built in code.
type Definition struct {
	Name       string               `json:"name" yaml:"name"`
	Types      []TypeDecl           `json:"types" yaml:"types"`
	Predicates []PredicateSignature `json:"predicates" yaml:"predicates"`
	Actions    []ActionSchema       `json:"actions" yaml:"actions"`
}

// -----------------------------------------------------------------------------
// Domain
// -----------------------------------------------------------------------------

// Domain is the validated schema model: type hierarchy, predicate
// signatures and action schemas.
//
// Thread Safety: Immutable after New returns; safe for concurrent use.
type Domain struct {
	name       string
	types      *Hierarchy
	predicates []PredicateSignature
	predIndex  map[string]int
	actions    []ActionSchema
	actIndex   map[string]int
}

// New validates a domain definition.
//
// Description:
//
//	Checks that every type is declared, every literal names a declared
//	predicate with matching arity, every variable is a parameter of its
//	action, no parameter is used in a slot of a disjoint type, and no
//	schema requires a literal both true and false or both adds and deletes
//	it. A malformed domain cannot be partially used: the first problem
//	aborts loading.
//
// Inputs:
//   - def: The parsed domain.
//
// Outputs:
//   - *Domain: The validated, immutable domain.
//   - error: A *SchemaError (errors.Is(err, ErrSchema)) on any violation.
func New(def Definition) (*Domain, error) {
	types, err := NewHierarchy(def.Types)
	if err != nil {
		return nil, err
	}

	d := &Domain{
		name:      def.Name,
		types:     types,
		predIndex: make(map[string]int, len(def.Predicates)),
		actIndex:  make(map[string]int, len(def.Actions)),
	}

	for _, p := range def.Predicates {
		decl := "predicate " + p.Name
		if p.Name == "" {
			return nil, schemaErr("predicate declaration", fmt.Errorf("empty predicate name"))
		}
		if _, dup := d.predIndex[p.Name]; dup {
			return nil, schemaErr(decl, ErrDuplicate)
		}
		for _, param := range p.Params {
			if !types.Declared(param.Type) {
				return nil, schemaErr(decl, &UnknownTypeError{Type: param.Type})
			}
		}
		d.predIndex[p.Name] = len(d.predicates)
		d.predicates = append(d.predicates, clonePredicate(p))
	}

	for _, a := range def.Actions {
		if err := d.checkAction(a); err != nil {
			return nil, err
		}
		d.actIndex[a.Name] = len(d.actions)
		d.actions = append(d.actions, cloneAction(a))
	}

	return d, nil
}

func (d *Domain) checkAction(a ActionSchema) error {
	decl := "action " + a.Name
	if a.Name == "" {
		return schemaErr("action declaration", fmt.Errorf("empty action name"))
	}
	if _, dup := d.actIndex[a.Name]; dup {
		return schemaErr(decl, ErrDuplicate)
	}

	seen := make(map[string]bool, len(a.Params))
	for _, p := range a.Params {
		if !IsVariable(p.Name) {
			return schemaErr(decl, fmt.Errorf("parameter %q must start with '?'", p.Name))
		}
		if seen[p.Name] {
			return schemaErr(decl, fmt.Errorf("%w: parameter %s", ErrDuplicate, p.Name))
		}
		seen[p.Name] = true
		if !d.types.Declared(p.Type) {
			return schemaErr(decl, &UnknownTypeError{Type: p.Type})
		}
	}

	groups := []struct {
		name     string
		lits     []Literal
		negAllow bool
	}{
		{"precondition", a.Precondition, true},
		{"add", a.Add, false},
		{"delete", a.Delete, false},
	}
	for _, g := range groups {
		for _, lit := range g.lits {
			if lit.Negated && !g.negAllow {
				return schemaErr(decl, fmt.Errorf("negated literal %s in %s list", lit, g.name))
			}
			if err := d.checkLiteral(a, lit); err != nil {
				return schemaErr(decl, err)
			}
		}
	}

	for i, l := range a.Precondition {
		for _, o := range a.Precondition[i+1:] {
			if l.Negated != o.Negated && l.sameAtom(o) {
				return schemaErr(decl, fmt.Errorf("%w: %s required true and false", ErrContradiction, Pos(l.Predicate, l.Args...)))
			}
		}
	}
	for _, add := range a.Add {
		for _, del := range a.Delete {
			if add.sameAtom(del) {
				return schemaErr(decl, fmt.Errorf("%w: %s both added and deleted", ErrContradiction, add))
			}
		}
	}
	return nil
}

func (d *Domain) checkLiteral(a ActionSchema, lit Literal) error {
	idx, ok := d.predIndex[lit.Predicate]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPredicate, lit.Predicate)
	}
	sig := d.predicates[idx]
	if len(lit.Args) != sig.Arity() {
		return fmt.Errorf("%w: %s has %d args, signature has %d", ErrArityMismatch, lit, len(lit.Args), sig.Arity())
	}
	for i, arg := range lit.Args {
		if !IsVariable(arg) {
			continue
		}
		param, ok := a.Param(arg)
		if !ok {
			return fmt.Errorf("%w: %s in %s", ErrUnboundParameter, arg, lit)
		}
		related, err := d.types.related(param.Type, sig.Params[i].Type)
		if err != nil {
			return err
		}
		if !related {
			return fmt.Errorf("%w: %s is %s, %s slot %d expects %s",
				ErrTypeMismatch, arg, param.Type, sig.Name, i, sig.Params[i].Type)
		}
	}
	return nil
}

// Name returns the domain name.
func (d *Domain) Name() string {
	return d.name
}

// Types returns the type hierarchy.
func (d *Domain) Types() *Hierarchy {
	return d.types
}

// Predicates returns the predicate signatures in declaration order.
func (d *Domain) Predicates() []PredicateSignature {
	out := make([]PredicateSignature, len(d.predicates))
	for i, p := range d.predicates {
		out[i] = clonePredicate(p)
	}
	return out
}

// Actions returns the action schemas in declaration order.
func (d *Domain) Actions() []ActionSchema {
	out := make([]ActionSchema, len(d.actions))
	for i, a := range d.actions {
		out[i] = cloneAction(a)
	}
	return out
}

// Predicate looks up a signature by name.
func (d *Domain) Predicate(name string) (PredicateSignature, bool) {
	idx, ok := d.predIndex[name]
	if !ok {
		return PredicateSignature{}, false
	}
	return clonePredicate(d.predicates[idx]), true
}

// Action looks up an action schema by name.
func (d *Domain) Action(name string) (ActionSchema, bool) {
	idx, ok := d.actIndex[name]
	if !ok {
		return ActionSchema{}, false
	}
	return cloneAction(d.actions[idx]), true
}

func clonePredicate(p PredicateSignature) PredicateSignature {
	p.Params = append([]Parameter(nil), p.Params...)
	return p
}

func cloneLiterals(lits []Literal) []Literal {
	if lits == nil {
		return nil
	}
	out := make([]Literal, len(lits))
	for i, l := range lits {
		l.Args = append([]string(nil), l.Args...)
		out[i] = l
	}
	return out
}

func cloneAction(a ActionSchema) ActionSchema {
	a.Params = append([]Parameter(nil), a.Params...)
	a.Precondition = cloneLiterals(a.Precondition)
	a.Add = cloneLiterals(a.Add)
	a.Delete = cloneLiterals(a.Delete)
	return a
}
