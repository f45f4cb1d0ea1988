// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ground

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianPlan/services/planner/domain"
	"github.com/AleutianAI/AleutianPlan/services/planner/problem"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrGroundingOverflow is returned when a parameter domain product exceeds the bound.
	ErrGroundingOverflow = errors.New("grounding overflow")

	// ErrUnknownAction is returned when an action schema name is not declared.
	ErrUnknownAction = errors.New("unknown action")

	// ErrNotGrounded is returned for a type-consistent action instance that
	// was dropped because its precondition is unsatisfiable.
	ErrNotGrounded = errors.New("action instance not in ground universe")
)

// GroundingOverflowError reports a predicate or action whose parameter
// domains multiply out beyond the configured bound.
//
// The condition is recoverable: callers may retry with a relaxed bound.
type GroundingOverflowError struct {
	Kind  string // "predicate" or "action"
	Name  string
	Size  uint64 // saturates at the bound+1 when the product overflows
	Limit int
}

func (e *GroundingOverflowError) Error() string {
	return fmt.Sprintf("grounding overflow: %s %s has %d instances, limit %d", e.Kind, e.Name, e.Size, e.Limit)
}

func (e *GroundingOverflowError) Unwrap() error {
	return ErrGroundingOverflow
}

// -----------------------------------------------------------------------------
// Ground Types
// -----------------------------------------------------------------------------

// AtomID indexes an interned ground atom within one Universe.
type AtomID uint32

// ActionID indexes an interned ground action within one Universe.
type ActionID uint32

// Atom is a predicate applied to concrete objects.
type Atom struct {
	Predicate string
	Args      []string
}

// String renders "on(b0,l0)".
func (a Atom) String() string {
	return atomKey(a.Predicate, a.Args)
}

// Literal converts the atom back to a positive ground literal.
func (a Atom) Literal() domain.Literal {
	return domain.Pos(a.Predicate, a.Args...)
}

// Action is one grounding of an action schema.
//
// Pre and NegPre are the positive and negative precondition atoms; Add
// and Del the effect atoms. Del never contains an atom that is also in Add.
// The slices are shared and must not be modified.
type Action struct {
	ID     ActionID
	Schema string
	Args   []string
	Pre    []AtomID
	NegPre []AtomID
	Add    []AtomID
	Del    []AtomID
}

// String renders "transit(b0,l0,l7)".
func (a Action) String() string {
	return atomKey(a.Schema, a.Args)
}

// Goal is a conjunction of ground literals.
type Goal struct {
	Pos []AtomID
	Neg []AtomID
}

// Plan is an ordered sequence of ground actions.
type Plan []ActionID

// Strings renders each step with the universe's action names.
func (p Plan) Strings(u *Universe) []string {
	out := make([]string, len(p))
	for i, id := range p {
		out[i] = u.Action(id).String()
	}
	return out
}

func atomKey(name string, args []string) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a)
	}
	b.WriteByte(')')
	return b.String()
}

// -----------------------------------------------------------------------------
// Universe
// -----------------------------------------------------------------------------

// Universe is the finite alphabet of ground atoms and ground actions for
// one problem, plus the problem's resolved initial facts and goal.
//
// Description:
//
//	Atoms and actions are interned once into arrays and referenced by
//	index everywhere else. Enumeration order is fixed by predicate and
//	schema declaration order, then by catalog declaration order of the
//	arguments, so two groundings of the same input are identical.
//
// Thread Safety: Immutable after Ground returns; safe for concurrent use.
type Universe struct {
	problem *problem.Problem

	atoms     []Atom
	atomIndex map[string]AtomID
	predAtoms map[string][]AtomID

	actions     []Action
	actionIndex map[string]ActionID

	init    []AtomID
	goal    Goal
	dropped int
	digest  uint64
}

// Problem returns the problem the universe was grounded from.
func (u *Universe) Problem() *problem.Problem {
	return u.problem
}

// Domain returns the problem's domain.
func (u *Universe) Domain() *domain.Domain {
	return u.problem.Domain()
}

// NumAtoms returns the size of the atom universe.
func (u *Universe) NumAtoms() int {
	return len(u.atoms)
}

// Atom returns the atom with the given ID.
func (u *Universe) Atom(id AtomID) Atom {
	return u.atoms[id]
}

// AtomsOf returns the IDs of every ground atom of a predicate, in
// enumeration order.
func (u *Universe) AtomsOf(predicate string) []AtomID {
	return append([]AtomID(nil), u.predAtoms[predicate]...)
}

// NumActions returns the number of ground actions.
func (u *Universe) NumActions() int {
	return len(u.actions)
}

// Action returns the ground action with the given ID.
func (u *Universe) Action(id ActionID) Action {
	return u.actions[id]
}

// Dropped returns how many type-consistent action instances were discarded
// because their positive and negative preconditions overlap.
func (u *Universe) Dropped() int {
	return u.dropped
}

// Digest is a fingerprint of the atom and action universes.
func (u *Universe) Digest() uint64 {
	return u.digest
}

// Init returns the atoms of the problem's initial facts.
func (u *Universe) Init() []AtomID {
	return append([]AtomID(nil), u.init...)
}

// Goal returns the problem's goal condition.
func (u *Universe) Goal() Goal {
	return Goal{
		Pos: append([]AtomID(nil), u.goal.Pos...),
		Neg: append([]AtomID(nil), u.goal.Neg...),
	}
}

// Lookup resolves a ground atom.
//
// Outputs:
//   - AtomID: The interned atom.
//   - error: domain.ErrUnknownPredicate, domain.ErrArityMismatch, or a
//     *problem.UnknownObjectError when an argument is undeclared or its
//     type does not fit the slot.
func (u *Universe) Lookup(predicate string, args ...string) (AtomID, error) {
	if id, ok := u.atomIndex[atomKey(predicate, args)]; ok {
		return id, nil
	}
	if err := u.problem.CheckLiteral(domain.Pos(predicate, args...)); err != nil {
		return 0, fmt.Errorf("atom %s: %w", atomKey(predicate, args), err)
	}
	// CheckLiteral accepts only atoms the grounder enumerates.
	return 0, fmt.Errorf("atom %s: %w", atomKey(predicate, args), problem.ErrUnknownObject)
}

// LookupLiteral resolves the atom of a ground literal, ignoring its sign.
func (u *Universe) LookupLiteral(lit domain.Literal) (AtomID, error) {
	return u.Lookup(lit.Predicate, lit.Args...)
}

// LookupAction resolves a ground action by schema name and arguments.
//
// Outputs:
//   - ActionID: The interned action.
//   - error: ErrUnknownAction, domain.ErrArityMismatch, a
//     *problem.UnknownObjectError for undeclared or ill-typed arguments, or
//     ErrNotGrounded for an instance with an unsatisfiable precondition.
func (u *Universe) LookupAction(schema string, args ...string) (ActionID, error) {
	key := atomKey(schema, args)
	if id, ok := u.actionIndex[key]; ok {
		return id, nil
	}
	a, ok := u.Domain().Action(schema)
	if !ok {
		return 0, fmt.Errorf("action %s: %w", key, ErrUnknownAction)
	}
	if len(args) != len(a.Params) {
		return 0, fmt.Errorf("action %s: %w: %d args, %s takes %d", key, domain.ErrArityMismatch, len(args), schema, len(a.Params))
	}
	binding := make(map[string]string, len(args))
	for i, arg := range args {
		if err := u.problem.Catalog().Check(arg, a.Params[i].Type); err != nil {
			return 0, fmt.Errorf("action %s: %w", key, err)
		}
		binding[a.Params[i].Name] = arg
	}
	// A parameter wider than a predicate slot it fills.
	for _, lits := range [][]domain.Literal{a.Precondition, a.Add, a.Delete} {
		for _, lit := range lits {
			if err := u.problem.CheckLiteral(substitute(lit, binding)); err != nil {
				return 0, fmt.Errorf("action %s: %w", key, err)
			}
		}
	}
	return 0, fmt.Errorf("action %s: %w", key, ErrNotGrounded)
}

func substitute(lit domain.Literal, binding map[string]string) domain.Literal {
	args := make([]string, len(lit.Args))
	for i, arg := range lit.Args {
		if v, ok := binding[arg]; ok {
			args[i] = v
		} else {
			args[i] = arg
		}
	}
	lit.Args = args
	return lit
}

// ResolveGoal converts ground literals into a Goal.
func (u *Universe) ResolveGoal(lits []domain.Literal) (Goal, error) {
	var g Goal
	for _, lit := range lits {
		id, err := u.LookupLiteral(lit)
		if err != nil {
			return Goal{}, err
		}
		if lit.Negated {
			g.Neg = append(g.Neg, id)
		} else {
			g.Pos = append(g.Pos, id)
		}
	}
	return g, nil
}

// ResolveFacts converts positive ground literals into atom IDs.
func (u *Universe) ResolveFacts(lits []domain.Literal) ([]AtomID, error) {
	out := make([]AtomID, 0, len(lits))
	for _, lit := range lits {
		if lit.Negated {
			return nil, fmt.Errorf("fact %s: %w", lit, problem.ErrInvalidFact)
		}
		id, err := u.LookupLiteral(lit)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
