// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state implements planning states as atom sets over a ground
// universe, and the STRIPS transition model on them.
//
// A State holds the IDs of the atoms that are true; every other atom of the
// universe is false. States are values: Apply returns a new State and never
// modifies its input.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/willf/bitset"

	"github.com/AleutianAI/AleutianPlan/services/planner/ground"
)

// ErrPreconditionViolation is returned by Apply for an inapplicable action.
var ErrPreconditionViolation = errors.New("precondition violation")

// PreconditionViolationError reports the atoms that made an action
// inapplicable in a state.
type PreconditionViolationError struct {
	Action    string
	Missing   []ground.AtomID // positive preconditions absent from the state
	Forbidden []ground.AtomID // negative preconditions present in the state
}

func (e *PreconditionViolationError) Error() string {
	return fmt.Sprintf("precondition violation: %s: %d missing, %d forbidden atoms",
		e.Action, len(e.Missing), len(e.Forbidden))
}

func (e *PreconditionViolationError) Unwrap() error {
	return ErrPreconditionViolation
}

// State is a set of true atoms under the closed-world assumption.
//
// Thread Safety: Immutable; safe for concurrent use.
type State struct {
	bits *bitset.BitSet
	size uint
}

// New returns the state over a universe of n atoms where exactly atoms hold.
func New(n int, atoms ...ground.AtomID) State {
	b := bitset.New(uint(n))
	for _, a := range atoms {
		b.Set(uint(a))
	}
	return State{bits: b, size: uint(n)}
}

// Initial returns the initial state of a grounded problem.
func Initial(u *ground.Universe) State {
	return New(u.NumAtoms(), u.Init()...)
}

// Has reports whether atom holds.
func (s State) Has(atom ground.AtomID) bool {
	return s.bits.Test(uint(atom))
}

// Len returns the number of true atoms.
func (s State) Len() int {
	return int(s.bits.Count())
}

// Atoms returns the true atoms in ascending ID order.
func (s State) Atoms() []ground.AtomID {
	out := make([]ground.AtomID, 0, s.bits.Count())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		out = append(out, ground.AtomID(i))
	}
	return out
}

// Equal reports set equality.
func (s State) Equal(o State) bool {
	if s.size != o.size {
		return false
	}
	return s.bits.Equal(o.bits)
}

// Hash fingerprints the atom set; equal states hash equally.
func (s State) Hash() uint64 {
	d := xxhash.New()
	var buf [4]byte
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		binary.LittleEndian.PutUint32(buf[:], uint32(i))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// Strings renders the true atoms with the universe's names.
func (s State) Strings(u *ground.Universe) []string {
	atoms := s.Atoms()
	out := make([]string, len(atoms))
	for i, a := range atoms {
		out[i] = u.Atom(a).String()
	}
	return out
}

// -----------------------------------------------------------------------------
// Transition Model
// -----------------------------------------------------------------------------

// Applicable reports whether every positive precondition of a holds in s
// and no negative precondition does.
func Applicable(a ground.Action, s State) bool {
	for _, p := range a.Pre {
		if !s.Has(p) {
			return false
		}
	}
	for _, n := range a.NegPre {
		if s.Has(n) {
			return false
		}
	}
	return true
}

// Unmet returns the positive preconditions of a absent from s and the
// negative preconditions present in s.
func Unmet(a ground.Action, s State) (missing, forbidden []ground.AtomID) {
	for _, p := range a.Pre {
		if !s.Has(p) {
			missing = append(missing, p)
		}
	}
	for _, n := range a.NegPre {
		if s.Has(n) {
			forbidden = append(forbidden, n)
		}
	}
	return missing, forbidden
}

// Apply returns (s minus a.Del) union a.Add.
//
// Outputs:
//   - State: The successor. s is unchanged.
//   - error: *PreconditionViolationError if a is not applicable in s.
func Apply(a ground.Action, s State) (State, error) {
	if !Applicable(a, s) {
		missing, forbidden := Unmet(a, s)
		return State{}, &PreconditionViolationError{
			Action:    a.String(),
			Missing:   missing,
			Forbidden: forbidden,
		}
	}
	return apply(a, s), nil
}

// apply skips the applicability check; callers have already made it.
func apply(a ground.Action, s State) State {
	next := s.bits.Clone()
	for _, d := range a.Del {
		next.Clear(uint(d))
	}
	for _, ad := range a.Add {
		next.Set(uint(ad))
	}
	return State{bits: next, size: s.size}
}

// Successor applies a after checking applicability, reporting ok=false
// instead of an error when a is not applicable.
func Successor(a ground.Action, s State) (State, bool) {
	if !Applicable(a, s) {
		return State{}, false
	}
	return apply(a, s), true
}

// SatisfiesGoal reports whether every positive goal atom holds in s and no
// negative goal atom does.
func SatisfiesGoal(s State, g ground.Goal) bool {
	for _, p := range g.Pos {
		if !s.Has(p) {
			return false
		}
	}
	for _, n := range g.Neg {
		if s.Has(n) {
			return false
		}
	}
	return true
}

// UnmetGoal returns the positive goal atoms absent from s and the negative
// goal atoms present in s.
func UnmetGoal(s State, g ground.Goal) (missing, present []ground.AtomID) {
	for _, p := range g.Pos {
		if !s.Has(p) {
			missing = append(missing, p)
		}
	}
	for _, n := range g.Neg {
		if s.Has(n) {
			present = append(present, n)
		}
	}
	return missing, present
}
