// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate replays plans against the transition model.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianPlan/services/planner/domain"
	"github.com/AleutianAI/AleutianPlan/services/planner/ground"
	"github.com/AleutianAI/AleutianPlan/services/planner/state"
)

// ErrMalformedStep is returned for a step string that is not "name(a,b)".
var ErrMalformedStep = errors.New("malformed plan step")

// Result reports the outcome of replaying a plan.
type Result struct {
	// Valid is true when every step was applicable and the final state
	// satisfies the goal.
	Valid bool

	// FailedStep is the index of the first inapplicable step, or -1.
	FailedStep int

	// FailedAction names the step at FailedStep.
	FailedAction string

	// Missing lists positive preconditions absent at FailedStep.
	Missing []domain.Literal

	// Forbidden lists negative preconditions present at FailedStep, as
	// negated literals.
	Forbidden []domain.Literal

	// Reason describes a failure that is not a precondition violation.
	Reason string

	// StepsApplied counts the steps replayed before stopping.
	StepsApplied int

	// GoalSatisfied reports whether the last reached state meets the goal.
	GoalSatisfied bool

	// UnmetGoal lists goal literals false in the last reached state.
	UnmetGoal []domain.Literal

	// Final is the last state reached.
	Final state.State
}

// Validate replays plan from init and checks goal.
//
// Description:
//
//	Each step is checked with state.Applicable before state.Apply. The
//	first inapplicable step stops the replay and is reported with the
//	literals that made it inapplicable. Validate has no side effects, so
//	repeated calls on the same inputs give equal results.
//
// Inputs:
//   - u: The universe plan refers to.
//   - plan: Ground action IDs in execution order.
//   - init: The initial state.
//   - goal: The goal condition.
//
// Outputs:
//   - *Result: Never nil.
func Validate(u *ground.Universe, plan ground.Plan, init state.State, goal ground.Goal) *Result {
	res := &Result{FailedStep: -1}
	cur := init

	for i, id := range plan {
		if int(id) >= u.NumActions() {
			res.FailedStep = i
			res.FailedAction = fmt.Sprintf("#%d", id)
			res.Reason = fmt.Sprintf("action id %d outside universe of %d actions", id, u.NumActions())
			break
		}
		a := u.Action(id)
		next, err := state.Apply(a, cur)
		if err != nil {
			var pve *state.PreconditionViolationError
			if errors.As(err, &pve) {
				res.Missing = literals(u, pve.Missing, false)
				res.Forbidden = literals(u, pve.Forbidden, true)
			}
			res.FailedStep = i
			res.FailedAction = a.String()
			res.Reason = err.Error()
			break
		}
		cur = next
		res.StepsApplied++
	}

	res.Final = cur
	missing, present := state.UnmetGoal(cur, goal)
	res.UnmetGoal = append(literals(u, missing, false), literals(u, present, true)...)
	res.GoalSatisfied = len(res.UnmetGoal) == 0
	res.Valid = res.FailedStep < 0 && res.GoalSatisfied
	return res
}

// ValidateSteps resolves externally supplied step strings and validates
// them.
//
// Outputs:
//   - *Result: The replay result when every step resolves.
//   - error: ErrMalformedStep, or the lookup error of the first step that
//     names an unknown action or an object that is undeclared or does not
//     fit its parameter (*problem.UnknownObjectError).
func ValidateSteps(u *ground.Universe, steps []string, init state.State, goal ground.Goal) (*Result, error) {
	plan, err := Resolve(u, steps)
	if err != nil {
		return nil, err
	}
	return Validate(u, plan, init, goal), nil
}

// Resolve maps step strings like "grasp(b0,l7)" to ground action IDs.
func Resolve(u *ground.Universe, steps []string) (ground.Plan, error) {
	plan := make(ground.Plan, 0, len(steps))
	for i, s := range steps {
		name, args, err := ParseStep(s)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		id, err := u.LookupAction(name, args...)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		plan = append(plan, id)
	}
	return plan, nil
}

// ParseStep splits "name(a,b)" into its name and arguments. Whitespace
// around tokens is ignored; "name" and "name()" both mean no arguments.
func ParseStep(s string) (string, []string, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if s == "" || strings.ContainsAny(s, "),") {
			return "", nil, fmt.Errorf("%w: %q", ErrMalformedStep, s)
		}
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformedStep, s)
	}
	name := strings.TrimSpace(s[:open])
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if name == "" || strings.ContainsAny(inner, "()") {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformedStep, s)
	}
	if inner == "" {
		return name, nil, nil
	}
	parts := strings.Split(inner, ",")
	args := make([]string, len(parts))
	for i, p := range parts {
		args[i] = strings.TrimSpace(p)
		if args[i] == "" {
			return "", nil, fmt.Errorf("%w: %q", ErrMalformedStep, s)
		}
	}
	return name, args, nil
}

func literals(u *ground.Universe, ids []ground.AtomID, negated bool) []domain.Literal {
	if len(ids) == 0 {
		return nil
	}
	out := make([]domain.Literal, len(ids))
	for i, id := range ids {
		out[i] = u.Atom(id).Literal()
		out[i].Negated = negated
	}
	return out
}
