// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package boxworld provides the robot/box manipulation domain and its
// canonical problem instances.
//
// A manipulator moves boxes between locations in four discrete steps:
// transit to the box, grasp it, transfer it to a box location, release it.
// transit leaves on(?b,?l2) in place; grasp removes it. The two steps stay
// separate actions so the intermediate state is observable.
package boxworld

import (
	"github.com/AleutianAI/AleutianPlan/services/planner/domain"
	"github.com/AleutianAI/AleutianPlan/services/planner/problem"
)

// Type names.
const (
	TypeLocation = "location"
	TypeGeneral  = "general_loc"
	TypeBoxLoc   = "box_loc"
	TypeHBoxLoc  = "hbox_loc"
	TypeBox      = "box"
)

// Definition returns the box-world domain definition.
func Definition() domain.Definition {
	p := func(name, typ string) domain.Parameter { return domain.Parameter{Name: name, Type: typ} }

	return domain.Definition{
		Name: "franka-box-world",
		Types: []domain.TypeDecl{
			{Name: TypeLocation},
			{Name: TypeGeneral, Parent: TypeLocation},
			{Name: TypeBoxLoc, Parent: TypeGeneral},
			{Name: TypeHBoxLoc, Parent: TypeGeneral},
			{Name: TypeBox},
		},
		Predicates: []domain.PredicateSignature{
			{Name: "on", Params: []domain.Parameter{p("?b", TypeBox), p("?l", TypeLocation)}},
			{Name: "ready", Params: []domain.Parameter{p("?l", TypeLocation)}},
			{Name: "to-obj", Params: []domain.Parameter{p("?b", TypeBox), p("?l", TypeGeneral)}},
			{Name: "holding", Params: []domain.Parameter{p("?b", TypeBox), p("?l", TypeGeneral)}},
			{Name: "to-loc", Params: []domain.Parameter{p("?b", TypeBox), p("?l", TypeBoxLoc)}},
		},
		Actions: []domain.ActionSchema{
			{
				Name:         "transit",
				Params:       []domain.Parameter{p("?b", TypeBox), p("?l1", TypeLocation), p("?l2", TypeGeneral)},
				Precondition: []domain.Literal{domain.Pos("ready", "?l1"), domain.Pos("on", "?b", "?l2")},
				Add:          []domain.Literal{domain.Pos("to-obj", "?b", "?l2")},
				Delete:       []domain.Literal{domain.Pos("ready", "?l1")},
			},
			{
				Name:         "grasp",
				Params:       []domain.Parameter{p("?b", TypeBox), p("?l", TypeGeneral)},
				Precondition: []domain.Literal{domain.Pos("to-obj", "?b", "?l"), domain.Pos("on", "?b", "?l")},
				Add:          []domain.Literal{domain.Pos("holding", "?b", "?l")},
				Delete:       []domain.Literal{domain.Pos("to-obj", "?b", "?l"), domain.Pos("on", "?b", "?l")},
			},
			{
				Name:         "transfer",
				Params:       []domain.Parameter{p("?b", TypeBox), p("?l1", TypeGeneral), p("?l2", TypeBoxLoc)},
				Precondition: []domain.Literal{domain.Pos("holding", "?b", "?l1")},
				Add:          []domain.Literal{domain.Pos("to-loc", "?b", "?l2")},
				Delete:       []domain.Literal{domain.Pos("holding", "?b", "?l1")},
			},
			{
				Name:         "release",
				Params:       []domain.Parameter{p("?b", TypeBox), p("?l", TypeBoxLoc)},
				Precondition: []domain.Literal{domain.Pos("to-loc", "?b", "?l")},
				Add:          []domain.Literal{domain.Pos("on", "?b", "?l"), domain.Pos("ready", "?l")},
				Delete:       []domain.Literal{domain.Pos("to-loc", "?b", "?l")},
			},
		},
	}
}

// Domain returns the validated box-world domain.
func Domain() *domain.Domain {
	d, err := domain.New(Definition())
	if err != nil {
		panic("boxworld: invalid domain: " + err.Error())
	}
	return d
}

// Objects returns the standard catalog: box locations l0 and l1, hand-box
// locations l6 and l7, and box b0.
func Objects() []problem.Object {
	return []problem.Object{
		{Name: "l0", Type: TypeBoxLoc},
		{Name: "l1", Type: TypeBoxLoc},
		{Name: "l6", Type: TypeHBoxLoc},
		{Name: "l7", Type: TypeHBoxLoc},
		{Name: "b0", Type: TypeBox},
	}
}

// TransferProblem places b0 on l7 with the manipulator ready at l0 and asks
// for b0 on l0. Its shortest plan is transit, grasp, transfer, release.
func TransferProblem() problem.Definition {
	return problem.Definition{
		Name:    "transfer-b0-l7-l0",
		Objects: Objects(),
		Init:    []domain.Literal{domain.Pos("ready", "l0"), domain.Pos("on", "b0", "l7")},
		Goal:    []domain.Literal{domain.Pos("on", "b0", "l0")},
	}
}

// UnreachableProblem asks for b0 on hand-box location l6. Only release
// creates on facts, and it only targets box locations.
func UnreachableProblem() problem.Definition {
	return problem.Definition{
		Name:    "unreachable-l6",
		Objects: Objects(),
		Init:    []domain.Literal{domain.Pos("ready", "l0"), domain.Pos("on", "b0", "l7")},
		Goal:    []domain.Literal{domain.Pos("on", "b0", "l6")},
	}
}

// ElseProblem puts two boxes on the placeholder location "else", which is
// a plain location and fits no general_loc or box_loc slot. No action can
// pick a box up from else, so the goal is unreachable.
func ElseProblem() problem.Definition {
	return problem.Definition{
		Name: "two-on-else",
		Objects: []problem.Object{
			{Name: "l0", Type: TypeBoxLoc},
			{Name: "l1", Type: TypeBoxLoc},
			{Name: "else", Type: TypeLocation},
			{Name: "b0", Type: TypeBox},
			{Name: "b1", Type: TypeBox},
		},
		Init: []domain.Literal{domain.Pos("ready", "l0"), domain.Pos("on", "b0", "else"), domain.Pos("on", "b1", "else")},
		Goal: []domain.Literal{domain.Pos("on", "b0", "l0")},
	}
}

// SwapProblem moves two boxes between box locations and needs eight steps.
func SwapProblem() problem.Definition {
	return problem.Definition{
		Name: "swap-b0-b1",
		Objects: []problem.Object{
			{Name: "l0", Type: TypeBoxLoc},
			{Name: "l1", Type: TypeBoxLoc},
			{Name: "l2", Type: TypeBoxLoc},
			{Name: "b0", Type: TypeBox},
			{Name: "b1", Type: TypeBox},
		},
		Init: []domain.Literal{domain.Pos("ready", "l2"), domain.Pos("on", "b0", "l0"), domain.Pos("on", "b1", "l1")},
		Goal: []domain.Literal{domain.Pos("on", "b0", "l1"), domain.Pos("on", "b1", "l0")},
	}
}

// Problem validates def against the box-world domain.
func Problem(def problem.Definition) (*problem.Problem, error) {
	return problem.New(Domain(), def)
}
