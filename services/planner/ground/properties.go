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
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianPlan/services/planner/eval"
	"github.com/AleutianAI/AleutianPlan/services/planner/problem"
)

// Evaluable exposes the grounder's correctness properties.
//
// Properties take the *problem.Problem as input and the *Universe
// produced from it as output.
type Evaluable struct {
	cfg *Config
}

// NewEvaluable creates the grounder evaluable. Nil cfg uses DefaultConfig().
func NewEvaluable(cfg *Config) *Evaluable {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Evaluable{cfg: cfg}
}

// Name implements eval.Evaluable.
func (e *Evaluable) Name() string {
	return "grounder"
}

// Properties implements eval.Evaluable.
func (e *Evaluable) Properties() []eval.Property {
	return []eval.Property{
		{
			Name:        "type_soundness",
			Description: "Every ground action argument's type is a subtype of the schema parameter type.",
			Tags:        []string{"critical"},
			Check: func(input, output any) error {
				_, u, err := unpack(input, output)
				if err != nil {
					return err
				}
				return checkTypeSoundness(u)
			},
		},
		{
			Name:        "closed_world_consistent",
			Description: "No ground action requires an atom both true and false, and none adds and deletes the same atom.",
			Tags:        []string{"critical"},
			Check: func(input, output any) error {
				_, u, err := unpack(input, output)
				if err != nil {
					return err
				}
				for _, a := range u.actions {
					if intersects(a.Pre, a.NegPre) {
						return fmt.Errorf("%s requires an atom both true and false", a)
					}
					if intersects(a.Add, a.Del) {
						return fmt.Errorf("%s adds and deletes the same atom", a)
					}
				}
				return nil
			},
		},
		{
			Name:        "deterministic_order",
			Description: "Grounding the same problem twice yields identical universes.",
			Tags:        []string{"determinism"},
			Check: func(input, output any) error {
				p, u, err := unpack(input, output)
				if err != nil {
					return err
				}
				again, err := Ground(context.Background(), p, e.cfg)
				if err != nil {
					return err
				}
				if again.Digest() != u.Digest() {
					return fmt.Errorf("digest %x != %x", again.Digest(), u.Digest())
				}
				return nil
			},
		},
	}
}

// Metrics implements eval.Evaluable.
func (e *Evaluable) Metrics() []eval.MetricDefinition {
	return []eval.MetricDefinition{
		{Name: "planner_ground_atoms", Type: eval.MetricGauge, Description: "Ground atoms in the last universe"},
		{Name: "planner_ground_actions", Type: eval.MetricGauge, Description: "Ground actions in the last universe"},
	}
}

// HealthCheck implements eval.Evaluable.
func (e *Evaluable) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.cfg == nil {
		return fmt.Errorf("grounder: nil config")
	}
	return nil
}

func unpack(input, output any) (*problem.Problem, *Universe, error) {
	p, ok := input.(*problem.Problem)
	if !ok {
		return nil, nil, fmt.Errorf("input: want *problem.Problem, got %T", input)
	}
	u, ok := output.(*Universe)
	if !ok {
		return nil, nil, fmt.Errorf("output: want *ground.Universe, got %T", output)
	}
	return p, u, nil
}

func checkTypeSoundness(u *Universe) error {
	dom := u.Domain()
	cat := u.problem.Catalog()
	for _, a := range u.actions {
		schema, ok := dom.Action(a.Schema)
		if !ok {
			return fmt.Errorf("%s: %w", a, ErrUnknownAction)
		}
		for i, arg := range a.Args {
			if err := cat.Check(arg, schema.Params[i].Type); err != nil {
				return fmt.Errorf("%s: %w", a, err)
			}
		}
	}
	for _, at := range u.atoms {
		sig, ok := dom.Predicate(at.Predicate)
		if !ok {
			return fmt.Errorf("%s: unknown predicate", at)
		}
		for i, arg := range at.Args {
			if err := cat.Check(arg, sig.Params[i].Type); err != nil {
				return fmt.Errorf("%s: %w", at, err)
			}
		}
	}
	return nil
}
