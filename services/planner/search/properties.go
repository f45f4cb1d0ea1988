// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"fmt"
	"slices"

	"github.com/AleutianAI/AleutianPlan/services/planner/eval"
	"github.com/AleutianAI/AleutianPlan/services/planner/state"
	"github.com/AleutianAI/AleutianPlan/services/planner/validate"
)

// Name implements eval.Evaluable.
func (e *Engine) Name() string {
	return "search_" + string(e.cfg.Strategy)
}

// Properties implements eval.Evaluable. Input is a Task, output the
// *Result the engine produced for it.
func (e *Engine) Properties() []eval.Property {
	return []eval.Property{
		{
			Name:        "plan_validates",
			Description: "A solved result's plan replays from the initial state to the goal.",
			Tags:        []string{"soundness"},
			Check: func(input, output any) error {
				task, res, err := unpack(input, output)
				if err != nil {
					return err
				}
				if res.Status != StatusSolved {
					return nil
				}
				vr := validate.Validate(task.Universe, res.Plan, task.Init, task.Goal)
				if !vr.Valid {
					return fmt.Errorf("plan fails at step %d (%s): %s", vr.FailedStep, vr.FailedAction, vr.Reason)
				}
				return nil
			},
		},
		{
			Name:        "no_reexpansion",
			Description: "No state is expanded twice within one run.",
			Check: func(_, output any) error {
				res, ok := output.(*Result)
				if !ok {
					return fmt.Errorf("output: want *search.Result, got %T", output)
				}
				seen := make(map[int]struct{}, len(res.Expansions))
				for _, id := range res.Expansions {
					if _, dup := seen[id]; dup {
						return fmt.Errorf("state %d expanded twice", id)
					}
					seen[id] = struct{}{}
				}
				return nil
			},
		},
		{
			Name:        "bfs_shortest",
			Description: "Breadth-first plans are shortest: no plan exists one step shorter.",
			Tags:        []string{"optimality"},
			Check: func(input, output any) error {
				task, res, err := unpack(input, output)
				if err != nil {
					return err
				}
				if res.Strategy != StrategyBFS || res.Status != StatusSolved || len(res.Plan) == 0 {
					return nil
				}
				if len(res.Plan) == 1 {
					if state.SatisfiesGoal(task.Init, task.Goal) {
						return fmt.Errorf("one-step plan for a goal that holds initially")
					}
					return nil
				}
				cfg := *e.cfg
				cfg.MaxDepth = len(res.Plan) - 1
				cfg.MaxExpansions = 0
				cfg.RecordExpansions = false
				shorter, err := e.rerun(&cfg, task)
				if err != nil {
					return err
				}
				if shorter.Status == StatusSolved {
					return fmt.Errorf("found plan of length %d below returned length %d", len(shorter.Plan), len(res.Plan))
				}
				return nil
			},
		},
		{
			Name:        "deterministic",
			Description: "Re-running the search returns the same status and plan.",
			Tags:        []string{"determinism"},
			Check: func(input, output any) error {
				task, res, err := unpack(input, output)
				if err != nil {
					return err
				}
				cfg := *e.cfg
				again, err := e.rerun(&cfg, task)
				if err != nil {
					return err
				}
				if again.Status != res.Status || !slices.Equal(again.Plan, res.Plan) {
					return fmt.Errorf("rerun differs: %s %v vs %s %v", again.Status, again.Plan, res.Status, res.Plan)
				}
				return nil
			},
		},
	}
}

// Metrics implements eval.Evaluable.
func (e *Engine) Metrics() []eval.MetricDefinition {
	return []eval.MetricDefinition{
		{
			Name:        "planner_searches_total",
			Type:        eval.MetricCounter,
			Description: "Total search runs",
			Labels:      []string{"strategy", "status"},
		},
		{
			Name:        "planner_search_duration_seconds",
			Type:        eval.MetricHistogram,
			Description: "Search run duration",
			Labels:      []string{"strategy"},
			Buckets:     []float64{0.001, 0.01, 0.1, 1, 10},
		},
		{
			Name:        "planner_states_expanded_total",
			Type:        eval.MetricCounter,
			Description: "States expanded across runs",
			Labels:      []string{"strategy"},
		},
	}
}

// HealthCheck implements eval.Evaluable.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.cfg.Validate()
}

// rerun searches with cfg without recording metrics.
func (e *Engine) rerun(cfg *Config, task Task) (*Result, error) {
	cfg.Metrics = nil
	eng, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return eng.Search(context.Background(), task)
}

func unpack(input, output any) (Task, *Result, error) {
	task, ok := input.(Task)
	if !ok {
		return Task{}, nil, fmt.Errorf("input: want search.Task, got %T", input)
	}
	res, ok := output.(*Result)
	if !ok {
		return Task{}, nil, fmt.Errorf("output: want *search.Result, got %T", output)
	}
	return task, res, nil
}
