// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transition builds the explicit reachable transition system of a
// ground universe for consumers that need the whole graph rather than a
// single plan.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianPlan/services/planner/ground"
	"github.com/AleutianAI/AleutianPlan/services/planner/state"
)

var tracer = otel.Tracer("aleutian.planner.transition")

// ErrTooManyStates is returned when the reachable state space exceeds the
// configured bound.
var ErrTooManyStates = errors.New("transition system exceeds state limit")

// Edge is one labelled transition.
type Edge struct {
	From   int
	To     int
	Action ground.ActionID
	Weight float64
}

// System is a finite transition system. States are numbered in
// breadth-first discovery order; state 0 is the initial state.
type System struct {
	universe *ground.Universe
	states   []state.State
	edges    []Edge
	out      [][]int // edge indices by source state
}

// Universe returns the universe the system was built from.
func (s *System) Universe() *ground.Universe {
	return s.universe
}

// Initial returns the initial state number.
func (s *System) Initial() int {
	return 0
}

// NumStates returns the number of reachable states.
func (s *System) NumStates() int {
	return len(s.states)
}

// State returns state i.
func (s *System) State(i int) state.State {
	return s.states[i]
}

// Edges returns all edges in discovery order. The slice must not be modified.
func (s *System) Edges() []Edge {
	return s.edges
}

// Successors returns the outgoing edges of state i in action order.
func (s *System) Successors(i int) []Edge {
	out := make([]Edge, len(s.out[i]))
	for k, e := range s.out[i] {
		out[k] = s.edges[e]
	}
	return out
}

// Label returns the atoms true in state i, rendered as "pred(a,b)".
func (s *System) Label(i int) []string {
	return s.states[i].Strings(s.universe)
}

// Accepting returns the states that satisfy goal, in ascending order.
func (s *System) Accepting(goal ground.Goal) []int {
	var out []int
	for i, st := range s.states {
		if state.SatisfiesGoal(st, goal) {
			out = append(out, i)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Build options
// -----------------------------------------------------------------------------

// BuildOptions configures Build.
type BuildOptions struct {
	// MaxStates bounds the number of reachable states. Zero means unbounded.
	MaxStates int

	// Weights maps action schema names to edge weights. Missing names weigh 1.
	Weights map[string]float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultBuildOptions bounds the system at 100,000 states.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{MaxStates: 100_000}
}

// BuildOption mutates BuildOptions.
type BuildOption func(*BuildOptions)

// WithMaxStates sets the state bound.
func WithMaxStates(n int) BuildOption {
	return func(o *BuildOptions) {
		o.MaxStates = n
	}
}

// WithWeights sets per-schema edge weights.
func WithWeights(w map[string]float64) BuildOption {
	return func(o *BuildOptions) {
		o.Weights = w
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BuildOption {
	return func(o *BuildOptions) {
		o.Logger = l
	}
}

// -----------------------------------------------------------------------------
// Build
// -----------------------------------------------------------------------------

// Build expands every state reachable from init.
//
// Description:
//
//	States are discovered breadth-first and deduplicated by exact atom set.
//	Every applicable ground action contributes one edge, including edges
//	back to already known states and self-loops.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - u: The ground universe.
//   - init: The initial state.
//   - opts: Optional settings on top of DefaultBuildOptions.
//
// Outputs:
//   - *System: The transition system.
//   - error: ErrTooManyStates, or ctx.Err() on cancellation.
func Build(ctx context.Context, u *ground.Universe, init state.State, opts ...BuildOption) (*System, error) {
	o := DefaultBuildOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "transition"))

	ctx, span := tracer.Start(ctx, "transition.Build")
	defer span.End()
	start := time.Now()

	weight := func(schema string) float64 {
		if w, ok := o.Weights[schema]; ok {
			return w
		}
		return 1
	}

	sys := &System{universe: u}
	index := state.NewIndex()
	intern := func(st state.State) (int, bool, error) {
		id, added := index.Intern(st)
		if !added {
			return id, false, nil
		}
		if o.MaxStates > 0 && index.Len() > o.MaxStates {
			return 0, false, fmt.Errorf("%w: more than %d states", ErrTooManyStates, o.MaxStates)
		}
		sys.states = append(sys.states, st)
		sys.out = append(sys.out, nil)
		return id, true, nil
	}

	if _, _, err := intern(init); err != nil {
		return nil, err
	}
	for cur := 0; cur < len(sys.states); cur++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		from := sys.states[cur]
		for a := 0; a < u.NumActions(); a++ {
			act := u.Action(ground.ActionID(a))
			next, ok := state.Successor(act, from)
			if !ok {
				continue
			}
			to, _, err := intern(next)
			if err != nil {
				logger.Warn("transition system too large", slog.Int("max_states", o.MaxStates))
				return nil, err
			}
			sys.out[cur] = append(sys.out[cur], len(sys.edges))
			sys.edges = append(sys.edges, Edge{From: cur, To: to, Action: act.ID, Weight: weight(act.Schema)})
		}
	}

	span.SetAttributes(
		attribute.Int("transition.states", len(sys.states)),
		attribute.Int("transition.edges", len(sys.edges)),
	)
	logger.Debug("transition system built",
		slog.Int("states", len(sys.states)),
		slog.Int("edges", len(sys.edges)),
		slog.Duration("duration", time.Since(start)),
	)
	return sys, nil
}
