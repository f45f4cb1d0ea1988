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
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianPlan/services/planner/domain"
	"github.com/AleutianAI/AleutianPlan/services/planner/problem"
)

var tracer = otel.Tracer("aleutian.planner.ground")

// Config configures the grounder.
type Config struct {
	// MaxGroundings bounds the parameter domain product of any single
	// predicate or action schema. Zero or negative disables the bound.
	MaxGroundings int

	// Logger receives grounding summaries. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default grounder configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxGroundings: 1_000_000,
	}
}

// Ground builds the ground atom and action universes of a problem.
//
// Description:
//
//	For each predicate, in declaration order, the atoms are the Cartesian
//	product of ObjectsOfType over its parameter types. For each action
//	schema the candidate instances are the product over its parameter
//	types; an instance is kept only if every substituted literal names an
//	atom of the universe, so a parameter type wider than the predicate slot
//	it fills is filtered per object. Instances whose positive and negative
//	preconditions overlap are dropped, and atoms both added and deleted are
//	removed from the delete list. The last parameter varies fastest, each
//	one in catalog declaration order.
//
//	The problem's initial facts and goal are resolved against the result.
//
// Inputs:
//   - ctx: Context for cancellation and tracing. Must not be nil.
//   - prob: The validated problem.
//   - cfg: Grounder configuration. Nil uses DefaultConfig().
//
// Outputs:
//   - *Universe: The immutable ground universe.
//   - error: *GroundingOverflowError if a product exceeds the bound,
//     *problem.UnknownObjectError for undeclared schema constants, or
//     ctx.Err() on cancellation.
//
// Thread Safety: Safe for concurrent use; shares nothing between calls.
func Ground(ctx context.Context, prob *problem.Problem, cfg *Config) (*Universe, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "ground"), slog.String("problem", prob.Name()))

	ctx, span := tracer.Start(ctx, "ground.Ground")
	defer span.End()
	start := time.Now()

	g := &grounder{
		prob:  prob,
		limit: cfg.MaxGroundings,
		u: &Universe{
			problem:     prob,
			atomIndex:   make(map[string]AtomID),
			predAtoms:   make(map[string][]AtomID),
			actionIndex: make(map[string]ActionID),
		},
	}

	if err := g.run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grounding failed")
		logger.Warn("grounding failed", slog.String("error", err.Error()))
		return nil, err
	}
	u := g.u

	span.SetAttributes(
		attribute.Int("ground.atoms", len(u.atoms)),
		attribute.Int("ground.actions", len(u.actions)),
		attribute.Int("ground.dropped", u.dropped),
	)
	logger.Debug("grounded",
		slog.Int("atoms", len(u.atoms)),
		slog.Int("actions", len(u.actions)),
		slog.Int("dropped", u.dropped),
		slog.Duration("duration", time.Since(start)),
	)
	return u, nil
}

type grounder struct {
	prob  *problem.Problem
	limit int
	u     *Universe
}

func (g *grounder) run(ctx context.Context) error {
	dom := g.prob.Domain()

	for _, sig := range dom.Predicates() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.groundPredicate(sig); err != nil {
			return err
		}
	}
	for _, a := range dom.Actions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.groundAction(a); err != nil {
			return err
		}
	}

	var err error
	if g.u.init, err = g.u.ResolveFacts(g.prob.Init()); err != nil {
		return fmt.Errorf("problem %s: %w", g.prob.Name(), err)
	}
	if g.u.goal, err = g.u.ResolveGoal(g.prob.Goal()); err != nil {
		return fmt.Errorf("problem %s: %w", g.prob.Name(), err)
	}
	g.u.digest = digest(g.u)
	return nil
}

// paramDomains resolves each parameter type to its objects and enforces
// the grounding bound on the product of their sizes.
func (g *grounder) paramDomains(kind, name string, params []domain.Parameter) ([][]string, error) {
	domains := make([][]string, len(params))
	for i, p := range params {
		objs, err := g.prob.Catalog().ObjectsOfType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", kind, name, err)
		}
		names := make([]string, len(objs))
		for j, o := range objs {
			names[j] = o.Name
		}
		domains[i] = names
	}

	size := productSize(domains)
	if g.limit > 0 && size > uint64(g.limit) {
		return nil, &GroundingOverflowError{Kind: kind, Name: name, Size: size, Limit: g.limit}
	}
	return domains, nil
}

func (g *grounder) groundPredicate(sig domain.PredicateSignature) error {
	domains, err := g.paramDomains("predicate", sig.Name, sig.Params)
	if err != nil {
		return err
	}
	u := g.u
	forEachTuple(domains, func(args []string) {
		key := atomKey(sig.Name, args)
		id := AtomID(len(u.atoms))
		u.atoms = append(u.atoms, Atom{Predicate: sig.Name, Args: args})
		u.atomIndex[key] = id
		u.predAtoms[sig.Name] = append(u.predAtoms[sig.Name], id)
	})
	return nil
}

// slotRef is one literal argument: a parameter index, or a constant when
// param is negative.
type slotRef struct {
	param    int
	constant string
}

type literalTemplate struct {
	predicate string
	slots     []slotRef
}

func (g *grounder) compile(a domain.ActionSchema, lits []domain.Literal) ([]literalTemplate, error) {
	dom := g.prob.Domain()
	out := make([]literalTemplate, 0, len(lits))
	for _, lit := range lits {
		sig, _ := dom.Predicate(lit.Predicate)
		t := literalTemplate{predicate: lit.Predicate, slots: make([]slotRef, len(lit.Args))}
		for i, arg := range lit.Args {
			if !domain.IsVariable(arg) {
				if err := g.prob.Catalog().Check(arg, sig.Params[i].Type); err != nil {
					return nil, fmt.Errorf("action %s: literal %s: %w", a.Name, lit, err)
				}
				t.slots[i] = slotRef{param: -1, constant: arg}
				continue
			}
			for j, p := range a.Params {
				if p.Name == arg {
					t.slots[i] = slotRef{param: j}
					break
				}
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// instantiate maps each template to its atom. ok is false when some
// substituted atom lies outside the universe.
func (g *grounder) instantiate(ts []literalTemplate, args []string, buf []string) (ids []AtomID, ok bool) {
	for _, t := range ts {
		buf = buf[:0]
		for _, s := range t.slots {
			if s.param < 0 {
				buf = append(buf, s.constant)
			} else {
				buf = append(buf, args[s.param])
			}
		}
		id, found := g.u.atomIndex[atomKey(t.predicate, buf)]
		if !found {
			return nil, false
		}
		ids = appendUnique(ids, id)
	}
	return ids, true
}

func (g *grounder) groundAction(a domain.ActionSchema) error {
	domains, err := g.paramDomains("action", a.Name, a.Params)
	if err != nil {
		return err
	}

	var pos, neg []domain.Literal
	for _, lit := range a.Precondition {
		if lit.Negated {
			neg = append(neg, lit)
		} else {
			pos = append(pos, lit)
		}
	}
	var templates [4][]literalTemplate
	for i, lits := range [][]domain.Literal{pos, neg, a.Add, a.Delete} {
		if templates[i], err = g.compile(a, lits); err != nil {
			return err
		}
	}

	u := g.u
	buf := make([]string, 0, 8)
	forEachTuple(domains, func(args []string) {
		var lists [4][]AtomID
		for i, ts := range templates {
			ids, ok := g.instantiate(ts, args, buf)
			if !ok {
				return
			}
			lists[i] = ids
		}
		if intersects(lists[0], lists[1]) {
			u.dropped++
			return
		}
		id := ActionID(len(u.actions))
		u.actions = append(u.actions, Action{
			ID:     id,
			Schema: a.Name,
			Args:   args,
			Pre:    lists[0],
			NegPre: lists[1],
			Add:    lists[2],
			Del:    subtract(lists[3], lists[2]),
		})
		u.actionIndex[atomKey(a.Name, args)] = id
	})
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// productSize multiplies the domain sizes, saturating at math.MaxUint64.
func productSize(domains [][]string) uint64 {
	for _, d := range domains {
		if len(d) == 0 {
			return 0
		}
	}
	size := uint64(1)
	for _, d := range domains {
		hi, lo := bits.Mul64(size, uint64(len(d)))
		if hi != 0 {
			return math.MaxUint64
		}
		size = lo
	}
	return size
}

// forEachTuple calls fn for every element of the Cartesian product of
// domains, last position varying fastest. A zero-length domain list yields
// one empty tuple. Each tuple passed to fn is freshly allocated.
func forEachTuple(domains [][]string, fn func(args []string)) {
	for _, d := range domains {
		if len(d) == 0 {
			return
		}
	}
	idx := make([]int, len(domains))
	for {
		args := make([]string, len(domains))
		for i, d := range domains {
			args[i] = d[idx[i]]
		}
		fn(args)

		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(domains[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

func appendUnique(ids []AtomID, id AtomID) []AtomID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

func intersects(a, b []AtomID) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func subtract(a, b []AtomID) []AtomID {
	var out []AtomID
	for _, x := range a {
		keep := true
		for _, y := range b {
			if x == y {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, x)
		}
	}
	return out
}

// digest covers atom names and every action's name and atom sets, so two
// domains that differ only in a schema body get different digests.
func digest(u *Universe) uint64 {
	d := xxhash.New()
	for _, a := range u.atoms {
		_, _ = d.WriteString(a.String())
		_, _ = d.WriteString("\n")
	}
	_, _ = d.WriteString("--\n")
	var buf [4]byte
	writeIDs := func(tag byte, ids []AtomID) {
		sorted := slices.Clone(ids)
		slices.Sort(sorted)
		_, _ = d.Write([]byte{tag})
		for _, id := range sorted {
			binary.LittleEndian.PutUint32(buf[:], uint32(id))
			_, _ = d.Write(buf[:])
		}
	}
	for _, a := range u.actions {
		_, _ = d.WriteString(a.String())
		writeIDs('+', a.Pre)
		writeIDs('-', a.NegPre)
		writeIDs('a', a.Add)
		writeIDs('d', a.Del)
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}
