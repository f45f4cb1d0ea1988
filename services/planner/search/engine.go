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
	"container/heap"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianPlan/services/planner/ground"
	"github.com/AleutianAI/AleutianPlan/services/planner/state"
	"github.com/AleutianAI/AleutianPlan/services/planner/telemetry"
)

var tracer = otel.Tracer("aleutian.planner.search")

// Status is the outcome of a search run.
type Status int

const (
	// StatusSolved means a goal state was reached; Result.Plan leads to it.
	StatusSolved Status = iota

	// StatusUnreachable means every reachable state was expanded without
	// meeting the goal.
	StatusUnreachable

	// StatusLimitExceeded means a configured bound stopped the search
	// before it could prove the goal unreachable.
	StatusLimitExceeded

	// StatusCancelled means the caller's context ended the search.
	StatusCancelled
)

// String returns the status name used in logs, metrics and stored records.
func (s Status) String() string {
	switch s {
	case StatusSolved:
		return "solved"
	case StatusUnreachable:
		return "unreachable"
	case StatusLimitExceeded:
		return "limit_exceeded"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusSolved, StatusUnreachable, StatusLimitExceeded, StatusCancelled} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown search status %q", s)
}

// Limit names the bound behind StatusLimitExceeded.
const (
	LimitExpansions = "max_expansions"
	LimitDepth      = "max_depth"
	LimitTimeout    = "timeout"
)

// Task is one search problem over a ground universe.
type Task struct {
	Universe *ground.Universe
	Init     state.State
	Goal     ground.Goal
}

// TaskFor builds the task of the universe's own problem.
func TaskFor(u *ground.Universe) Task {
	return Task{Universe: u, Init: state.Initial(u), Goal: u.Goal()}
}

// Fingerprint identifies the task by universe, initial state and goal.
func (t Task) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], t.Universe.Digest())
	_, _ = d.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], t.Init.Hash())
	_, _ = d.Write(buf[:])
	for _, list := range [][]ground.AtomID{t.Goal.Pos, t.Goal.Neg} {
		_, _ = d.WriteString("|")
		for _, id := range list {
			binary.LittleEndian.PutUint32(buf[:4], uint32(id))
			_, _ = d.Write(buf[:4])
		}
	}
	return d.Sum64()
}

// Result reports one search run.
type Result struct {
	RunID    uuid.UUID
	Strategy Strategy
	Status   Status

	// Limit is set for StatusLimitExceeded.
	Limit string

	// Plan is set for StatusSolved; empty when the initial state is a goal.
	Plan ground.Plan

	// Cost is the summed weight of Plan.
	Cost float64

	// Expanded counts states whose successors were generated.
	Expanded int

	// Generated counts applicable (action, state) pairs.
	Generated int

	// Visited counts distinct states seen.
	Visited int

	// Depth is the greatest plan length of any state seen.
	Depth int

	Duration time.Duration

	// Expansions holds visited-index IDs in expansion order when
	// Config.RecordExpansions is set.
	Expansions []int
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Engine runs forward state-space search over ground universes.
//
// Description:
//
//	Successors are generated by trying every ground action in universe
//	order. Every state gets one entry in a visited index keyed by its exact
//	atom set, and no state is expanded twice. Breadth-first search tests the
//	goal on generation and returns a shortest plan; uniform-cost search
//	tests it on expansion and returns a cheapest plan under Config.Weights,
//	breaking cost ties by generation order.
//
// Thread Safety: Safe for concurrent use. Each Search owns its frontier
// and visited index.
type Engine struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New creates an Engine. Nil cfg uses DefaultConfig().
//
// Outputs:
//   - *Engine: The engine.
//   - error: ErrInvalidConfig if cfg fails validation.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := *cfg
	if c.Strategy == "" {
		c.Strategy = StrategyBFS
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     &c,
		logger:  logger.With(slog.String("component", "search"), slog.String("strategy", string(c.Strategy))),
		metrics: c.Metrics,
	}, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return *e.cfg
}

// Search looks for a plan from task.Init to a state satisfying task.Goal.
//
// Description:
//
//	Negative outcomes are statuses, not errors: StatusUnreachable when the
//	reachable state space holds no goal state, StatusLimitExceeded when a
//	configured bound stopped the run. Only cancellation of ctx is returned
//	as an error, together with a StatusCancelled result.
//
// Inputs:
//   - ctx: Context for cancellation and tracing. Must not be nil.
//   - task: The search problem.
//
// Outputs:
//   - *Result: The run report. Non-nil whenever task is valid.
//   - error: ErrInvalidInput for a task without universe, or ctx.Err().
func (e *Engine) Search(ctx context.Context, task Task) (*Result, error) {
	if task.Universe == nil {
		return nil, fmt.Errorf("%w: nil universe", ErrInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()

	parent := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	r := &run{
		cfg:   e.cfg,
		u:     task.Universe,
		goal:  task.Goal,
		index: state.NewIndex(),
		res: &Result{
			RunID:    uuid.New(),
			Strategy: e.cfg.Strategy,
		},
	}
	logger := telemetry.LoggerWithTrace(ctx, e.logger).With(slog.String("run_id", r.res.RunID.String()))
	logger.Debug("search started",
		slog.Int("atoms", task.Universe.NumAtoms()),
		slog.Int("actions", task.Universe.NumActions()),
	)

	start := time.Now()
	var err error
	switch e.cfg.Strategy {
	case StrategyUniformCost:
		err = r.uniformCost(ctx, task.Init)
	default:
		err = r.breadthFirst(ctx, task.Init)
	}
	res := r.res
	res.Duration = time.Since(start)
	res.Visited = r.index.Len()

	if err != nil {
		if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			// Our own timeout, not the caller's.
			res.Status = StatusLimitExceeded
			res.Limit = LimitTimeout
			err = nil
		} else {
			res.Status = StatusCancelled
		}
	}

	span.SetAttributes(
		attribute.String("search.strategy", string(res.Strategy)),
		attribute.String("search.status", res.Status.String()),
		attribute.Int("search.expanded", res.Expanded),
		attribute.Int("search.plan_length", len(res.Plan)),
	)
	e.metrics.RecordSearch(ctx, telemetry.SearchRecord{
		Strategy:   string(res.Strategy),
		Status:     res.Status.String(),
		Expanded:   res.Expanded,
		Generated:  res.Generated,
		PlanLength: len(res.Plan),
		Duration:   res.Duration,
	})

	if err != nil {
		telemetry.RecordError(span, err)
		logger.Warn("search cancelled", slog.String("error", err.Error()), slog.Int("expanded", res.Expanded))
		return res, err
	}

	logger.Info("search finished",
		slog.String("status", res.Status.String()),
		slog.Int("plan_length", len(res.Plan)),
		slog.Float64("cost", res.Cost),
		slog.Int("expanded", res.Expanded),
		slog.Int("visited", res.Visited),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// -----------------------------------------------------------------------------
// Run
// -----------------------------------------------------------------------------

// node is the search-tree record of one visited state, indexed by its
// visited-index ID.
type node struct {
	parent int
	action ground.ActionID
	depth  int
	cost   float64
}

type run struct {
	cfg   *Config
	u     *ground.Universe
	goal  ground.Goal
	index *state.Index
	nodes []node
	res   *Result
}

// ctxCheckInterval is how many expansions pass between context checks.
const ctxCheckInterval = 64

func (r *run) add(s state.State, n node) (int, bool) {
	id, added := r.index.Intern(s)
	if added {
		r.nodes = append(r.nodes, n)
		if n.depth > r.res.Depth {
			r.res.Depth = n.depth
		}
	}
	return id, added
}

func (r *run) solved(id int) {
	r.res.Status = StatusSolved
	var plan ground.Plan
	for cur := id; r.nodes[cur].parent >= 0; cur = r.nodes[cur].parent {
		plan = append(plan, r.nodes[cur].action)
	}
	for i, j := 0, len(plan)-1; i < j; i, j = i+1, j-1 {
		plan[i], plan[j] = plan[j], plan[i]
	}
	r.res.Plan = plan
	r.res.Cost = 0
	for _, a := range plan {
		r.res.Cost += r.cfg.Weight(r.u.Action(a).Schema)
	}
}

// expandable applies the expansion and depth bounds to node id. It reports
// false when id must not be expanded; stop is true when the run is over.
func (r *run) expandable(id int, pruned *bool) (ok, stop bool) {
	if r.cfg.MaxExpansions > 0 && r.res.Expanded >= r.cfg.MaxExpansions {
		r.res.Status = StatusLimitExceeded
		r.res.Limit = LimitExpansions
		return false, true
	}
	if r.cfg.MaxDepth > 0 && r.nodes[id].depth >= r.cfg.MaxDepth {
		*pruned = true
		return false, false
	}
	r.res.Expanded++
	if r.cfg.RecordExpansions {
		r.res.Expansions = append(r.res.Expansions, id)
	}
	return true, false
}

func (r *run) exhausted(pruned bool) {
	if pruned {
		r.res.Status = StatusLimitExceeded
		r.res.Limit = LimitDepth
		return
	}
	r.res.Status = StatusUnreachable
}

func (r *run) breadthFirst(ctx context.Context, init state.State) error {
	root, _ := r.add(init, node{parent: -1})
	if state.SatisfiesGoal(init, r.goal) {
		r.solved(root)
		return nil
	}

	queue := []int{root}
	pruned := false
	numActions := r.u.NumActions()

	for head := 0; head < len(queue); head++ {
		if head%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		id := queue[head]
		ok, stop := r.expandable(id, &pruned)
		if stop {
			return nil
		}
		if !ok {
			continue
		}

		s := r.index.State(id)
		depth := r.nodes[id].depth
		for a := 0; a < numActions; a++ {
			act := r.u.Action(ground.ActionID(a))
			next, applicable := state.Successor(act, s)
			if !applicable {
				continue
			}
			r.res.Generated++
			nid, added := r.add(next, node{parent: id, action: act.ID, depth: depth + 1})
			if !added {
				continue
			}
			if state.SatisfiesGoal(next, r.goal) {
				r.solved(nid)
				return nil
			}
			queue = append(queue, nid)
		}
	}

	r.exhausted(pruned)
	return nil
}

func (r *run) uniformCost(ctx context.Context, init state.State) error {
	root, _ := r.add(init, node{parent: -1})
	closed := []bool{false}
	pq := &frontier{}
	seq := 0
	heap.Push(pq, &item{id: root, seq: seq})

	pruned := false
	numActions := r.u.NumActions()
	pops := 0

	for pq.Len() > 0 {
		if pops%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		pops++

		it := heap.Pop(pq).(*item)
		if closed[it.id] || it.cost > r.nodes[it.id].cost {
			continue
		}
		closed[it.id] = true

		s := r.index.State(it.id)
		if state.SatisfiesGoal(s, r.goal) {
			r.solved(it.id)
			return nil
		}

		ok, stop := r.expandable(it.id, &pruned)
		if stop {
			return nil
		}
		if !ok {
			continue
		}

		cur := r.nodes[it.id]
		for a := 0; a < numActions; a++ {
			act := r.u.Action(ground.ActionID(a))
			next, applicable := state.Successor(act, s)
			if !applicable {
				continue
			}
			r.res.Generated++
			cost := cur.cost + r.cfg.Weight(act.Schema)
			n := node{parent: it.id, action: act.ID, depth: cur.depth + 1, cost: cost}

			nid, added := r.add(next, n)
			if added {
				closed = append(closed, false)
			} else {
				if closed[nid] || cost >= r.nodes[nid].cost {
					continue
				}
				r.nodes[nid] = n
				if n.depth > r.res.Depth {
					r.res.Depth = n.depth
				}
			}
			seq++
			heap.Push(pq, &item{id: nid, cost: cost, seq: seq})
		}
	}

	r.exhausted(pruned)
	return nil
}

// -----------------------------------------------------------------------------
// Frontier
// -----------------------------------------------------------------------------

type item struct {
	id   int
	cost float64
	seq  int
}

// frontier is a min-heap on (cost, seq).
type frontier []*item

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].cost != f[j].cost {
		return f[i].cost < f[j].cost
	}
	return f[i].seq < f[j].seq
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(*item)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return it
}
