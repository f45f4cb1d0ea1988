// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPlan/services/planner/boxworld"
	"github.com/AleutianAI/AleutianPlan/services/planner/config"
	"github.com/AleutianAI/AleutianPlan/services/planner/domain"
	"github.com/AleutianAI/AleutianPlan/services/planner/eval"
	"github.com/AleutianAI/AleutianPlan/services/planner/ground"
	"github.com/AleutianAI/AleutianPlan/services/planner/planstore"
	"github.com/AleutianAI/AleutianPlan/services/planner/problem"
	"github.com/AleutianAI/AleutianPlan/services/planner/runner"
	"github.com/AleutianAI/AleutianPlan/services/planner/search"
	badgerstore "github.com/AleutianAI/AleutianPlan/services/planner/storage/badger"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newPlanner(t *testing.T, mutate func(*config.Config), opts ...Option) *Planner {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Observability.Telemetry.TraceExporter = "none"
	cfg.Observability.Telemetry.MetricExporter = "none"
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(context.Background(), cfg, append([]Option{WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestPlanner_SolveTransfer(t *testing.T) {
	p := newPlanner(t, nil)
	ctx := context.Background()

	u, err := p.Prepare(ctx, boxworld.Definition(), boxworld.TransferProblem())
	require.NoError(t, err)

	res, err := p.Solve(ctx, u)
	require.NoError(t, err)
	require.Equal(t, search.StatusSolved, res.Status)
	assert.Equal(t, []string{
		"transit(b0,l0,l7)", "grasp(b0,l7)", "transfer(b0,l7,l0)", "release(b0,l0)",
	}, res.Plan.Strings(u))

	vr, err := p.Validate(ctx, u, res.Plan.Strings(u))
	require.NoError(t, err)
	assert.True(t, vr.Valid)
}

func TestPlanner_PrepareErrors(t *testing.T) {
	p := newPlanner(t, nil)
	ctx := context.Background()

	bad := boxworld.Definition()
	bad.Types = append(bad.Types, domain.TypeDecl{Name: "crate", Parent: "pallet"})
	_, err := p.Prepare(ctx, bad, boxworld.TransferProblem())
	assert.ErrorIs(t, err, domain.ErrUnknownType)

	pd := boxworld.TransferProblem()
	pd.Init = append(pd.Init, domain.Pos("on", "b9", "l0"))
	_, err = p.Prepare(ctx, boxworld.Definition(), pd)
	assert.ErrorIs(t, err, problem.ErrUnknownObject)
}

func TestPlanner_PrepareOverflow(t *testing.T) {
	p := newPlanner(t, func(c *config.Config) { c.Grounding.MaxGroundings = 3 })
	_, err := p.Prepare(context.Background(), boxworld.Definition(), boxworld.TransferProblem())
	assert.ErrorIs(t, err, ground.ErrGroundingOverflow)
}

func TestPlanner_PrepareConcurrent(t *testing.T) {
	p := newPlanner(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	digests := make([]uint64, 8)
	for i := range digests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := p.Prepare(ctx, boxworld.Definition(), boxworld.SwapProblem())
			if assert.NoError(t, err) {
				digests[i] = u.Digest()
			}
		}()
	}
	wg.Wait()
	for _, d := range digests {
		assert.Equal(t, digests[0], d)
	}
}

func TestPlanner_StoreRoundTrip(t *testing.T) {
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	first := newPlanner(t, nil, WithDB(db))
	u, err := first.Prepare(ctx, boxworld.Definition(), boxworld.TransferProblem())
	require.NoError(t, err)
	res, err := first.Solve(ctx, u)
	require.NoError(t, err)

	// A second planner on the same database finds the stored plan without
	// searching: the RunID is the first run's.
	second := newPlanner(t, nil, WithDB(db), WithUniverseCache(0))
	u2, err := second.Prepare(ctx, boxworld.Definition(), boxworld.TransferProblem())
	require.NoError(t, err)
	cached, err := second.Solve(ctx, u2)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, cached.RunID)
	assert.Equal(t, res.Plan, cached.Plan)

	// Another strategy misses the cache.
	ucs := newPlanner(t, func(c *config.Config) { c.Search.Strategy = "uniform_cost" }, WithDB(db))
	fresh, err := ucs.Solve(ctx, u2)
	require.NoError(t, err)
	assert.NotEqual(t, res.RunID, fresh.RunID)
	assert.Equal(t, res.Plan, fresh.Plan)
}

func TestPlanner_OwnedInMemoryStore(t *testing.T) {
	p := newPlanner(t, func(c *config.Config) {
		c.Store.Enabled = true
		c.Store.InMemory = true
	})
	ctx := context.Background()
	u, err := p.Prepare(ctx, boxworld.Definition(), boxworld.UnreachableProblem())
	require.NoError(t, err)

	a, err := p.Solve(ctx, u)
	require.NoError(t, err)
	b, err := p.Solve(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, search.StatusUnreachable, b.Status)
	assert.Equal(t, a.RunID, b.RunID)
}

func TestPlanner_StoreTTL(t *testing.T) {
	p := newPlanner(t, func(c *config.Config) {
		c.Store.Enabled = true
		c.Store.InMemory = true
		c.Store.TTL = time.Hour
	})
	ctx := context.Background()
	u, err := p.Prepare(ctx, boxworld.Definition(), boxworld.TransferProblem())
	require.NoError(t, err)
	_, err = p.Solve(ctx, u)
	require.NoError(t, err)

	key := planstore.Key(search.TaskFor(u), p.searchCfg)
	require.NoError(t, p.ownDB.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		assert.NotZero(t, item.ExpiresAt())
		return nil
	}))
}

func TestPlanner_PrepareSurvivesCancelledCaller(t *testing.T) {
	for range 20 {
		p := newPlanner(t, nil, WithUniverseCache(0))
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		var wg sync.WaitGroup
		var liveErr, deadErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, deadErr = p.Prepare(cancelled, boxworld.Definition(), boxworld.SwapProblem())
		}()
		go func() {
			defer wg.Done()
			_, liveErr = p.Prepare(context.Background(), boxworld.Definition(), boxworld.SwapProblem())
		}()
		wg.Wait()

		require.NoError(t, liveErr)
		if deadErr != nil {
			assert.ErrorIs(t, deadErr, context.Canceled)
		}
	}
}

func TestPlanner_TracingDisabled(t *testing.T) {
	// Init rejects this exporter, so New only succeeds if it is never used.
	p := newPlanner(t, func(c *config.Config) {
		c.Observability.TracingEnabled = false
		c.Observability.Telemetry.TraceExporter = "carrier-pigeon"
	}, WithTelemetry())
	assert.NotNil(t, p)
}

func TestPlanner_SolveAll(t *testing.T) {
	p := newPlanner(t, func(c *config.Config) { c.Runner.MaxConcurrency = 2 })
	ctx := context.Background()

	var jobs []runner.Job
	for _, def := range []problem.Definition{
		boxworld.TransferProblem(), boxworld.UnreachableProblem(), boxworld.SwapProblem(),
	} {
		u, err := p.Prepare(ctx, boxworld.Definition(), def)
		require.NoError(t, err)
		jobs = append(jobs, runner.Job{Name: def.Name, Task: search.TaskFor(u)})
	}

	outcomes, stats, err := p.SolveAll(ctx, jobs)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, 2, stats.Solved)
	assert.Equal(t, 1, stats.Unreachable)
	assert.Len(t, outcomes[2].Result.Plan, 8)
}

func TestPlanner_ValidateRejectsElse(t *testing.T) {
	p := newPlanner(t, nil)
	ctx := context.Background()
	u, err := p.Prepare(ctx, boxworld.Definition(), boxworld.ElseProblem())
	require.NoError(t, err)

	_, err = p.Validate(ctx, u, []string{"grasp(b0,else)"})
	assert.ErrorIs(t, err, problem.ErrUnknownObject)
}

func TestPlanner_Transitions(t *testing.T) {
	p := newPlanner(t, func(c *config.Config) { c.Search.Weights = map[string]float64{"transfer": 3} })
	ctx := context.Background()
	u, err := p.Prepare(ctx, boxworld.Definition(), boxworld.TransferProblem())
	require.NoError(t, err)

	sys, err := p.Transitions(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 11, sys.NumStates())
	for _, e := range sys.Edges() {
		if u.Action(e.Action).Schema == "transfer" {
			assert.Equal(t, 3.0, e.Weight)
		}
	}
}

func TestPlanner_Registry(t *testing.T) {
	p := newPlanner(t, nil)
	assert.Equal(t, []string{"grounder", "plan_validator", "search_bfs"}, p.Registry().List())
	for _, hr := range p.Registry().HealthCheckAll(context.Background(), 2) {
		assert.Equal(t, eval.HealthHealthy, hr.Status, "%s: %s", hr.Component, hr.Message)
	}
}

func TestPlanner_WithTelemetry(t *testing.T) {
	p := newPlanner(t, nil, WithTelemetry())
	u, err := p.Prepare(context.Background(), boxworld.Definition(), boxworld.TransferProblem())
	require.NoError(t, err)
	_, err = p.Solve(context.Background(), u)
	require.NoError(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Search.Strategy = "astar"
	_, err := New(context.Background(), cfg, WithLogger(quiet))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
