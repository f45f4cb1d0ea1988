// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPlan/services/planner/boxworld"
	"github.com/AleutianAI/AleutianPlan/services/planner/ground"
	"github.com/AleutianAI/AleutianPlan/services/planner/problem"
	"github.com/AleutianAI/AleutianPlan/services/planner/search"
)

func job(t *testing.T, def problem.Definition) Job {
	t.Helper()
	p, err := boxworld.Problem(def)
	require.NoError(t, err)
	u, err := ground.Ground(context.Background(), p, nil)
	require.NoError(t, err)
	return Job{Name: def.Name, Task: search.TaskFor(u)}
}

func TestRun_BoxWorld(t *testing.T) {
	engine, err := search.New(nil)
	require.NoError(t, err)

	jobs := []Job{
		job(t, boxworld.TransferProblem()),
		job(t, boxworld.UnreachableProblem()),
		job(t, boxworld.SwapProblem()),
		job(t, boxworld.ElseProblem()),
	}
	outcomes, stats, err := New(engine, &Config{MaxConcurrency: 2}).Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, jobs[i].Name, o.Name)
		require.NoError(t, o.Err)
	}
	assert.Equal(t, search.StatusSolved, outcomes[0].Result.Status)
	assert.Len(t, outcomes[0].Result.Plan, 4)
	assert.Equal(t, search.StatusUnreachable, outcomes[1].Result.Status)
	assert.Len(t, outcomes[2].Result.Plan, 8)

	assert.Equal(t, Stats{Total: 4, Solved: 2, Unreachable: 2, Duration: stats.Duration}, stats)
}

type countingSolver struct {
	active, peak atomic.Int32
	release      chan struct{}
	fail         string
}

func (s *countingSolver) Search(ctx context.Context, task search.Task) (*search.Result, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return &search.Result{Status: search.StatusCancelled}, ctx.Err()
	}
	if task.Universe == nil && s.fail != "" {
		return nil, errors.New(s.fail)
	}
	return &search.Result{Status: search.StatusSolved}, nil
}

func TestRun_RespectsLimitAndIsolatesFailures(t *testing.T) {
	release := make(chan struct{})
	solver := &countingSolver{release: release, fail: "boom"}
	close(release)

	jobs := make([]Job, 10)
	outcomes, stats, err := New(solver, &Config{MaxConcurrency: 3}).Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.LessOrEqual(t, solver.peak.Load(), int32(3))
	assert.Equal(t, 10, stats.Failed)
	for _, o := range outcomes {
		assert.EqualError(t, o.Err, "boom")
	}
}

func TestRun_Cancelled(t *testing.T) {
	solver := &countingSolver{release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, stats, err := New(solver, nil).Run(ctx, make([]Job, 5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, outcomes, 5)
	assert.Equal(t, 5, stats.Cancelled)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(nil, &Config{MaxConcurrency: -1})
	assert.Equal(t, 4, r.limit)
}
