// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner solves independent planning tasks concurrently.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianPlan/services/planner/search"
)

var tracer = otel.Tracer("aleutian.planner.runner")

// Solver runs one search. *search.Engine satisfies it.
type Solver interface {
	Search(ctx context.Context, task search.Task) (*search.Result, error)
}

// Job is one named task.
type Job struct {
	Name string
	Task search.Task
}

// Outcome is the result of one Job.
type Outcome struct {
	// Index is the job's position in the input slice.
	Index    int
	Name     string
	Result   *search.Result
	Err      error
	Duration time.Duration
}

// Stats summarizes a Run.
type Stats struct {
	Total         int
	Solved        int
	Unreachable   int
	LimitExceeded int
	Cancelled     int
	Failed        int
	Duration      time.Duration
}

// Config configures a Runner.
type Config struct {
	// MaxConcurrency bounds concurrent searches. Default 4.
	MaxConcurrency int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with four workers.
func DefaultConfig() *Config {
	return &Config{MaxConcurrency: 4}
}

// Runner fans jobs out to a Solver.
//
// Description:
//
//	Each search owns its frontier and visited index, so jobs share nothing
//	but the Solver and the read-only universes. A failing job does not stop
//	the others; its error is reported in its Outcome.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	solver Solver
	limit  int
	logger *slog.Logger
}

// New creates a Runner. Nil cfg uses DefaultConfig().
func New(solver Solver, cfg *Config) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = DefaultConfig().MaxConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		solver: solver,
		limit:  limit,
		logger: logger.With(slog.String("component", "runner")),
	}
}

// Run solves every job and returns outcomes in input order.
//
// Inputs:
//   - ctx: Cancelling ctx stops jobs not yet started and cancels running
//     searches.
//   - jobs: The jobs to solve.
//
// Outputs:
//   - []Outcome: One per job, in input order.
//   - Stats: Counts by status.
//   - error: ctx.Err() if ctx was cancelled before every job finished.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Outcome, Stats, error) {
	ctx, span := tracer.Start(ctx, "runner.Run", trace.WithAttributes(
		attribute.Int("runner.jobs", len(jobs)),
		attribute.Int("runner.limit", r.limit),
	))
	defer span.End()

	start := time.Now()
	outcomes := make([]Outcome, len(jobs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)

	var mu sync.Mutex
	done := 0

	for i, job := range jobs {
		outcomes[i] = Outcome{Index: i, Name: job.Name}
		if gCtx.Err() != nil {
			outcomes[i].Err = gCtx.Err()
			continue
		}
		g.Go(func() error {
			jobStart := time.Now()
			res, err := r.solver.Search(gCtx, job.Task)
			outcomes[i].Result = res
			outcomes[i].Err = err
			outcomes[i].Duration = time.Since(jobStart)

			if err != nil && gCtx.Err() == nil {
				r.logger.Warn("job failed", slog.String("job", job.Name), slog.String("error", err.Error()))
			}

			mu.Lock()
			done++
			mu.Unlock()
			// Job errors are reported per outcome, never propagated.
			return nil
		})
	}
	_ = g.Wait()

	stats := Stats{Total: len(jobs), Duration: time.Since(start)}
	for _, o := range outcomes {
		switch {
		case o.Result != nil && o.Result.Status == search.StatusCancelled:
			stats.Cancelled++
		case o.Err != nil && o.Result == nil:
			if ctx.Err() != nil {
				stats.Cancelled++
			} else {
				stats.Failed++
			}
		case o.Result == nil:
			stats.Failed++
		case o.Result.Status == search.StatusSolved:
			stats.Solved++
		case o.Result.Status == search.StatusUnreachable:
			stats.Unreachable++
		case o.Result.Status == search.StatusLimitExceeded:
			stats.LimitExceeded++
		}
	}

	span.SetAttributes(
		attribute.Int("runner.completed", done),
		attribute.Int("runner.solved", stats.Solved),
		attribute.Int("runner.failed", stats.Failed),
	)
	r.logger.Info("run finished",
		slog.Int("jobs", stats.Total),
		slog.Int("solved", stats.Solved),
		slog.Int("unreachable", stats.Unreachable),
		slog.Int("limit_exceeded", stats.LimitExceeded),
		slog.Int("cancelled", stats.Cancelled),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", stats.Duration),
	)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcomes, stats, err
	}
	return outcomes, stats, nil
}
