// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner ties grounding, search, validation and the plan store
// into one entry point.
//
// A typical session:
//
//	p, err := planner.New(ctx, cfg)
//	defer p.Close(ctx)
//	u, err := p.Prepare(ctx, domainDef, problemDef)
//	res, err := p.Solve(ctx, u)
//	vr, err := p.Validate(ctx, u, []string{"transit(b0,l0,l7)", ...})
package planner

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianPlan/services/planner/config"
	"github.com/AleutianAI/AleutianPlan/services/planner/domain"
	"github.com/AleutianAI/AleutianPlan/services/planner/eval"
	"github.com/AleutianAI/AleutianPlan/services/planner/ground"
	"github.com/AleutianAI/AleutianPlan/services/planner/planstore"
	"github.com/AleutianAI/AleutianPlan/services/planner/problem"
	"github.com/AleutianAI/AleutianPlan/services/planner/runner"
	"github.com/AleutianAI/AleutianPlan/services/planner/search"
	"github.com/AleutianAI/AleutianPlan/services/planner/state"
	badgerstore "github.com/AleutianAI/AleutianPlan/services/planner/storage/badger"
	"github.com/AleutianAI/AleutianPlan/services/planner/telemetry"
	"github.com/AleutianAI/AleutianPlan/services/planner/transition"
	"github.com/AleutianAI/AleutianPlan/services/planner/validate"
)

var tracer = otel.Tracer("aleutian.planner")

// ErrInvalidPlan is returned by Solve when a freshly found plan fails
// validation. It indicates a bug, not a property of the problem.
var ErrInvalidPlan = errors.New("search returned an invalid plan")

// Option customizes New.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	db            *badgerstore.DB
	initTelemetry bool
	cacheSize     int64
}

// WithLogger replaces the logger built from the observability config.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDB uses an already open database for the plan store. The planner
// does not close it.
func WithDB(db *badgerstore.DB) Option {
	return func(o *options) { o.db = db }
}

// WithTelemetry makes New install the configured otel providers and Close
// shut them down.
func WithTelemetry() Option {
	return func(o *options) { o.initTelemetry = true }
}

// WithUniverseCache bounds the universe cache by total atoms plus actions.
// Zero disables the cache.
func WithUniverseCache(cost int64) Option {
	return func(o *options) { o.cacheSize = cost }
}

// Planner is the planning facade.
//
// Description:
//
//	Prepare validates and grounds a domain/problem pair. Identical pairs
//	requested concurrently are grounded once, and ground universes are
//	kept in a cost-bounded cache. Solve consults the plan store, searches
//	on a miss, checks the plan with the validator and stores the outcome.
//
// Thread Safety: Safe for concurrent use.
type Planner struct {
	cfg       config.Config
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	groundCfg *ground.Config
	searchCfg *search.Config

	engine    *search.Engine
	validator *validate.Validator
	store     *planstore.Store
	registry  *eval.Registry

	prepareGroup singleflight.Group
	universes    *ristretto.Cache[uint64, *ground.Universe]

	ownDB    *badgerstore.DB
	shutdown func(context.Context) error
}

// New creates a Planner from cfg.
//
// Inputs:
//   - ctx: Used for telemetry setup.
//   - cfg: Validated with cfg.Validate().
//   - opts: Optional overrides.
//
// Outputs:
//   - *Planner: The planner. Call Close when done.
//   - error: Config validation, telemetry, store or engine errors.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{cacheSize: 1 << 22}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = cfg.Observability.NewLogger()
	}

	p := &Planner{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "planner")),
	}

	if o.initTelemetry {
		shutdown, err := telemetry.Init(ctx, cfg.Observability.TelemetryConfig())
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		p.shutdown = shutdown
	}

	if cfg.Observability.MetricsEnabled {
		m, err := telemetry.NewMetrics(otel.Meter("aleutian.planner"))
		if err != nil {
			p.closeQuietly(ctx)
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		p.metrics = m
	} else {
		p.metrics = telemetry.NoopMetrics()
	}

	p.groundCfg = cfg.ToGroundConfig(logger)
	p.searchCfg = cfg.ToSearchConfig()
	p.searchCfg.Logger = logger
	p.searchCfg.Metrics = p.metrics

	engine, err := search.New(p.searchCfg)
	if err != nil {
		p.closeQuietly(ctx)
		return nil, err
	}
	p.engine = engine
	p.validator = validate.NewValidator(logger, p.metrics)

	if o.cacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[uint64, *ground.Universe]{
			NumCounters: 10_000,
			MaxCost:     o.cacheSize,
			BufferItems: 64,
		})
		if err != nil {
			p.closeQuietly(ctx)
			return nil, fmt.Errorf("create universe cache: %w", err)
		}
		p.universes = cache
	}

	if err := p.openStore(cfg.Store, o.db, logger); err != nil {
		p.closeQuietly(ctx)
		return nil, err
	}

	p.registry = eval.NewRegistry()
	for _, c := range []eval.Evaluable{ground.NewEvaluable(p.groundCfg), p.engine, p.validator} {
		if err := p.registry.Register(c); err != nil {
			p.closeQuietly(ctx)
			return nil, fmt.Errorf("register %s: %w", c.Name(), err)
		}
	}

	p.logger.Info("planner ready",
		slog.String("strategy", string(p.searchCfg.Strategy)),
		slog.Bool("store", p.store != nil),
		slog.Int("max_groundings", p.groundCfg.MaxGroundings),
	)
	return p, nil
}

func (p *Planner) openStore(sc config.StoreConfig, db *badgerstore.DB, logger *slog.Logger) error {
	if db == nil && !sc.Enabled {
		return nil
	}
	if db == nil {
		bc := badgerstore.DefaultConfig()
		if sc.InMemory {
			bc = badgerstore.InMemoryConfig()
		}
		bc.Path = sc.Path
		bc.Logger = logger
		opened, err := badgerstore.Open(bc)
		if err != nil {
			return fmt.Errorf("open plan store: %w", err)
		}
		p.ownDB = opened
		db = opened
	}
	p.store = planstore.New(db, planstore.Options{TTL: sc.TTL, Logger: logger, Metrics: p.metrics})
	return nil
}

// Close releases the universe cache, the owned database and telemetry.
func (p *Planner) Close(ctx context.Context) error {
	var errs []error
	if p.universes != nil {
		p.universes.Close()
	}
	if p.ownDB != nil {
		errs = append(errs, p.ownDB.Close())
	}
	if p.shutdown != nil {
		errs = append(errs, p.shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (p *Planner) closeQuietly(ctx context.Context) {
	if err := p.Close(ctx); err != nil {
		p.logger.Warn("cleanup after failed start", slog.String("error", err.Error()))
	}
}

// Registry returns the eval registry of the grounder, search engine and
// validator.
func (p *Planner) Registry() *eval.Registry {
	return p.registry
}

// SearchConfig returns a copy of the effective search configuration.
func (p *Planner) SearchConfig() search.Config {
	return *p.searchCfg
}

// -----------------------------------------------------------------------------
// Prepare
// -----------------------------------------------------------------------------

// Prepare validates a domain and problem and grounds them.
//
// Description:
//
//	Concurrent calls for the same pair share one grounding. A caller whose
//	ctx ends returns ctx.Err() without cancelling the grounding for the
//	others.
//
// Outputs:
//   - *ground.Universe: The ground universe, shared between callers.
//   - error: Schema, catalog or grounding errors from the domain, problem
//     and ground packages, or ctx.Err().
func (p *Planner) Prepare(ctx context.Context, dd domain.Definition, pd problem.Definition) (*ground.Universe, error) {
	ctx, span := tracer.Start(ctx, "planner.Prepare")
	defer span.End()

	key, err := definitionKey(dd, pd)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("planner.problem", pd.Name))

	if u, ok := p.cached(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return u, nil
	}

	// Grounding outlives the caller that started it; each caller only
	// stops waiting on its own ctx.
	gctx := context.WithoutCancel(ctx)
	ch := p.prepareGroup.DoChan(fmt.Sprintf("%016x", key), func() (any, error) {
		if u, ok := p.cached(key); ok {
			return u, nil
		}
		dom, err := domain.New(dd)
		if err != nil {
			return nil, err
		}
		prob, err := problem.New(dom, pd)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		u, err := ground.Ground(gctx, prob, p.groundCfg)
		if err != nil {
			p.metrics.RecordGrounding(gctx, "error", 0, 0, time.Since(start))
			return nil, err
		}
		p.metrics.RecordGrounding(gctx, "ok", u.NumAtoms(), u.NumActions(), time.Since(start))
		if p.universes != nil {
			p.universes.Set(key, u, int64(u.NumAtoms()+u.NumActions()+1))
			p.universes.Wait()
		}
		return u, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.RecordError(ctx, "planner", "prepare")
		p.logger.Warn("prepare failed", slog.String("problem", pd.Name), slog.String("error", err.Error()))
		return nil, err
	}
	u, ok := v.(*ground.Universe)
	if !ok {
		return nil, fmt.Errorf("unexpected type from prepare group: %T", v)
	}
	span.SetAttributes(attribute.Bool("cache_hit", false), attribute.Bool("shared", shared))
	return u, nil
}

func (p *Planner) cached(key uint64) (*ground.Universe, bool) {
	if p.universes == nil {
		return nil, false
	}
	return p.universes.Get(key)
}

func definitionKey(dd domain.Definition, pd problem.Definition) (uint64, error) {
	d := xxhash.New()
	for _, v := range []any{dd, pd} {
		data, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("encode definition: %w", err)
		}
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(data)))
		_, _ = d.Write(n[:])
		_, _ = d.Write(data)
	}
	return d.Sum64(), nil
}

// -----------------------------------------------------------------------------
// Solve
// -----------------------------------------------------------------------------

// Solve searches for a plan from the universe's initial state to its goal.
func (p *Planner) Solve(ctx context.Context, u *ground.Universe) (*search.Result, error) {
	return p.Search(ctx, search.TaskFor(u))
}

// Search solves an arbitrary task, using the plan store when enabled.
//
// Description:
//
//	Solved and unreachable outcomes are stored; limit and cancellation
//	outcomes are not, since a later run with other limits may differ.
//	Store failures are logged and never fail the search.
//
// Outputs:
//   - *search.Result: The outcome.
//   - error: ctx.Err() on cancellation, or ErrInvalidPlan.
func (p *Planner) Search(ctx context.Context, task search.Task) (*search.Result, error) {
	ctx, span := tracer.Start(ctx, "planner.Search")
	defer span.End()

	if p.store != nil {
		res, hit, err := p.store.Lookup(ctx, task, p.searchCfg)
		if err != nil {
			p.logger.Warn("plan store lookup failed", slog.String("error", err.Error()))
		}
		if hit {
			span.SetAttributes(attribute.Bool("planstore.hit", true))
			return res, nil
		}
	}

	res, err := p.engine.Search(ctx, task)
	if err != nil {
		return res, err
	}

	if res.Status == search.StatusSolved {
		vr := p.validator.Validate(ctx, validate.Input{
			Universe: task.Universe, Plan: res.Plan, Init: task.Init, Goal: task.Goal,
		})
		if !vr.Valid {
			err := fmt.Errorf("%w: step %d: %s", ErrInvalidPlan, vr.FailedStep, vr.Reason)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.metrics.RecordError(ctx, "planner", "invalid_plan")
			return res, err
		}
	}

	if p.store != nil && (res.Status == search.StatusSolved || res.Status == search.StatusUnreachable) {
		if err := p.store.Save(ctx, task, p.searchCfg, res); err != nil {
			p.logger.Warn("plan store save failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// SolveAll solves tasks concurrently, bounded by Runner.MaxConcurrency.
func (p *Planner) SolveAll(ctx context.Context, jobs []runner.Job) ([]runner.Outcome, runner.Stats, error) {
	r := runner.New(p, &runner.Config{
		MaxConcurrency: p.cfg.Runner.MaxConcurrency,
		Logger:         p.logger,
	})
	return r.Run(ctx, jobs)
}

// -----------------------------------------------------------------------------
// Validate and export
// -----------------------------------------------------------------------------

// Validate resolves step strings like "grasp(b0,l7)" and replays them from
// the universe's initial state.
//
// Outputs:
//   - *validate.Result: The replay result.
//   - error: validate.ErrMalformedStep, ground.ErrUnknownAction, or a
//     *problem.UnknownObjectError for a step that does not resolve.
func (p *Planner) Validate(ctx context.Context, u *ground.Universe, steps []string) (*validate.Result, error) {
	plan, err := validate.Resolve(u, steps)
	if err != nil {
		p.metrics.RecordValidation(ctx, false)
		return nil, err
	}
	return p.validator.Validate(ctx, validate.Input{
		Universe: u, Plan: plan, Init: state.Initial(u), Goal: u.Goal(),
	}), nil
}

// Transitions builds the reachable transition system of u with the
// configured action weights.
func (p *Planner) Transitions(ctx context.Context, u *ground.Universe, opts ...transition.BuildOption) (*transition.System, error) {
	base := []transition.BuildOption{
		transition.WithWeights(p.searchCfg.Weights),
		transition.WithLogger(p.logger),
	}
	return transition.Build(ctx, u, state.Initial(u), append(base, opts...)...)
}
