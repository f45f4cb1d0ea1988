// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planstore persists search outcomes in BadgerDB.
//
// Records are keyed by the task fingerprint (universe digest, initial
// state, goal) and the search configuration fingerprint (strategy,
// weights). A stored plan is replayed with the validator before it is
// returned, so a stale or corrupted record degrades to a cache miss.
package planstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianPlan/services/planner/search"
	badgerstore "github.com/AleutianAI/AleutianPlan/services/planner/storage/badger"
	"github.com/AleutianAI/AleutianPlan/services/planner/telemetry"
	"github.com/AleutianAI/AleutianPlan/services/planner/validate"
)

var tracer = otel.Tracer("aleutian.planner.planstore")

// ErrNotStorable is returned by Save for results that depend on limits or
// cancellation.
var ErrNotStorable = errors.New("result status is not storable")

const keyPrefix = "plan/"

// Record is the persisted form of a search outcome.
type Record struct {
	Status    string            `json:"status"`
	Strategy  string            `json:"strategy"`
	Steps     []string          `json:"steps,omitempty"`
	Cost      float64           `json:"cost"`
	Expanded  int               `json:"expanded"`
	RunID     string            `json:"run_id"`
	CreatedAt time.Time         `json:"created_at"`
	Trace     map[string]string `json:"trace,omitempty"`
}

// Options configures a Store.
type Options struct {
	// TTL expires records. Zero keeps them forever.
	TTL time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *telemetry.Metrics
}

// Store caches search outcomes.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db      *badgerstore.DB
	ttl     time.Duration
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *badgerstore.DB, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:      db,
		ttl:     opts.TTL,
		logger:  logger.With(slog.String("component", "planstore")),
		metrics: opts.Metrics,
	}
}

// Key returns the record key of task under cfg.
func Key(task search.Task, cfg *search.Config) []byte {
	return fmt.Appendf(nil, "%s%016x/%016x", keyPrefix, task.Fingerprint(), cfg.Fingerprint())
}

// Save stores a solved or unreachable result.
//
// Outputs:
//   - error: ErrNotStorable for other statuses, or a database error.
func (s *Store) Save(ctx context.Context, task search.Task, cfg *search.Config, res *search.Result) error {
	if res.Status != search.StatusSolved && res.Status != search.StatusUnreachable {
		return fmt.Errorf("%w: %s", ErrNotStorable, res.Status)
	}
	ctx, span := tracer.Start(ctx, "planstore.Save")
	defer span.End()

	rec := Record{
		Status:    res.Status.String(),
		Strategy:  string(res.Strategy),
		Steps:     res.Plan.Strings(task.Universe),
		Cost:      res.Cost,
		Expanded:  res.Expanded,
		RunID:     res.RunID.String(),
		CreatedAt: time.Now().UTC(),
		Trace:     telemetry.InjectToMap(ctx, nil),
	}
	err := s.Put(ctx, Key(task, cfg), rec)
	s.record(ctx, "put", err, true)
	return err
}

// Put writes a raw record.
func (s *Store) Put(ctx context.Context, key []byte, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		e := badger.NewEntry(key, data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Get reads a raw record.
//
// Outputs:
//   - *Record: The record, nil when absent.
//   - error: A database or decode error.
func (s *Store) Get(ctx context.Context, key []byte) (*Record, error) {
	var rec *Record
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &Record{}
			return json.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return rec, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, key []byte) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Lookup returns the stored result of task under cfg.
//
// Description:
//
//	A stored plan is resolved against task.Universe and replayed from
//	task.Init. A record that no longer resolves or validates is deleted
//	and reported as a miss.
//
// Outputs:
//   - *search.Result: The cached result, carrying the RunID of the run that stored it.
//   - bool: True on a hit.
//   - error: A database error.
func (s *Store) Lookup(ctx context.Context, task search.Task, cfg *search.Config) (*search.Result, bool, error) {
	ctx, span := tracer.Start(ctx, "planstore.Lookup")
	defer span.End()

	key := Key(task, cfg)
	rec, err := s.Get(ctx, key)
	if err != nil {
		s.record(ctx, "get", err, false)
		return nil, false, err
	}
	if rec == nil {
		span.SetAttributes(attribute.Bool("planstore.hit", false))
		s.record(ctx, "get", nil, false)
		return nil, false, nil
	}

	res, reason := s.restore(task, rec)
	if res == nil {
		s.logger.Warn("discarding stale plan record", slog.String("key", string(key)), slog.String("reason", reason))
		if err := s.Delete(ctx, key); err != nil {
			s.logger.Warn("delete stale record failed", slog.String("error", err.Error()))
		}
		span.SetAttributes(attribute.Bool("planstore.hit", false))
		s.metrics.RecordStore(ctx, "get", "stale")
		return nil, false, nil
	}

	span.SetAttributes(attribute.Bool("planstore.hit", true))
	s.record(ctx, "get", nil, true)
	return res, true, nil
}

func (s *Store) restore(task search.Task, rec *Record) (*search.Result, string) {
	status, err := search.ParseStatus(rec.Status)
	if err != nil {
		return nil, err.Error()
	}
	res := &search.Result{
		Status:   status,
		Strategy: search.Strategy(rec.Strategy),
		Cost:     rec.Cost,
		Expanded: rec.Expanded,
	}
	if id, err := uuid.Parse(rec.RunID); err == nil {
		res.RunID = id
	}
	if status != search.StatusSolved {
		return res, ""
	}

	plan, err := validate.Resolve(task.Universe, rec.Steps)
	if err != nil {
		return nil, err.Error()
	}
	vr := validate.Validate(task.Universe, plan, task.Init, task.Goal)
	if !vr.Valid {
		return nil, fmt.Sprintf("plan invalid at step %d", vr.FailedStep)
	}
	res.Plan = plan
	return res, ""
}

func (s *Store) record(ctx context.Context, op string, err error, hit bool) {
	switch {
	case err != nil:
		s.metrics.RecordStore(ctx, op, "error")
		s.metrics.RecordError(ctx, "planstore", op)
		s.logger.Warn("plan store operation failed", slog.String("op", op), slog.String("error", err.Error()))
	case op == "get" && !hit:
		s.metrics.RecordStore(ctx, op, "miss")
	case op == "get":
		s.metrics.RecordStore(ctx, op, "hit")
	default:
		s.metrics.RecordStore(ctx, op, "ok")
	}
}
