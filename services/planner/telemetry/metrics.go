// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics contains the planner's counters and histograms.
//
// Description:
//
//	All metrics use the "planner_" prefix. Record methods are safe on a
//	nil *Metrics and do nothing, so components can hold an optional one.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Grounding ---

	// GroundingsTotal counts grounding runs by status.
	GroundingsTotal metric.Int64Counter

	// GroundingDuration records grounding duration in seconds.
	GroundingDuration metric.Float64Histogram

	// GroundAtoms records the atom universe size per grounding.
	GroundAtoms metric.Int64Histogram

	// GroundActions records the ground action count per grounding.
	GroundActions metric.Int64Histogram

	// --- Search ---

	// SearchesTotal counts search runs by strategy and status.
	SearchesTotal metric.Int64Counter

	// SearchDuration records search duration in seconds.
	SearchDuration metric.Float64Histogram

	// StatesExpanded counts states popped and expanded.
	StatesExpanded metric.Int64Counter

	// StatesGenerated counts successor states generated.
	StatesGenerated metric.Int64Counter

	// PlanLength records the length of returned plans.
	PlanLength metric.Int64Histogram

	// --- Validation & Store ---

	// ValidationsTotal counts plan validations by outcome.
	ValidationsTotal metric.Int64Counter

	// StoreOpsTotal counts plan store operations by op and result.
	StoreOpsTotal metric.Int64Counter

	// --- Errors ---

	// ErrorsTotal counts errors by component and kind.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a Metrics instance registered on meter.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance.
//	error - Non-nil if metric registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- Grounding ---
	m.GroundingsTotal, err = meter.Int64Counter(
		"planner_groundings_total",
		metric.WithDescription("Total grounding runs"),
		metric.WithUnit("{grounding}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create groundings_total: %w", err)
	}

	m.GroundingDuration, err = meter.Float64Histogram(
		"planner_grounding_duration_seconds",
		metric.WithDescription("Grounding duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create grounding_duration: %w", err)
	}

	m.GroundAtoms, err = meter.Int64Histogram(
		"planner_ground_atoms",
		metric.WithDescription("Ground atoms per universe"),
		metric.WithUnit("{atom}"),
		metric.WithExplicitBucketBoundaries(10, 100, 1000, 10000, 100000, 1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("create ground_atoms: %w", err)
	}

	m.GroundActions, err = meter.Int64Histogram(
		"planner_ground_actions",
		metric.WithDescription("Ground actions per universe"),
		metric.WithUnit("{action}"),
		metric.WithExplicitBucketBoundaries(10, 100, 1000, 10000, 100000, 1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("create ground_actions: %w", err)
	}

	// --- Search ---
	m.SearchesTotal, err = meter.Int64Counter(
		"planner_searches_total",
		metric.WithDescription("Total search runs"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create searches_total: %w", err)
	}

	m.SearchDuration, err = meter.Float64Histogram(
		"planner_search_duration_seconds",
		metric.WithDescription("Search duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120),
	)
	if err != nil {
		return nil, fmt.Errorf("create search_duration: %w", err)
	}

	m.StatesExpanded, err = meter.Int64Counter(
		"planner_states_expanded_total",
		metric.WithDescription("Total states expanded"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create states_expanded: %w", err)
	}

	m.StatesGenerated, err = meter.Int64Counter(
		"planner_states_generated_total",
		metric.WithDescription("Total successor states generated"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create states_generated: %w", err)
	}

	m.PlanLength, err = meter.Int64Histogram(
		"planner_plan_length",
		metric.WithDescription("Length of returned plans"),
		metric.WithUnit("{action}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 50, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("create plan_length: %w", err)
	}

	// --- Validation & Store ---
	m.ValidationsTotal, err = meter.Int64Counter(
		"planner_validations_total",
		metric.WithDescription("Total plan validations"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create validations_total: %w", err)
	}

	m.StoreOpsTotal, err = meter.Int64Counter(
		"planner_store_ops_total",
		metric.WithDescription("Total plan store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create store_ops_total: %w", err)
	}

	// --- Errors ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"planner_errors_total",
		metric.WithDescription("Total errors by component and kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// NoopMetrics returns Metrics backed by a no-op meter.
func NoopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	if err != nil {
		// The no-op meter never fails to create instruments.
		panic(err)
	}
	return m
}

// RecordGrounding records one grounding run.
func (m *Metrics) RecordGrounding(ctx context.Context, status string, atoms, actions int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.GroundingsTotal.Add(ctx, 1, attrs)
	m.GroundingDuration.Record(ctx, d.Seconds(), attrs)
	if status == "ok" {
		m.GroundAtoms.Record(ctx, int64(atoms))
		m.GroundActions.Record(ctx, int64(actions))
	}
}

// SearchRecord summarizes one search run for RecordSearch.
type SearchRecord struct {
	Strategy   string
	Status     string
	Expanded   int
	Generated  int
	PlanLength int
	Duration   time.Duration
}

// RecordSearch records one search run.
func (m *Metrics) RecordSearch(ctx context.Context, r SearchRecord) {
	if m == nil {
		return
	}
	strategy := attribute.String("strategy", r.Strategy)
	m.SearchesTotal.Add(ctx, 1, metric.WithAttributes(strategy, attribute.String("status", r.Status)))
	m.SearchDuration.Record(ctx, r.Duration.Seconds(), metric.WithAttributes(strategy))
	m.StatesExpanded.Add(ctx, int64(r.Expanded), metric.WithAttributes(strategy))
	m.StatesGenerated.Add(ctx, int64(r.Generated), metric.WithAttributes(strategy))
	if r.Status == "solved" {
		m.PlanLength.Record(ctx, int64(r.PlanLength), metric.WithAttributes(strategy))
	}
}

// RecordValidation records one plan validation.
func (m *Metrics) RecordValidation(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	m.ValidationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", valid)))
}

// RecordStore records one plan store operation.
func (m *Metrics) RecordStore(ctx context.Context, op, result string) {
	if m == nil {
		return
	}
	m.StoreOpsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// RecordError records one error.
func (m *Metrics) RecordError(ctx context.Context, component, kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("kind", kind),
	))
}
