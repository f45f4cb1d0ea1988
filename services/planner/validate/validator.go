// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianPlan/services/planner/eval"
	"github.com/AleutianAI/AleutianPlan/services/planner/ground"
	"github.com/AleutianAI/AleutianPlan/services/planner/state"
	"github.com/AleutianAI/AleutianPlan/services/planner/telemetry"
)

var tracer = otel.Tracer("aleutian.planner.validate")

// Input bundles the arguments of one validation for property checks.
type Input struct {
	Universe *ground.Universe
	Plan     ground.Plan
	Init     state.State
	Goal     ground.Goal
}

// Validator wraps Validate with tracing, logging and metrics.
//
// Thread Safety: Safe for concurrent use.
type Validator struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewValidator creates a Validator. Both arguments may be nil.
func NewValidator(logger *slog.Logger, metrics *telemetry.Metrics) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		logger:  logger.With(slog.String("component", "validate")),
		metrics: metrics,
	}
}

// Validate replays plan; see the package-level Validate.
func (v *Validator) Validate(ctx context.Context, in Input) *Result {
	ctx, span := tracer.Start(ctx, "validate.Validate")
	defer span.End()

	res := Validate(in.Universe, in.Plan, in.Init, in.Goal)

	span.SetAttributes(
		attribute.Bool("validate.valid", res.Valid),
		attribute.Int("validate.steps", len(in.Plan)),
		attribute.Int("validate.failed_step", res.FailedStep),
	)
	v.metrics.RecordValidation(ctx, res.Valid)
	if !res.Valid {
		v.logger.Debug("plan rejected",
			slog.Int("failed_step", res.FailedStep),
			slog.String("action", res.FailedAction),
			slog.Int("unmet_goal", len(res.UnmetGoal)),
		)
	}
	return res
}

// Name implements eval.Evaluable.
func (v *Validator) Name() string {
	return "plan_validator"
}

// Properties implements eval.Evaluable. Input is an Input, output the
// *Result produced for it.
func (v *Validator) Properties() []eval.Property {
	return []eval.Property{
		{
			Name:        "idempotent_revalidation",
			Description: "Validating the same plan twice yields identical results.",
			Tags:        []string{"determinism"},
			Check: func(input, output any) error {
				in, ok := input.(Input)
				if !ok {
					return fmt.Errorf("input: want validate.Input, got %T", input)
				}
				res, ok := output.(*Result)
				if !ok {
					return fmt.Errorf("output: want *validate.Result, got %T", output)
				}
				again := Validate(in.Universe, in.Plan, in.Init, in.Goal)
				if !reflect.DeepEqual(again, res) {
					return fmt.Errorf("revalidation differs: valid %v vs %v, failed step %d vs %d",
						again.Valid, res.Valid, again.FailedStep, res.FailedStep)
				}
				return nil
			},
		},
		{
			Name:        "failure_is_located",
			Description: "An invalid plan names its failing step or unmet goal literals.",
			Check: func(_, output any) error {
				res, ok := output.(*Result)
				if !ok {
					return fmt.Errorf("output: want *validate.Result, got %T", output)
				}
				if res.Valid {
					return nil
				}
				if res.FailedStep < 0 && len(res.UnmetGoal) == 0 {
					return fmt.Errorf("invalid result without failing step or unmet goal")
				}
				return nil
			},
		},
	}
}

// Metrics implements eval.Evaluable.
func (v *Validator) Metrics() []eval.MetricDefinition {
	return []eval.MetricDefinition{
		{
			Name:        "planner_validations_total",
			Type:        eval.MetricCounter,
			Description: "Total plan validations",
			Labels:      []string{"valid"},
		},
	}
}

// HealthCheck implements eval.Evaluable.
func (v *Validator) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}
