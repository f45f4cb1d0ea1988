// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound means no component is registered under the name.
	ErrNotFound = errors.New("component not found")

	// ErrAlreadyRegistered means the name is taken.
	ErrAlreadyRegistered = errors.New("component already registered")

	// ErrNilComponent rejects Register(nil).
	ErrNilComponent = errors.New("component must not be nil")

	// ErrInvalidProperty marks a property missing its name, description or check.
	ErrInvalidProperty = errors.New("invalid property definition")

	// ErrPropertyFailed wraps the error returned by a failing check.
	ErrPropertyFailed = errors.New("property check failed")

	// ErrPropertyTimeout marks a check that outlived Property.Timeout.
	ErrPropertyTimeout = errors.New("property check timed out")
)

// -----------------------------------------------------------------------------
// Core Interfaces
// -----------------------------------------------------------------------------

// Evaluable is implemented by planner components that publish correctness
// properties and metrics.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Evaluable interface {
	// Name returns a stable identifier suitable for metric labels
	// (lowercase, underscore-separated). Example: "grounder", "bfs".
	Name() string

	// Properties lists the invariants that hold for every input/output
	// pair the component produces.
	Properties() []Property

	// Metrics lists the otel instruments the component records.
	Metrics() []MetricDefinition

	// HealthCheck reports whether the component can serve requests, usually
	// by validating its configuration. A nil error is healthy.
	HealthCheck(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// Property Definition
// -----------------------------------------------------------------------------

// Property defines a correctness invariant checked against an
// input/output pair of a component.
//
// Example:
//
//	Property{
//	    Name:        "plan_validates",
//	    Description: "Every returned plan replays from the initial state to the goal",
//	    Check:       func(input, output any) error { ... },
//	}
type Property struct {
	// Name is a unique identifier, lowercase with underscores.
	Name string

	Description string

	// Check returns nil if the property holds for input/output.
	Check func(input any, output any) error

	// Tags select subsets in Registry.Verify, e.g. "critical", "determinism".
	Tags []string

	// Timeout bounds a single check. Zero means no bound.
	Timeout time.Duration
}

// Validate reports ErrInvalidProperty for an incomplete property.
func (p *Property) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProperty)
	}
	if p.Description == "" {
		return fmt.Errorf("%w: description is required for %s", ErrInvalidProperty, p.Name)
	}
	if p.Check == nil {
		return fmt.Errorf("%w: check function is required for %s", ErrInvalidProperty, p.Name)
	}
	return nil
}

// HasTag reports whether tag is among p.Tags.
func (p *Property) HasTag(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// -----------------------------------------------------------------------------
// Metric Definition
// -----------------------------------------------------------------------------

// MetricType is the otel instrument kind behind a MetricDefinition.
type MetricType int

const (
	MetricCounter MetricType = iota
	MetricGauge
	MetricHistogram
)

func (m MetricType) String() string {
	switch m {
	case MetricCounter:
		return "counter"
	case MetricGauge:
		return "gauge"
	case MetricHistogram:
		return "histogram"
	}
	return "metric_type(" + strconv.Itoa(int(m)) + ")"
}

// MetricDefinition documents one instrument recorded through telemetry.Metrics.
type MetricDefinition struct {
	// Name follows Prometheus conventions, e.g. "planner_states_expanded".
	Name string

	Type MetricType

	Description string

	Labels []string

	// Buckets are the histogram bucket boundaries (histograms only).
	Buckets []float64
}

// Validate requires a name and description, and buckets for histograms.
func (m *MetricDefinition) Validate() error {
	switch {
	case m.Name == "":
		return errors.New("metric definition without name")
	case m.Description == "":
		return fmt.Errorf("metric %s: missing description", m.Name)
	case m.Type == MetricHistogram && len(m.Buckets) == 0:
		return fmt.Errorf("histogram %s: missing buckets", m.Name)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Verification Results
// -----------------------------------------------------------------------------

// VerifyResult contains the results of checking a component's properties
// against one input/output pair.
type VerifyResult struct {
	Component  string
	Properties []PropertyResult
	Duration   time.Duration

	Passed bool
}

// FailedProperties filters r.Properties to the failures, in check order.
func (r *VerifyResult) FailedProperties() []PropertyResult {
	var failed []PropertyResult
	for _, pr := range r.Properties {
		if !pr.Passed {
			failed = append(failed, pr)
		}
	}
	return failed
}

// Err joins the errors of every failed property, or returns nil.
func (r *VerifyResult) Err() error {
	var errs []error
	for _, pr := range r.FailedProperties() {
		errs = append(errs, fmt.Errorf("%s: %w", pr.Name, pr.Error))
	}
	return errors.Join(errs...)
}

// PropertyResult is the outcome of one check. Error wraps ErrPropertyFailed,
// ErrPropertyTimeout or ErrInvalidProperty.
type PropertyResult struct {
	Name     string
	Passed   bool
	Duration time.Duration
	Error    error
}

// -----------------------------------------------------------------------------
// Health Check Result
// -----------------------------------------------------------------------------

// HealthStatus is the outcome of Evaluable.HealthCheck.
type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthHealthy
	HealthUnhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthUnknown:
		return "unknown"
	}
	return "health_status(" + strconv.Itoa(int(h)) + ")"
}

// HealthResult is one row of Registry.HealthCheckAll. Message holds the
// check's error text when unhealthy.
type HealthResult struct {
	Component string
	Status    HealthStatus
	Message   string
	Duration  time.Duration
	Timestamp time.Time
}
