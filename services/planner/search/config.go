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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/AleutianAI/AleutianPlan/services/planner/telemetry"
)

var (
	// ErrInvalidConfig is returned for an unusable search configuration.
	ErrInvalidConfig = errors.New("invalid search config")

	// ErrInvalidInput is returned for a task without a universe.
	ErrInvalidInput = errors.New("invalid search input")
)

// Strategy selects the frontier discipline.
type Strategy string

const (
	// StrategyBFS explores by plan length and returns a shortest plan.
	StrategyBFS Strategy = "bfs"

	// StrategyUniformCost explores by accumulated action weight and
	// returns a cheapest plan.
	StrategyUniformCost Strategy = "uniform_cost"
)

// Config configures a search Engine.
type Config struct {
	// Strategy defaults to StrategyBFS when empty.
	Strategy Strategy

	// MaxExpansions aborts with StatusLimitExceeded after this many
	// expansions. Zero means unbounded.
	MaxExpansions int

	// MaxDepth prunes states at this plan length; exhausting the frontier
	// with pruned states yields StatusLimitExceeded. Zero means unbounded.
	MaxDepth int

	// Timeout aborts with StatusLimitExceeded when exceeded. Zero means none.
	Timeout time.Duration

	// Weights maps action schema names to step costs. Missing names weigh 1.
	// BFS ignores weights for ordering but reports Result.Cost with them.
	Weights map[string]float64

	// RecordExpansions keeps the expansion order in Result.Expansions.
	RecordExpansions bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *telemetry.Metrics
}

// DefaultConfig returns an unbounded breadth-first configuration.
func DefaultConfig() *Config {
	return &Config{
		Strategy: StrategyBFS,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Strategy {
	case "", StrategyBFS, StrategyUniformCost:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	if c.MaxExpansions < 0 {
		return fmt.Errorf("%w: max expansions %d", ErrInvalidConfig, c.MaxExpansions)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max depth %d", ErrInvalidConfig, c.MaxDepth)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout %v", ErrInvalidConfig, c.Timeout)
	}
	for name, w := range c.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight of %s is %v", ErrInvalidConfig, name, w)
		}
	}
	return nil
}

// Weight returns the step cost of an action schema.
func (c *Config) Weight(schema string) float64 {
	if w, ok := c.Weights[schema]; ok {
		return w
	}
	return 1
}

// Fingerprint hashes the settings that change which plan is returned:
// strategy and weights. Limits only decide whether one is found.
func (c *Config) Fingerprint() uint64 {
	d := xxhash.New()
	strategy := c.Strategy
	if strategy == "" {
		strategy = StrategyBFS
	}
	_, _ = d.WriteString(string(strategy))

	names := make([]string, 0, len(c.Weights))
	for name := range c.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(d, "|%s=%g", name, c.Weights[name])
	}
	return d.Sum64()
}
