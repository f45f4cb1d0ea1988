// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPlan/services/planner/search"
	"github.com/AleutianAI/AleutianPlan/services/planner/telemetry"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1_000_000, cfg.Grounding.MaxGroundings)
	assert.Equal(t, "bfs", cfg.Search.Strategy)
	assert.Equal(t, 4, cfg.Runner.MaxConcurrency)
	assert.False(t, cfg.Store.Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Search, cfg.Search)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "planner.yaml", `
grounding:
  max_groundings: 5000
search:
  strategy: uniform_cost
  max_expansions: 200
  max_depth: 12
  timeout: 3s
  weights:
    transfer: 2.5
    grasp: 0
runner:
  max_concurrency: 8
store:
  enabled: true
  in_memory: true
  ttl: 1h
observability:
  log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Grounding.MaxGroundings)
	assert.Equal(t, "uniform_cost", cfg.Search.Strategy)
	assert.Equal(t, 200, cfg.Search.MaxExpansions)
	assert.Equal(t, 12, cfg.Search.MaxDepth)
	assert.Equal(t, 3*time.Second, cfg.Search.Timeout)
	assert.Equal(t, map[string]float64{"transfer": 2.5, "grasp": 0}, cfg.Search.Weights)
	assert.Equal(t, 8, cfg.Runner.MaxConcurrency)
	assert.True(t, cfg.Store.Enabled)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, time.Hour, cfg.Store.TTL)
	assert.Equal(t, slog.LevelDebug, cfg.Observability.Level())

	sc := cfg.ToSearchConfig()
	assert.Equal(t, search.StrategyUniformCost, sc.Strategy)
	assert.Equal(t, 2.5, sc.Weight("transfer"))
	assert.Equal(t, 1.0, sc.Weight("release"))

	gc := cfg.ToGroundConfig(nil)
	assert.Equal(t, 5000, gc.MaxGroundings)
}

func TestLoad_JSONFallback(t *testing.T) {
	path := writeFile(t, "planner.json", `{"search": {"strategy": "bfs", "max_depth": 7}, "runner": {"max_concurrency": 2}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.MaxDepth)
	assert.Equal(t, 2, cfg.Runner.MaxConcurrency)
}

func TestLoad_Unparseable(t *testing.T) {
	path := writeFile(t, "bad.yaml", "search: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "planner.yaml", "search:\n  strategy: bfs\n  max_expansions: 10\n")
	t.Setenv("PLANNER_STRATEGY", "uniform_cost")
	t.Setenv("PLANNER_MAX_EXPANSIONS", "99")
	t.Setenv("PLANNER_SEARCH_TIMEOUT", "250ms")
	t.Setenv("PLANNER_WEIGHTS", "transfer=2, grasp=0.5,broken")
	t.Setenv("PLANNER_MAX_CONCURRENCY", "16")
	t.Setenv("PLANNER_STORE_ENABLED", "1")
	t.Setenv("PLANNER_STORE_IN_MEMORY", "true")
	t.Setenv("PLANNER_STORE_TTL", "90m")
	t.Setenv("PLANNER_LOG_LEVEL", "WARN")
	t.Setenv("PLANNER_TRACING_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "uniform_cost", cfg.Search.Strategy)
	assert.Equal(t, 99, cfg.Search.MaxExpansions)
	assert.Equal(t, 250*time.Millisecond, cfg.Search.Timeout)
	assert.Equal(t, map[string]float64{"transfer": 2, "grasp": 0.5}, cfg.Search.Weights)
	assert.Equal(t, 16, cfg.Runner.MaxConcurrency)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, 90*time.Minute, cfg.Store.TTL)
	assert.Equal(t, "warn", cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.TracingEnabled)
}

func TestObservability_TelemetryConfig(t *testing.T) {
	o := DefaultConfig().Observability
	o.Telemetry.TraceExporter = telemetry.ExporterStdout
	o.Telemetry.MetricExporter = telemetry.ExporterPrometheus

	tc := o.TelemetryConfig()
	assert.Equal(t, telemetry.ExporterStdout, tc.TraceExporter)
	assert.Equal(t, telemetry.ExporterPrometheus, tc.MetricExporter)

	o.TracingEnabled = false
	tc = o.TelemetryConfig()
	assert.Equal(t, telemetry.ExporterNone, tc.TraceExporter)
	assert.Equal(t, telemetry.ExporterPrometheus, tc.MetricExporter)

	o.MetricsEnabled = false
	assert.Equal(t, telemetry.ExporterNone, o.TelemetryConfig().MetricExporter)
	assert.Equal(t, telemetry.ExporterStdout, o.Telemetry.TraceExporter)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Search.Strategy = "astar" }},
		{"negative groundings", func(c *Config) { c.Grounding.MaxGroundings = -1 }},
		{"negative expansions", func(c *Config) { c.Search.MaxExpansions = -5 }},
		{"negative timeout", func(c *Config) { c.Search.Timeout = -time.Second }},
		{"negative store ttl", func(c *Config) { c.Store.TTL = -time.Minute }},
		{"negative weight", func(c *Config) { c.Search.Weights = map[string]float64{"grasp": -1} }},
		{"zero concurrency", func(c *Config) { c.Runner.MaxConcurrency = 0 }},
		{"store without path", func(c *Config) { c.Store.Enabled = true; c.Store.Path = "" }},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := DefaultConfig()
	cfg.Store = StoreConfig{Enabled: true, InMemory: true}
	assert.NoError(t, cfg.Validate())
}
