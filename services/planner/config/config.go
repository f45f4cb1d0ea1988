// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads planner configuration from a file and the
// environment.
//
// Priority: environment > config file > defaults. Files are parsed as YAML
// first and JSON second. Environment variables use the PLANNER_ prefix.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianPlan/services/planner/ground"
	"github.com/AleutianAI/AleutianPlan/services/planner/search"
	"github.com/AleutianAI/AleutianPlan/services/planner/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid planner config")

var validate = validator.New()

// Config is the full planner configuration.
type Config struct {
	// Grounding bounds the grounder.
	Grounding GroundingConfig `json:"grounding" yaml:"grounding"`

	// Search selects the strategy and its limits.
	Search SearchConfig `json:"search" yaml:"search"`

	// Runner controls parallel solving.
	Runner RunnerConfig `json:"runner" yaml:"runner"`

	// Store controls the persisted plan cache.
	Store StoreConfig `json:"store" yaml:"store"`

	// Observability controls logging and telemetry.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// GroundingConfig configures the grounder.
type GroundingConfig struct {
	// MaxGroundings caps the instances of any one predicate or action
	// schema. Zero means unbounded.
	MaxGroundings int `json:"max_groundings" yaml:"max_groundings" validate:"gte=0"`
}

// SearchConfig configures the search engine.
type SearchConfig struct {
	Strategy      string             `json:"strategy" yaml:"strategy" validate:"oneof=bfs uniform_cost"`
	MaxExpansions int                `json:"max_expansions" yaml:"max_expansions" validate:"gte=0"`
	MaxDepth      int                `json:"max_depth" yaml:"max_depth" validate:"gte=0"`
	Timeout       time.Duration      `json:"timeout" yaml:"timeout" validate:"gte=0"`
	Weights       map[string]float64 `json:"weights" yaml:"weights" validate:"dive,keys,required,endkeys,gte=0"`
}

// RunnerConfig configures parallel solving.
type RunnerConfig struct {
	// MaxConcurrency bounds concurrent searches.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" validate:"gte=1,lte=1024"`
}

// StoreConfig configures the plan store.
type StoreConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Path     string `json:"path" yaml:"path" validate:"required_if=Enabled true InMemory false"`
	InMemory bool   `json:"in_memory" yaml:"in_memory"`

	// TTL expires stored plans. Zero keeps them.
	TTL time.Duration `json:"ttl" yaml:"ttl" validate:"gte=0"`
}

// ObservabilityConfig configures logging and telemetry.
type ObservabilityConfig struct {
	LogLevel       string           `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	TracingEnabled bool             `json:"tracing_enabled" yaml:"tracing_enabled"`
	MetricsEnabled bool             `json:"metrics_enabled" yaml:"metrics_enabled"`
	Telemetry      telemetry.Config `json:"telemetry" yaml:"telemetry"`
}

// DefaultConfig returns the defaults: breadth-first search without limits,
// one million groundings per schema, four workers, no store.
func DefaultConfig() Config {
	return Config{
		Grounding: GroundingConfig{
			MaxGroundings: ground.DefaultConfig().MaxGroundings,
		},
		Search: SearchConfig{
			Strategy: string(search.StrategyBFS),
		},
		Runner: RunnerConfig{
			MaxConcurrency: 4,
		},
		Store: StoreConfig{
			Path: "./data/planstore",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			TracingEnabled: true,
			MetricsEnabled: true,
			Telemetry:      telemetry.DefaultConfig(),
		},
	}
}

// Load builds a Config from defaults, the file at path (if any) and the
// environment, then validates it.
//
// Inputs:
//   - path: YAML or JSON file. Empty or missing means defaults only.
//
// Outputs:
//   - Config: The loaded configuration, also returned on validation failure.
//   - error: Non-nil if the file cannot be parsed or validation fails.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("PLANNER_MAX_GROUNDINGS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Grounding.MaxGroundings = i
		}
	}

	if v := os.Getenv("PLANNER_STRATEGY"); v != "" {
		cfg.Search.Strategy = v
	}
	if v := os.Getenv("PLANNER_MAX_EXPANSIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxExpansions = i
		}
	}
	if v := os.Getenv("PLANNER_MAX_DEPTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxDepth = i
		}
	}
	if v := os.Getenv("PLANNER_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.Timeout = d
		}
	}
	// PLANNER_WEIGHTS=transfer=2,grasp=0.5
	if v := os.Getenv("PLANNER_WEIGHTS"); v != "" {
		weights := make(map[string]float64)
		for _, pair := range strings.Split(v, ",") {
			name, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				continue
			}
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				weights[strings.TrimSpace(name)] = f
			}
		}
		cfg.Search.Weights = weights
	}

	if v := os.Getenv("PLANNER_MAX_CONCURRENCY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Runner.MaxConcurrency = i
		}
	}

	if v := os.Getenv("PLANNER_STORE_ENABLED"); v != "" {
		cfg.Store.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PLANNER_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("PLANNER_STORE_IN_MEMORY"); v != "" {
		cfg.Store.InMemory = v == "true" || v == "1"
	}

	if v := os.Getenv("PLANNER_STORE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.TTL = d
		}
	}

	if v := os.Getenv("PLANNER_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("PLANNER_TRACING_ENABLED"); v != "" {
		cfg.Observability.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PLANNER_METRICS_ENABLED"); v != "" {
		cfg.Observability.MetricsEnabled = v == "true" || v == "1"
	}
}

// Validate checks struct tags, then the derived search configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	sc := c.ToSearchConfig()
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ToGroundConfig converts to the grounder's configuration.
func (c Config) ToGroundConfig(logger *slog.Logger) *ground.Config {
	return &ground.Config{
		MaxGroundings: c.Grounding.MaxGroundings,
		Logger:        logger,
	}
}

// ToSearchConfig converts to the search engine's configuration. Logger and
// Metrics are left for the caller.
func (c Config) ToSearchConfig() *search.Config {
	var weights map[string]float64
	if len(c.Search.Weights) > 0 {
		weights = make(map[string]float64, len(c.Search.Weights))
		for k, v := range c.Search.Weights {
			weights[k] = v
		}
	}
	return &search.Config{
		Strategy:      search.Strategy(c.Search.Strategy),
		MaxExpansions: c.Search.MaxExpansions,
		MaxDepth:      c.Search.MaxDepth,
		Timeout:       c.Search.Timeout,
		Weights:       weights,
	}
}

// Level returns the slog level for LogLevel.
func (o ObservabilityConfig) Level() slog.Level {
	switch o.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a JSON logger on stderr at the configured level.
func (o ObservabilityConfig) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: o.Level()}))
}

// TelemetryConfig returns Telemetry with the exporters switched off when
// TracingEnabled or MetricsEnabled is false.
func (o ObservabilityConfig) TelemetryConfig() telemetry.Config {
	tc := o.Telemetry
	if !o.TracingEnabled {
		tc.TraceExporter = telemetry.ExporterNone
	}
	if !o.MetricsEnabled {
		tc.MetricExporter = telemetry.ExporterNone
	}
	return tc
}
