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
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Registry holds the evaluable components of one planner instance.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Evaluable
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]Evaluable),
	}
}

// Register adds a component under its Name().
//
// Outputs:
//   - error: ErrNilComponent if component is nil, ErrAlreadyRegistered if
//     the name is taken.
func (r *Registry) Register(component Evaluable) error {
	if component == nil {
		return ErrNilComponent
	}
	name := component.Name()
	for _, m := range component.Metrics() {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.components[name] = component
	return nil
}

// Get returns the component registered as name.
func (r *Registry) Get(name string) (Evaluable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// List returns all registered component names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verify checks the properties of the named component against one
// input/output pair. With tags, only properties carrying one of them run.
//
// Outputs:
//   - *VerifyResult: Per-property results.
//   - error: ErrNotFound if no component has that name.
func (r *Registry) Verify(name string, input, output any, tags ...string) (*VerifyResult, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return CheckProperties(c, input, output, tags...), nil
}

// HealthCheckAll checks every registered component, at most concurrency
// at a time (default 10), and returns one result per component in name
// order. Components not started before ctx is done report HealthUnknown.
func (r *Registry) HealthCheckAll(ctx context.Context, concurrency int) []HealthResult {
	if concurrency <= 0 {
		concurrency = 10
	}
	names := r.List()
	results := make([]HealthResult, len(names))

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, name := range names {
		c, ok := r.Get(name)
		if !ok {
			results[i] = HealthResult{Component: name, Status: HealthUnknown, Message: "unregistered during check"}
			continue
		}
		g.Go(func() error {
			results[i] = checkHealth(ctx, name, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func checkHealth(ctx context.Context, name string, c Evaluable) HealthResult {
	res := HealthResult{Component: name, Timestamp: time.Now()}
	if ctx.Err() != nil {
		res.Status = HealthUnknown
		res.Message = "context cancelled"
		return res
	}
	err := c.HealthCheck(ctx)
	res.Duration = time.Since(res.Timestamp)
	if err != nil {
		res.Status = HealthUnhealthy
		res.Message = err.Error()
		return res
	}
	res.Status = HealthHealthy
	res.Message = "OK"
	return res
}

// CheckProperties runs the properties of c against input/output.
//
// Description:
//
//	When tags are given, properties without any of them are skipped.
//	Malformed properties are reported as failures with ErrInvalidProperty.
//	A property with a Timeout whose check does not return in time fails
//	with ErrPropertyTimeout; the check goroutine is left to finish.
func CheckProperties(c Evaluable, input, output any, tags ...string) *VerifyResult {
	start := time.Now()
	res := &VerifyResult{Component: c.Name(), Passed: true}
	for _, p := range c.Properties() {
		if len(tags) > 0 && !slices.ContainsFunc(tags, p.HasTag) {
			continue
		}
		pr := checkOne(p, input, output)
		if !pr.Passed {
			res.Passed = false
		}
		res.Properties = append(res.Properties, pr)
	}
	res.Duration = time.Since(start)
	return res
}

func checkOne(p Property, input, output any) PropertyResult {
	start := time.Now()
	pr := PropertyResult{Name: p.Name}
	if err := p.Validate(); err != nil {
		pr.Error = err
		pr.Duration = time.Since(start)
		return pr
	}

	var err error
	if p.Timeout <= 0 {
		err = p.Check(input, output)
	} else {
		done := make(chan error, 1)
		go func() { done <- p.Check(input, output) }()
		select {
		case err = <-done:
		case <-time.After(p.Timeout):
			err = fmt.Errorf("%w after %v", ErrPropertyTimeout, p.Timeout)
		}
	}
	pr.Duration = time.Since(start)
	if err != nil {
		pr.Error = fmt.Errorf("%w: %w", ErrPropertyFailed, err)
		return pr
	}
	pr.Passed = true
	return pr
}
