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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComponent struct {
	name   string
	props  []Property
	health error
}

func (f *fakeComponent) Name() string                          { return f.name }
func (f *fakeComponent) Properties() []Property                { return f.props }
func (f *fakeComponent) Metrics() []MetricDefinition           { return nil }
func (f *fakeComponent) HealthCheck(ctx context.Context) error { return f.health }

func TestProperty_Validate(t *testing.T) {
	tests := []struct {
		name    string
		prop    Property
		wantErr bool
	}{
		{"valid", Property{Name: "p", Description: "d", Check: func(any, any) error { return nil }}, false},
		{"missing name", Property{Description: "d", Check: func(any, any) error { return nil }}, true},
		{"missing description", Property{Name: "p", Check: func(any, any) error { return nil }}, true},
		{"missing check", Property{Name: "p", Description: "d"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prop.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProperty)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckProperties(t *testing.T) {
	boom := errors.New("boom")
	c := &fakeComponent{
		name: "fake",
		props: []Property{
			{Name: "holds", Description: "always holds", Check: func(any, any) error { return nil }},
			{Name: "fails", Description: "never holds", Check: func(any, any) error { return boom }},
			{
				Name:        "slow",
				Description: "times out",
				Timeout:     10 * time.Millisecond,
				Check: func(any, any) error {
					time.Sleep(200 * time.Millisecond)
					return nil
				},
			},
		},
	}

	res := CheckProperties(c, 1, 2)
	assert.False(t, res.Passed)
	require.Len(t, res.Properties, 3)
	assert.True(t, res.Properties[0].Passed)

	failed := res.FailedProperties()
	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed[0].Error, boom)
	assert.ErrorIs(t, failed[0].Error, ErrPropertyFailed)
	assert.ErrorIs(t, failed[1].Error, ErrPropertyTimeout)
	assert.ErrorIs(t, res.Err(), boom)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeComponent{name: "b"}))
	require.NoError(t, r.Register(&fakeComponent{name: "a", health: errors.New("down")}))
	assert.ErrorIs(t, r.Register(&fakeComponent{name: "a"}), ErrAlreadyRegistered)
	assert.ErrorIs(t, r.Register(nil), ErrNilComponent)

	assert.Equal(t, []string{"a", "b"}, r.List())

	results := r.HealthCheckAll(context.Background(), 0)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Component)
	assert.Equal(t, HealthUnhealthy, results[0].Status)
	assert.Equal(t, HealthHealthy, results[1].Status)

	_, err := r.Verify("missing", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := r.Verify("b", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.NoError(t, res.Err())
}

func TestVerify_Tags(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeComponent{
		name: "tagged",
		props: []Property{
			{Name: "det", Description: "d", Tags: []string{"determinism"}, Check: func(any, any) error { return nil }},
			{Name: "crit", Description: "c", Tags: []string{"critical"}, Check: func(any, any) error { return errors.New("no") }},
		},
	}))

	res, err := r.Verify("tagged", nil, nil, "determinism")
	require.NoError(t, err)
	require.Len(t, res.Properties, 1)
	assert.True(t, res.Passed)

	res, err = r.Verify("tagged", nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Properties, 2)
	assert.False(t, res.Passed)
}

func TestMetricDefinition_Validate(t *testing.T) {
	assert.NoError(t, (&MetricDefinition{Name: "m", Description: "d"}).Validate())
	assert.Error(t, (&MetricDefinition{Description: "d"}).Validate())
	assert.Error(t, (&MetricDefinition{Name: "m", Description: "d", Type: MetricHistogram}).Validate())
	assert.Equal(t, "histogram", MetricHistogram.String())
	assert.Equal(t, "healthy", HealthHealthy.String())
}
