// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package problem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPlan/services/planner/domain"
)

func testDomain(t *testing.T) *domain.Domain {
	t.Helper()
	d, err := domain.New(domain.Definition{
		Name: "boxes",
		Types: []domain.TypeDecl{
			{Name: "location"},
			{Name: "general_loc", Parent: "location"},
			{Name: "box_loc", Parent: "general_loc"},
			{Name: "hbox_loc", Parent: "general_loc"},
			{Name: "box"},
		},
		Predicates: []domain.PredicateSignature{
			{Name: "on", Params: []domain.Parameter{{Name: "?b", Type: "box"}, {Name: "?l", Type: "location"}}},
			{Name: "placed", Params: []domain.Parameter{{Name: "?b", Type: "box"}, {Name: "?l", Type: "box_loc"}}},
		},
	})
	require.NoError(t, err)
	return d
}

func testObjects() []Object {
	return []Object{
		{Name: "l0", Type: "box_loc"},
		{Name: "l1", Type: "box_loc"},
		{Name: "l6", Type: "hbox_loc"},
		{Name: "l7", Type: "hbox_loc"},
		{Name: "else", Type: "location"},
		{Name: "b0", Type: "box"},
	}
}

func TestCatalog_ObjectsOfType(t *testing.T) {
	d := testDomain(t)
	c, err := NewCatalog(d.Types(), testObjects())
	require.NoError(t, err)

	names := func(objs []Object) []string {
		var out []string
		for _, o := range objs {
			out = append(out, o.Name)
		}
		return out
	}

	got, err := c.ObjectsOfType("general_loc")
	require.NoError(t, err)
	assert.Equal(t, []string{"l0", "l1", "l6", "l7"}, names(got))

	got, err = c.ObjectsOfType("location")
	require.NoError(t, err)
	assert.Equal(t, []string{"l0", "l1", "l6", "l7", "else"}, names(got))

	got, err = c.ObjectsOfType("box_loc")
	require.NoError(t, err)
	assert.Equal(t, []string{"l0", "l1"}, names(got))

	_, err = c.ObjectsOfType("crate")
	assert.ErrorIs(t, err, domain.ErrUnknownType)
}

func TestCatalog_Check(t *testing.T) {
	d := testDomain(t)
	c, err := NewCatalog(d.Types(), testObjects())
	require.NoError(t, err)

	assert.NoError(t, c.Check("l0", "box_loc"))
	assert.NoError(t, c.Check("else", "location"))

	err = c.Check("else", "box_loc")
	var uoe *UnknownObjectError
	require.ErrorAs(t, err, &uoe)
	assert.Equal(t, "else", uoe.Object)
	assert.Contains(t, uoe.Reason, "not a box_loc")
	assert.ErrorIs(t, err, ErrUnknownObject)

	assert.ErrorIs(t, c.Check("l9", "location"), ErrUnknownObject)
}

func TestNewCatalog_Rejects(t *testing.T) {
	d := testDomain(t)

	_, err := NewCatalog(d.Types(), []Object{{Name: "a", Type: "box"}, {Name: "a", Type: "box"}})
	assert.ErrorIs(t, err, ErrDuplicateObject)

	_, err = NewCatalog(d.Types(), []Object{{Name: "a", Type: "crate"}})
	assert.ErrorIs(t, err, domain.ErrUnknownType)
}

func TestNew(t *testing.T) {
	d := testDomain(t)

	p, err := New(d, Definition{
		Name:    "two-on-else",
		Objects: testObjects(),
		Init:    []domain.Literal{domain.Pos("on", "b0", "else")},
		Goal:    []domain.Literal{domain.Pos("placed", "b0", "l0"), domain.Neg("on", "b0", "else")},
	})
	require.NoError(t, err)
	assert.Equal(t, "two-on-else", p.Name())
	assert.Len(t, p.Init(), 1)
	assert.Len(t, p.Goal(), 2)
	assert.Equal(t, 6, p.Catalog().Len())
}

func TestNew_Rejects(t *testing.T) {
	d := testDomain(t)
	tests := []struct {
		name string
		init []domain.Literal
		goal []domain.Literal
		want error
	}{
		{"undeclared object", []domain.Literal{domain.Pos("on", "b9", "l0")}, nil, ErrUnknownObject},
		{"object of wrong type", nil, []domain.Literal{domain.Pos("placed", "b0", "else")}, ErrUnknownObject},
		{"unknown predicate", []domain.Literal{domain.Pos("ready", "l0")}, nil, domain.ErrUnknownPredicate},
		{"arity", []domain.Literal{domain.Pos("on", "b0")}, nil, domain.ErrArityMismatch},
		{"negated init", []domain.Literal{domain.Neg("on", "b0", "l0")}, nil, ErrInvalidFact},
		{"variable in goal", nil, []domain.Literal{domain.Pos("on", "?b", "l0")}, ErrInvalidFact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(d, Definition{Name: "bad", Objects: testObjects(), Init: tt.init, Goal: tt.goal})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProblem_WithFacts(t *testing.T) {
	d := testDomain(t)
	p, err := New(d, Definition{Name: "base", Objects: testObjects()})
	require.NoError(t, err)

	q, err := p.WithFacts("variant", []domain.Literal{domain.Pos("on", "b0", "l7")}, []domain.Literal{domain.Pos("on", "b0", "l0")})
	require.NoError(t, err)
	assert.Equal(t, "variant", q.Name())
	assert.Same(t, p.Domain(), q.Domain())
	assert.Len(t, q.Init(), 1)
	assert.Empty(t, p.Init())
}
