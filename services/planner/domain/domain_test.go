// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func locationTypes() []TypeDecl {
	return []TypeDecl{
		{Name: "location"},
		{Name: "general_loc", Parent: "location"},
		{Name: "box_loc", Parent: "general_loc"},
		{Name: "hbox_loc", Parent: "general_loc"},
		{Name: "box"},
	}
}

func TestNewHierarchy(t *testing.T) {
	h, err := NewHierarchy(locationTypes())
	require.NoError(t, err)

	tests := []struct {
		child, ancestor string
		want            bool
	}{
		{"box_loc", "box_loc", true},
		{"box_loc", "general_loc", true},
		{"box_loc", "location", true},
		{"box_loc", RootType, true},
		{"general_loc", "box_loc", false},
		{"hbox_loc", "box_loc", false},
		{"box", "location", false},
	}
	for _, tt := range tests {
		t.Run(tt.child+"_"+tt.ancestor, func(t *testing.T) {
			got, err := h.IsSubtype(tt.child, tt.ancestor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	chain, err := h.Ancestors("box_loc")
	require.NoError(t, err)
	assert.Equal(t, []string{"box_loc", "general_loc", "location", RootType}, chain)
}

func TestHierarchy_UnknownType(t *testing.T) {
	h, err := NewHierarchy(locationTypes())
	require.NoError(t, err)

	_, err = h.IsSubtype("crate", "location")
	var ute *UnknownTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "crate", ute.Type)
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = h.IsSubtype("box", "crate")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestNewHierarchy_Rejects(t *testing.T) {
	t.Run("multiple parents", func(t *testing.T) {
		decls := append(locationTypes(), TypeDecl{Name: "box_loc", Parent: "location"})
		_, err := NewHierarchy(decls)
		assert.ErrorIs(t, err, ErrSchema)
		assert.ErrorIs(t, err, ErrMultipleParents)
	})

	t.Run("repeated identical declaration is accepted", func(t *testing.T) {
		decls := append(locationTypes(), TypeDecl{Name: "box_loc", Parent: "general_loc"})
		_, err := NewHierarchy(decls)
		assert.NoError(t, err)
	})

	t.Run("undeclared parent", func(t *testing.T) {
		_, err := NewHierarchy([]TypeDecl{{Name: "box_loc", Parent: "nowhere"}})
		assert.ErrorIs(t, err, ErrSchema)
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := NewHierarchy([]TypeDecl{
			{Name: "a", Parent: "b"},
			{Name: "b", Parent: "c"},
			{Name: "c", Parent: "a"},
		})
		assert.ErrorIs(t, err, ErrTypeCycle)
	})

	t.Run("self parent", func(t *testing.T) {
		_, err := NewHierarchy([]TypeDecl{{Name: "a", Parent: "a"}})
		assert.ErrorIs(t, err, ErrTypeCycle)
	})
}

func validDefinition() Definition {
	return Definition{
		Name:  "boxes",
		Types: locationTypes(),
		Predicates: []PredicateSignature{
			{Name: "on", Params: []Parameter{{"?b", "box"}, {"?l", "location"}}},
			{Name: "ready", Params: []Parameter{{"?l", "location"}}},
			{Name: "holding", Params: []Parameter{{"?b", "box"}, {"?l", "general_loc"}}},
		},
		Actions: []ActionSchema{
			{
				Name:         "grasp",
				Params:       []Parameter{{"?b", "box"}, {"?l", "general_loc"}},
				Precondition: []Literal{Pos("on", "?b", "?l"), Neg("holding", "?b", "?l")},
				Add:          []Literal{Pos("holding", "?b", "?l")},
				Delete:       []Literal{Pos("on", "?b", "?l")},
			},
		},
	}
}

func TestNew(t *testing.T) {
	d, err := New(validDefinition())
	require.NoError(t, err)

	assert.Equal(t, "boxes", d.Name())
	assert.Len(t, d.Predicates(), 3)
	require.Len(t, d.Actions(), 1)

	a, ok := d.Action("grasp")
	require.True(t, ok)
	assert.Len(t, a.Params, 2)

	// Returned schemas are copies.
	a.Params[0].Type = "location"
	again, _ := d.Action("grasp")
	assert.Equal(t, "box", again.Params[0].Type)

	_, ok = d.Predicate("missing")
	assert.False(t, ok)
}

func TestNew_SchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
		want   error
	}{
		{
			name: "unknown predicate",
			mutate: func(d *Definition) {
				d.Actions[0].Add = append(d.Actions[0].Add, Pos("flying", "?b"))
			},
			want: ErrUnknownPredicate,
		},
		{
			name: "arity mismatch",
			mutate: func(d *Definition) {
				d.Actions[0].Precondition[0] = Pos("on", "?b")
			},
			want: ErrArityMismatch,
		},
		{
			name: "unbound parameter",
			mutate: func(d *Definition) {
				d.Actions[0].Delete = []Literal{Pos("ready", "?x")}
			},
			want: ErrUnboundParameter,
		},
		{
			name: "disjoint slot type",
			mutate: func(d *Definition) {
				d.Actions[0].Add = []Literal{Pos("ready", "?b")}
			},
			want: ErrTypeMismatch,
		},
		{
			name: "contradictory precondition",
			mutate: func(d *Definition) {
				d.Actions[0].Precondition = append(d.Actions[0].Precondition, Neg("on", "?b", "?l"))
			},
			want: ErrContradiction,
		},
		{
			name: "add and delete same literal",
			mutate: func(d *Definition) {
				d.Actions[0].Delete = append(d.Actions[0].Delete, Pos("holding", "?b", "?l"))
			},
			want: ErrContradiction,
		},
		{
			name: "duplicate action",
			mutate: func(d *Definition) {
				d.Actions = append(d.Actions, d.Actions[0])
			},
			want: ErrDuplicate,
		},
		{
			name: "unknown parameter type",
			mutate: func(d *Definition) {
				d.Actions[0].Params[0].Type = "crate"
			},
			want: ErrUnknownType,
		},
		{
			name: "negated effect",
			mutate: func(d *Definition) {
				d.Actions[0].Add = []Literal{Neg("ready", "?l")}
			},
			want: ErrSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(&def)
			_, err := New(def)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchema)
			assert.ErrorIs(t, err, tt.want)

			var se *SchemaError
			require.True(t, errors.As(err, &se))
			assert.Contains(t, se.Declaration, "action")
		})
	}
}

func TestLiteralString(t *testing.T) {
	assert.Equal(t, "on(?b,?l)", Pos("on", "?b", "?l").String())
	assert.Equal(t, "not ready(l0)", Neg("ready", "l0").String())
	assert.True(t, IsVariable("?x"))
	assert.False(t, IsVariable("l0"))
}
