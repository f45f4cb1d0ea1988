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
	"fmt"

	"github.com/AleutianAI/AleutianPlan/services/planner/domain"
)

// Definition is the parsed form of a problem description.
//
// Init lists the facts that hold initially; everything else is false.
// Goal is a conjunction of ground literals.
type Definition struct {
	Name    string           `json:"name" yaml:"name"`
	Objects []Object         `json:"objects" yaml:"objects"`
	Init    []domain.Literal `json:"init" yaml:"init"`
	Goal    []domain.Literal `json:"goal" yaml:"goal"`
}

// Problem is a validated problem instance bound to its domain.
//
// Thread Safety: Immutable after New returns; safe for concurrent use.
type Problem struct {
	name    string
	domain  *domain.Domain
	catalog *Catalog
	init    []domain.Literal
	goal    []domain.Literal
}

// New validates a problem against its domain.
//
// Description:
//
//	Builds the object catalog and checks every initial fact and goal
//	literal: the predicate must be declared with matching arity and every
//	argument must be a declared object whose type fits the slot. Initial
//	facts must be positive. Problems referencing undeclared symbols are
//	rejected outright.
//
// Inputs:
//   - dom: The validated domain.
//   - def: The parsed problem.
//
// Outputs:
//   - *Problem: The validated problem.
//   - error: *UnknownObjectError, *domain.UnknownTypeError,
//     domain.ErrUnknownPredicate, domain.ErrArityMismatch or ErrInvalidFact.
func New(dom *domain.Domain, def Definition) (*Problem, error) {
	if dom == nil {
		return nil, fmt.Errorf("problem %s: nil domain", def.Name)
	}
	catalog, err := NewCatalog(dom.Types(), def.Objects)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", def.Name, err)
	}

	p := &Problem{
		name:    def.Name,
		domain:  dom,
		catalog: catalog,
	}

	for _, lit := range def.Init {
		if lit.Negated {
			return nil, fmt.Errorf("problem %s: init %s: %w: initial facts are positive", def.Name, lit, ErrInvalidFact)
		}
		if err := p.CheckLiteral(lit); err != nil {
			return nil, fmt.Errorf("problem %s: init %s: %w", def.Name, lit, err)
		}
		p.init = append(p.init, cloneLiteral(lit))
	}
	for _, lit := range def.Goal {
		if err := p.CheckLiteral(lit); err != nil {
			return nil, fmt.Errorf("problem %s: goal %s: %w", def.Name, lit, err)
		}
		p.goal = append(p.goal, cloneLiteral(lit))
	}
	return p, nil
}

// CheckLiteral verifies a ground literal against the domain and catalog.
func (p *Problem) CheckLiteral(lit domain.Literal) error {
	sig, ok := p.domain.Predicate(lit.Predicate)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPredicate, lit.Predicate)
	}
	if len(lit.Args) != sig.Arity() {
		return fmt.Errorf("%w: %d args, %s takes %d", domain.ErrArityMismatch, len(lit.Args), sig.Name, sig.Arity())
	}
	for i, arg := range lit.Args {
		if domain.IsVariable(arg) {
			return fmt.Errorf("%w: variable %s in ground literal", ErrInvalidFact, arg)
		}
		if err := p.catalog.Check(arg, sig.Params[i].Type); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the problem name.
func (p *Problem) Name() string {
	return p.name
}

// Domain returns the domain the problem was validated against.
func (p *Problem) Domain() *domain.Domain {
	return p.domain
}

// Catalog returns the object catalog.
func (p *Problem) Catalog() *Catalog {
	return p.catalog
}

// Init returns the initial facts in declaration order.
func (p *Problem) Init() []domain.Literal {
	return cloneLiterals(p.init)
}

// Goal returns the goal conjunction.
func (p *Problem) Goal() []domain.Literal {
	return cloneLiterals(p.goal)
}

// WithFacts returns a problem sharing this one's domain and catalog but
// with different initial facts and goal.
//
// Description:
//
//	Supports running several searches over one grounded universe with
//	different initial/goal facts.
func (p *Problem) WithFacts(name string, init, goal []domain.Literal) (*Problem, error) {
	return New(p.domain, Definition{
		Name:    name,
		Objects: p.catalog.Objects(),
		Init:    init,
		Goal:    goal,
	})
}

func cloneLiteral(l domain.Literal) domain.Literal {
	l.Args = append([]string(nil), l.Args...)
	return l
}

func cloneLiterals(lits []domain.Literal) []domain.Literal {
	out := make([]domain.Literal, len(lits))
	for i, l := range lits {
		out[i] = cloneLiteral(l)
	}
	return out
}
