// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package diffop

import (
	"slices"
	"strings"

	"github.com/gx-org/hoad/base/fmterr"
	"github.com/gx-org/hoad/base/iter"
	"github.com/gx-org/hoad/graph"
)

// Set is a set of requested derivatives.
//
// Root monomials, derivatives with respect to inputs only, are the
// results computed by backpropagation. Derived monomials are seeded by
// the caller, typically with d(f) = 1 for an output f.
// Each monomial is assigned an interface slot: its index in the
// declaration order.
type Set struct {
	b     *graph.Builder
	ms    []Monomial
	index map[string]int
}

// Declare returns the set of requested derivatives.
// The set needs at least one root monomial and one derived monomial.
func Declare(ms ...Monomial) (*Set, error) {
	s := &Set{
		ms:    slices.Clone(ms),
		index: make(map[string]int, len(ms)),
	}
	var errs fmterr.Errors
	for i, m := range ms {
		errs.Push(fmterr.PrefixWith("monomial %d (%s): ", i, m))
		s.check(&errs, i, m)
		errs.Pop()
	}
	if !errs.Empty() {
		return nil, errs.ToError()
	}
	if len(s.Roots()) == 0 {
		errs.Append(fmterr.Configf("no root monomial: at least one derivative with respect to inputs only is required"))
	}
	if len(s.Derived()) == 0 {
		errs.Append(fmterr.Configf("no derived monomial: at least one derivative with respect to a non-input node is required"))
	}
	if !errs.Empty() {
		return nil, errs.ToError()
	}
	return s, nil
}

func (s *Set) check(errs *fmterr.Errors, i int, m Monomial) {
	if m.IsIdentity() {
		errs.Append(fmterr.Configf("empty monomial"))
		return
	}
	for _, f := range m.fs {
		switch {
		case !f.Node.Valid():
			errs.Append(fmterr.Configf("invalid node"))
			return
		case s.b == nil:
			s.b = f.Node.Builder()
		case s.b != f.Node.Builder():
			errs.Append(fmterr.Configf("node %s has been created by another builder", f.Node))
			return
		}
		if f.Node.IsConstant() {
			errs.Append(fmterr.Configf("cannot differentiate with respect to constant %s", f.Node))
		}
	}
	key := m.Key()
	if prev, ok := s.index[key]; ok {
		errs.Append(fmterr.Configf("already declared as monomial %d", prev))
		return
	}
	s.index[key] = i
}

// Builder returns the builder of the nodes of the monomials.
func (s *Set) Builder() *graph.Builder {
	return s.b
}

// Len returns the number of monomials in the set.
func (s *Set) Len() int {
	return len(s.ms)
}

// Monomial returns the monomial of the i-th slot.
func (s *Set) Monomial(i int) Monomial {
	return s.ms[i]
}

// Monomials returns all the monomials in declaration order.
func (s *Set) Monomials() []Monomial {
	return slices.Clone(s.ms)
}

// Index returns the interface slot of a monomial.
func (s *Set) Index(m Monomial) (int, bool) {
	i, ok := s.index[m.Key()]
	if !ok || !s.ms[i].Equal(m) {
		return -1, false
	}
	return i, true
}

// Roots returns the root monomials.
func (s *Set) Roots() []Monomial {
	return slices.Collect(iter.Filter(Monomial.IsRoot, s.ms))
}

// Derived returns the derived monomials.
func (s *Set) Derived() []Monomial {
	return slices.Collect(iter.Filter(func(m Monomial) bool {
		return !m.IsRoot()
	}, s.ms))
}

// MaxOrder returns the maximum total order of the root monomials.
func (s *Set) MaxOrder() int {
	order := 0
	for _, m := range s.Roots() {
		order = max(order, m.Order())
	}
	return order
}

// String representation of the set.
func (s *Set) String() string {
	ss := make([]string, len(s.ms))
	for i, m := range s.ms {
		ss[i] = m.String()
	}
	return "{" + strings.Join(ss, ", ") + "}"
}
