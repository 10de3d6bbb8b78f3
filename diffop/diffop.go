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

// Package diffop implements the algebra of differential operators.
//
// A differential operator is a monomial of derivatives with respect to
// nodes of an expression graph, for example d(S)*d^2(K). Factors are
// stored in reverse evaluation order: the first factor, or head, is the
// factor whose node is evaluated last. Every function of this package
// preserves this order.
package diffop

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/gx-org/hoad/base/combinatorics"
	"github.com/gx-org/hoad/base/iter"
	"github.com/gx-org/hoad/graph"
)

type (
	// Factor of a monomial: a derivative of a given order with respect to a node.
	Factor struct {
		Node  graph.Node
		Order int
	}

	// Monomial is a product of factors.
	// The zero value is the identity.
	Monomial struct {
		fs []Factor
	}
)

// D returns the derivative of the given order with respect to a node.
// Orders less than 1 return the identity.
func D(n graph.Node, order int) Monomial {
	if order < 1 {
		return Monomial{}
	}
	return Monomial{fs: []Factor{{Node: n, Order: order}}}
}

// D1 returns the first order derivative with respect to a node.
func D1(n graph.Node) Monomial {
	return D(n, 1)
}

// New returns the product of a list of factors.
func New(fs ...Factor) Monomial {
	var m Monomial
	for _, f := range fs {
		m = Mul(m, D(f.Node, f.Order))
	}
	return m
}

// Mul returns the product of two monomials.
// Orders of factors with the same node are summed.
func Mul(a, b Monomial) Monomial {
	if len(a.fs) == 0 {
		return b
	}
	if len(b.fs) == 0 {
		return a
	}
	fs := make([]Factor, 0, len(a.fs)+len(b.fs))
	i, j := 0, 0
	for i < len(a.fs) && j < len(b.fs) {
		fa, fb := a.fs[i], b.fs[j]
		switch fb.Node.Compare(fa.Node) {
		case -1:
			fs = append(fs, fa)
			i++
		case 1:
			fs = append(fs, fb)
			j++
		default:
			fs = append(fs, Factor{Node: fa.Node, Order: fa.Order + fb.Order})
			i++
			j++
		}
	}
	fs = append(fs, a.fs[i:]...)
	fs = append(fs, b.fs[j:]...)
	return Monomial{fs: fs}
}

// Factors returns the factors of the monomial in reverse evaluation order.
// The returned slice must not be modified.
func (m Monomial) Factors() []Factor {
	return m.fs
}

// Len returns the number of factors.
func (m Monomial) Len() int {
	return len(m.fs)
}

// IsIdentity returns true if the monomial has no factor.
func (m Monomial) IsIdentity() bool {
	return len(m.fs) == 0
}

// Head returns the factor evaluated last.
// It returns a zero factor for the identity.
func (m Monomial) Head() Factor {
	if len(m.fs) == 0 {
		return Factor{}
	}
	return m.fs[0]
}

// Rest returns the monomial without its head.
func (m Monomial) Rest() Monomial {
	if len(m.fs) == 0 {
		return m
	}
	return Monomial{fs: m.fs[1:]}
}

// Order returns the total order of the monomial.
func (m Monomial) Order() int {
	order := 0
	for _, f := range m.fs {
		order += f.Order
	}
	return order
}

// IsRoot returns true if all the factors are derivatives with respect
// to inputs.
func (m Monomial) IsRoot() bool {
	if len(m.fs) == 0 {
		return false
	}
	for _, f := range m.fs {
		if !f.Node.IsInput() {
			return false
		}
	}
	return true
}

// Multiplicity returns the product of the factorials of the orders.
// It converts a Taylor coefficient into a partial derivative.
func (m Monomial) Multiplicity() float64 {
	r := 1.0
	for _, f := range m.fs {
		r *= combinatorics.Factorial(f.Order)
	}
	return r
}

// Equal returns true if both monomials have the same factors.
func (m Monomial) Equal(o Monomial) bool {
	return slices.Equal(m.fs, o.fs)
}

// Key returns a string uniquely identifying the monomial among
// the monomials of a builder.
func (m Monomial) Key() string {
	var s strings.Builder
	for _, f := range m.fs {
		s.WriteString(strconv.Itoa(f.Node.ID()))
		s.WriteByte(':')
		s.WriteString(strconv.Itoa(f.Order))
		s.WriteByte(';')
	}
	return s.String()
}

// String returns a human readable representation, factors in
// evaluation order.
func (m Monomial) String() string {
	if len(m.fs) == 0 {
		return "1"
	}
	ss := make([]string, len(m.fs))
	for i, f := range m.fs {
		s := "d(" + f.Node.String() + ")"
		if f.Order > 1 {
			s = "d^" + strconv.Itoa(f.Order) + "(" + f.Node.String() + ")"
		}
		ss[len(m.fs)-1-i] = s
	}
	return strings.Join(ss, "*")
}

// Compare two monomials in canonical order.
// Monomials are compared factor by factor: a factor on a node evaluated
// later comes first, then a factor with a higher order comes first,
// then a shorter monomial comes first.
func Compare(a, b Monomial) int {
	for i := range min(len(a.fs), len(b.fs)) {
		fa, fb := a.fs[i], b.fs[i]
		if c := fb.Node.Compare(fa.Node); c != 0 {
			return c
		}
		if c := cmp.Compare(fb.Order, fa.Order); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a.fs), len(b.fs))
}

// Less returns true if a comes before b in canonical order.
func Less(a, b Monomial) bool {
	return Compare(a, b) < 0
}

// MergeSorted merges two lists of monomials sorted in canonical order.
// Monomials present in both lists appear once in the result.
func MergeSorted(a, b []Monomial) []Monomial {
	return iter.MergeSorted(a, b, Compare, nil)
}
