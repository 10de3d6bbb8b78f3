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

// Package requirement analyses which derivatives of a graph can
// contribute to a set of requested derivatives.
//
// For every node N, the analyzer computes:
//   - the maximum order with which N depends on each input, saturated
//     to multiindex.Inf when the dependency goes through a function
//     which is not a polynomial;
//   - the lattice of N: the minimal orders, per input, of the terms in
//     the expansion of the perturbation of N in terms of the
//     perturbations of the inputs.
//
// A monomial of perturbations can only contribute to a requested root
// r if r lies between a lower bound of the monomial and its upper bound.
package requirement

import (
	"github.com/gx-org/hoad/base/fmterr"
	"github.com/gx-org/hoad/diffop"
	"github.com/gx-org/hoad/graph"
	"github.com/gx-org/hoad/internal/multiindex"
)

// Analyzer decides if a monomial is required to compute
// a set of requested root monomials.
type Analyzer struct {
	g        *graph.Graph
	dims     int
	maxOrder []multiindex.Index
	lattice  []multiindex.Set
	roots    []multiindex.Index
	maxTotal int
	cache    map[string]bool
}

// New returns an analyzer for a set of requested root monomials.
// All roots must be derivatives with respect to inputs of the graph.
func New(g *graph.Graph, roots []diffop.Monomial) (*Analyzer, error) {
	a := &Analyzer{
		g:        g,
		dims:     g.NumInputs(),
		maxOrder: make([]multiindex.Index, g.Len()),
		lattice:  make([]multiindex.Set, g.Len()),
		cache:    make(map[string]bool),
	}
	var errs fmterr.Errors
	for _, root := range roots {
		idx, err := a.rootIndex(root)
		if err != nil {
			errs.Append(err)
			continue
		}
		a.roots = append(a.roots, idx)
		a.maxTotal = max(a.maxTotal, root.Order())
	}
	if !errs.Empty() {
		return nil, errs.ToError()
	}
	for pos := range g.Len() {
		a.maxOrder[pos], a.lattice[pos] = a.analyse(pos)
	}
	return a, nil
}

func (a *Analyzer) rootIndex(root diffop.Monomial) (multiindex.Index, error) {
	idx := make(multiindex.Index, a.dims)
	for _, f := range root.Factors() {
		pos, ok := a.g.Pos(f.Node)
		if !ok {
			return nil, fmterr.Configf("root monomial %s: node %s is not in the graph", root, f.Node)
		}
		if pos >= a.dims {
			return nil, fmterr.Configf("root monomial %s: node %s is not an input", root, f.Node)
		}
		idx[pos] = f.Order
	}
	return idx, nil
}

// unbounded returns the index with Inf for each input on which idx depends.
func unbounded(idx multiindex.Index) multiindex.Index {
	r := make(multiindex.Index, len(idx))
	for i, v := range idx {
		if v > 0 {
			r[i] = multiindex.Inf
		}
	}
	return r
}

func (a *Analyzer) analyse(pos int) (multiindex.Index, multiindex.Set) {
	g := a.g
	x, y := g.Children(pos)
	switch g.Kind(pos) {
	case graph.Input:
		unit := multiindex.Unit(a.dims, pos)
		return unit, multiindex.Set{unit}
	case graph.Constant:
		return make(multiindex.Index, a.dims), nil
	case graph.Unary:
		if g.Func(pos).Linear() {
			return a.maxOrder[x], a.lattice[x]
		}
		return unbounded(a.maxOrder[x]), a.lattice[x]
	case graph.Binary:
		var order multiindex.Index
		switch g.Op(pos) {
		case graph.Add, graph.Sub:
			order = multiindex.Max(a.maxOrder[x], a.maxOrder[y])
		case graph.Mul:
			order = multiindex.Add(a.maxOrder[x], a.maxOrder[y])
		case graph.Div:
			order = multiindex.Add(a.maxOrder[x], unbounded(a.maxOrder[y]))
		}
		return order, multiindex.Union(a.lattice[x], a.lattice[y])
	}
	return make(multiindex.Index, a.dims), nil
}

// MaxTotalOrder returns the maximum total order of the requested roots.
func (a *Analyzer) MaxTotalOrder() int {
	return a.maxTotal
}

// MaxOrder returns, for each input, the maximum order of the dependency
// of a node on that input. It returns nil if the node is not in the graph.
func (a *Analyzer) MaxOrder(n graph.Node) multiindex.Index {
	pos, ok := a.g.Pos(n)
	if !ok {
		return nil
	}
	return a.maxOrder[pos]
}

// Lattice returns the minimal orders of the perturbation of a node.
// It returns nil if the node is not in the graph.
func (a *Analyzer) Lattice(n graph.Node) multiindex.Set {
	pos, ok := a.g.Pos(n)
	if !ok {
		return nil
	}
	return a.lattice[pos]
}

// Included returns true if a monomial may contribute to a requested root.
// Results are cached.
func (a *Analyzer) Included(m diffop.Monomial) bool {
	key := m.Key()
	if r, ok := a.cache[key]; ok {
		return r
	}
	r := a.included(m)
	a.cache[key] = r
	return r
}

func (a *Analyzer) included(m diffop.Monomial) bool {
	if m.IsIdentity() || m.Order() > a.maxTotal {
		return false
	}
	fs := m.Factors()
	pos := make([]int, len(fs))
	upper := make(multiindex.Index, a.dims)
	for i, f := range fs {
		p, ok := a.g.Pos(f.Node)
		if !ok {
			return false
		}
		pos[i] = p
		for in := range upper {
			upper[in] = multiindex.AddSat(upper[in], multiindex.MulSat(f.Order, a.maxOrder[p][in]))
		}
	}
	var targets []multiindex.Index
	for _, r := range a.roots {
		if r.LessEq(upper) {
			targets = append(targets, r)
		}
	}
	if len(targets) == 0 {
		return false
	}
	belowTarget := func(idx multiindex.Index) bool {
		for _, r := range targets {
			if idx.LessEq(r) {
				return true
			}
		}
		return false
	}
	lower := multiindex.Set{make(multiindex.Index, a.dims)}
	for i, f := range fs {
		for range f.Order {
			lower = multiindex.Sum(lower, a.lattice[pos[i]], belowTarget)
			if len(lower) == 0 {
				return false
			}
		}
	}
	return true
}
