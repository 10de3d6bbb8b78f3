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

package backprop

import (
	"math"
	"slices"

	"github.com/gx-org/hoad/base/combinatorics"
	"github.com/gx-org/hoad/base/fmterr"
	"github.com/gx-org/hoad/base/iter"
	"github.com/gx-org/hoad/diffop"
	"github.com/gx-org/hoad/graph"
	"github.com/gx-org/hoad/univariate"
)

type (
	// filter decides if a monomial needs to be propagated.
	filter interface {
		Included(diffop.Monomial) bool
	}

	// degreeFilter only keeps monomials up to a total order.
	degreeFilter struct {
		maxOrder int
	}

	// pending is a monomial waiting for its head to be propagated.
	pending struct {
		m    diffop.Monomial
		slot int32
	}

	refKind uint8

	// valueRef references a value of the per-step table.
	valueRef struct {
		kind refKind
		p, m int
	}

	planner struct {
		g        *graph.Graph
		filter   filter
		maxOrder int
		numIface int

		pending []pending
		homes   map[string]int32
		used    []bool

		steps  []step
		terms  []term
		inter  []intermediate
		refs   [][3]valueRef
		pruned int
		table  int
	}
)

const (
	refOne refKind = iota
	// refX is a power of the value of the first child.
	refX
	// refY is a power of the value of the second child
	// or, for divisions, of the inverse of the second child.
	refY
	// refSeries is a coefficient of the table of a unary function
	// or, for divisions, of the inverse function.
	refSeries
)

var one = valueRef{kind: refOne}

func (f degreeFilter) Included(m diffop.Monomial) bool {
	return m.Order() <= f.maxOrder
}

func comparePending(a, b pending) int {
	return diffop.Compare(a.m, b.m)
}

func newPlanner(g *graph.Graph, set *diffop.Set, f filter) *planner {
	p := &planner{
		g:        g,
		filter:   f,
		maxOrder: set.MaxOrder(),
		numIface: set.Len(),
		homes:    make(map[string]int32),
		table:    1,
	}
	for i, m := range set.Monomials() {
		p.pending = append(p.pending, pending{m: m, slot: int32(i)})
		p.homes[m.Key()] = int32(i)
	}
	slices.SortFunc(p.pending, comparePending)
	return p
}

// alloc returns the lowest free buffer slot.
func (p *planner) alloc() int32 {
	i := slices.Index(p.used, false)
	if i < 0 {
		i = len(p.used)
		p.used = append(p.used, true)
	}
	p.used[i] = true
	return int32(p.numIface + i)
}

func (p *planner) release(entries []pending) {
	for _, e := range entries {
		delete(p.homes, e.m.Key())
		if buf := int(e.slot) - p.numIface; buf >= 0 {
			p.used[buf] = false
		}
	}
}

func (p *planner) run() error {
	g := p.g
	for pos := g.Len() - 1; pos >= g.NumInputs(); pos-- {
		n := g.Node(pos)
		count := 0
		for count < len(p.pending) && p.pending[count].m.Head().Node == n {
			count++
		}
		if count < len(p.pending) {
			if next, _ := g.Pos(p.pending[count].m.Head().Node); next >= pos {
				return fmterr.Internalf("monomial %s is pending after its head has been propagated", p.pending[count].m)
			}
		}
		if count == 0 {
			continue
		}
		if g.Kind(pos) == graph.Constant {
			return fmterr.Internalf("monomial %s has a constant head", p.pending[0].m)
		}
		heads := p.pending[:count]
		fresh := p.expand(pos, heads)
		p.release(heads)
		slices.SortFunc(fresh, comparePending)
		p.pending = iter.MergeSorted(p.pending[count:], fresh, comparePending, nil)
	}
	for _, e := range p.pending {
		if !e.m.IsRoot() {
			return fmterr.Internalf("monomial %s has not been propagated", e.m)
		}
	}
	return nil
}

// expand replaces the head of each entry by its expansion in terms of
// the children of the node at pos, and returns the monomials which were
// not pending yet.
func (p *planner) expand(pos int, heads []pending) []pending {
	g := p.g
	st := step{pos: pos, fn: g.Func(pos), start: len(p.terms)}
	st.x, st.y = g.Children(pos)
	var fresh []pending
	emit := func(src int32, m diffop.Monomial, coeff float64, refs [3]valueRef) {
		if !p.filter.Included(m) {
			p.pruned++
			return
		}
		key := m.Key()
		dst, ok := p.homes[key]
		if !ok {
			dst = p.alloc()
			p.homes[key] = dst
			fresh = append(fresh, pending{m: m, slot: dst})
			p.inter = append(p.inter, intermediate{m: m, slot: dst, step: len(p.steps)})
		}
		p.terms = append(p.terms, term{src: src, dst: dst, store: !ok, coeff: coeff})
		p.refs = append(p.refs, refs)
		st.use(refs)
	}
	switch g.Kind(pos) {
	case graph.Unary:
		if g.Func(pos).Linear() {
			st.prep = prepNone
		} else {
			st.prep = prepSeries
		}
	case graph.Binary:
		switch g.Op(pos) {
		case graph.Add, graph.Sub:
			st.prep = prepNone
		case graph.Mul:
			st.prep = prepPowers
		case graph.Div:
			st.prep = prepDiv
		}
	}
	for _, h := range heads {
		n := h.m.Head().Order
		rest := h.m.Rest()
		budget := p.maxOrder - rest.Order()
		p.rule(pos, n, budget, func(m diffop.Monomial, coeff float64, refs [3]valueRef) {
			emit(h.slot, diffop.Mul(m, rest), coeff, refs)
		})
	}
	st.end = len(p.terms)
	if st.end == st.start {
		return fresh
	}
	for i := st.start; i < st.end; i++ {
		for j, ref := range p.refs[i] {
			p.terms[i].factors[j] = st.index(ref)
		}
	}
	p.table = max(p.table, st.tableSize())
	p.steps = append(p.steps, st)
	return fresh
}

type emitFunc func(m diffop.Monomial, coeff float64, refs [3]valueRef)

// rule expands d^n(N) for the node N at pos. Only monomials with a total
// order not greater than budget are emitted.
func (p *planner) rule(pos, n, budget int, emit emitFunc) {
	g := p.g
	x, y := g.Children(pos)
	xn := g.Node(x)
	xConst := g.Kind(x) == graph.Constant
	var yn graph.Node
	yConst := false
	if y >= 0 {
		yn = g.Node(y)
		yConst = g.Kind(y) == graph.Constant
	}
	switch g.Kind(pos) {
	case graph.Unary:
		if fn := g.Func(pos); fn.Linear() {
			var slope [1]float64
			univariate.Derivatives(fn, fn.Eval(0), 0, slope[:])
			emit(diffop.D(xn, n), math.Pow(slope[0], float64(n)), [3]valueRef{one, one, one})
			return
		}
		for m := n; m <= budget; m++ {
			emit(diffop.D(xn, m), 1, [3]valueRef{{kind: refSeries, p: n, m: m}, one, one})
		}
	case graph.Binary:
		switch op := g.Op(pos); op {
		case graph.Add, graph.Sub:
			addRule(op == graph.Sub, n, xn, yn, xConst, yConst, emit)
		case graph.Mul:
			mulRule(n, budget, xn, yn, xConst, yConst, emit)
		case graph.Div:
			divRule(n, budget, xn, yn, xConst, yConst, emit)
		}
	}
}

// addRule expands (eps_x +/- eps_y)^n.
func addRule(sub bool, n int, xn, yn graph.Node, xConst, yConst bool, emit emitFunc) {
	for _, ab := range combinatorics.Compositions2(n) {
		a, b := ab[0], ab[1]
		if (a > 0 && xConst) || (b > 0 && yConst) {
			continue
		}
		coeff := combinatorics.Multinomial(a, b)
		if sub && b%2 == 1 {
			coeff = -coeff
		}
		emit(diffop.Mul(diffop.D(xn, a), diffop.D(yn, b)), coeff, [3]valueRef{one, one, one})
	}
}

// mulRule expands (y eps_x + x eps_y + eps_x eps_y)^n.
func mulRule(n, budget int, xn, yn graph.Node, xConst, yConst bool, emit emitFunc) {
	switch {
	case xConst:
		emit(diffop.D(yn, n), 1, [3]valueRef{{kind: refX, p: n}, one, one})
		return
	case yConst:
		emit(diffop.D(xn, n), 1, [3]valueRef{{kind: refY, p: n}, one, one})
		return
	}
	for _, cab := range combinatorics.TrinomialsBounded(n, budget) {
		c, a, b := cab[0], cab[1], cab[2]
		emit(
			diffop.Mul(diffop.D(xn, a+c), diffop.D(yn, b+c)),
			combinatorics.Multinomial(c, a, b),
			[3]valueRef{{kind: refY, p: a}, {kind: refX, p: b}, one},
		)
	}
}

// divRule expands (w eps_x + x eps_w + eps_x eps_w)^n where w = 1/y and
// eps_w^q is expanded in powers of eps_y with the table of the inverse.
func divRule(n, budget int, xn, yn graph.Node, xConst, yConst bool, emit emitFunc) {
	switch {
	case yConst:
		emit(diffop.D(xn, n), 1, [3]valueRef{{kind: refY, p: n}, one, one})
		return
	case xConst:
		for m := n; m <= budget; m++ {
			emit(diffop.D(yn, m), 1, [3]valueRef{{kind: refX, p: n}, {kind: refSeries, p: n, m: m}, one})
		}
		return
	}
	for _, cab := range combinatorics.TrinomialsBounded(n, budget) {
		c, a, b := cab[0], cab[1], cab[2]
		coeff := combinatorics.Multinomial(c, a, b)
		q := b + c
		if q == 0 {
			emit(diffop.D(xn, a), coeff, [3]valueRef{{kind: refY, p: a}, one, one})
			continue
		}
		dx := diffop.D(xn, a+c)
		for m := q; m <= budget-(a+c); m++ {
			emit(
				diffop.Mul(dx, diffop.D(yn, m)),
				coeff,
				[3]valueRef{{kind: refY, p: a}, {kind: refX, p: b}, {kind: refSeries, p: q, m: m}},
			)
		}
	}
}
