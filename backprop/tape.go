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
	"github.com/gx-org/hoad/base/fmterr"
	"github.com/gx-org/hoad/diffop"
	"github.com/gx-org/hoad/graph"
	"github.com/gx-org/hoad/univariate"
)

// Tape holds the values of the requested derivatives and the scratch
// memory of a backpropagation.
//
// A tape is not safe for concurrent use. Goroutines sharing a plan
// need a tape each.
type Tape struct {
	plan *Plan
	// slots holds the interface slots followed by the buffer slots.
	slots []float64
	table []float64
}

// NewTape returns a tape sized for a plan.
func NewTape(p *Plan) *Tape {
	return &Tape{
		plan:  p,
		slots: make([]float64, p.slots()),
		table: make([]float64, p.table),
	}
}

// Plan returns the plan for which the tape has been created.
func (t *Tape) Plan() *Plan {
	return t.plan
}

// Reset sets all the requested derivatives to zero.
func (t *Tape) Reset() {
	clear(t.slots[:t.plan.set.Len()])
}

func (t *Tape) slot(m diffop.Monomial) (int, error) {
	i, ok := t.plan.set.Index(m)
	if !ok {
		return -1, fmterr.Misusef("monomial %s has not been declared in %s", m, t.plan.set)
	}
	return i, nil
}

// Set the value of a requested derivative, typically the seed d(f) = 1
// of an output f.
func (t *Tape) Set(m diffop.Monomial, v float64) error {
	i, err := t.slot(m)
	if err != nil {
		return err
	}
	t.slots[i] = v
	return nil
}

// Get returns the value of a requested derivative as a Taylor coefficient.
func (t *Tape) Get(m diffop.Monomial) (float64, error) {
	i, err := t.slot(m)
	if err != nil {
		return 0, err
	}
	return t.slots[i], nil
}

// Derivative returns the value of a requested derivative as a partial
// derivative, that is the Taylor coefficient multiplied by the
// factorials of the orders of the monomial.
func (t *Tape) Derivative(m diffop.Monomial) (float64, error) {
	v, err := t.Get(m)
	if err != nil {
		return 0, err
	}
	return v * m.Multiplicity(), nil
}

func (t *Tape) check(p *Plan, vals *graph.Values) error {
	if p != t.plan {
		if p.set != t.plan.set {
			return fmterr.Misusef("plan computes %s but the tape has been created for %s", p.set, t.plan.set)
		}
		if p.buffer > t.plan.buffer || p.table > t.plan.table {
			return fmterr.Misusef("plan requires a buffer of %d and a table of %d but the tape has %d and %d", p.buffer, p.table, t.plan.buffer, t.plan.table)
		}
	}
	if vals.Graph() != p.g {
		return fmterr.Misusef("values have not been computed for the graph of the plan")
	}
	if !vals.Evaluated() {
		return fmterr.Misusef("values have not been evaluated since the last input change")
	}
	return nil
}

// Backpropagate executes a plan given the values of the graph nodes.
// Values of the derived monomials set on the tape are propagated and
// accumulated into the root monomials.
func (t *Tape) Backpropagate(p *Plan, vals *graph.Values) error {
	if err := t.check(p, vals); err != nil {
		return err
	}
	slots, table := t.slots, t.table
	table[0] = 1
	for si := range p.steps {
		st := &p.steps[si]
		prepare(table, st, vals)
		for _, tm := range p.terms[st.start:st.end] {
			v := slots[tm.src] * tm.coeff * table[tm.factors[0]] * table[tm.factors[1]] * table[tm.factors[2]]
			if tm.store {
				slots[tm.dst] = v
			} else {
				slots[tm.dst] += v
			}
		}
	}
	return nil
}

func powers(dst []float64, v float64) {
	p := 1.0
	for i := range dst {
		dst[i] = p
		p *= v
	}
}

// prepare computes the values used by the terms of a step.
func prepare(table []float64, st *step, vals *graph.Values) {
	ys := 2 + st.power
	switch st.prep {
	case prepPowers:
		powers(table[1:ys], vals.At(st.x))
		powers(table[ys:ys+st.power+1], vals.At(st.y))
	case prepSeries:
		univariate.NewTable(table[1:], st.series, st.order).Fill(st.fn, vals.At(st.pos), vals.At(st.x))
	case prepDiv:
		y := vals.At(st.y)
		w := 1 / y
		powers(table[1:ys], vals.At(st.x))
		powers(table[ys:ys+st.power+1], w)
		univariate.NewTable(table[st.seriesBase():], st.series, st.order).Fill(univariate.Inv, w, y)
	}
}
