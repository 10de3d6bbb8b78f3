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

// Package backprop propagates derivatives of arbitrary orders through
// an expression graph in reverse evaluation order.
//
// Propagation is split in two phases. NewPlan simulates the propagation
// symbolically for a set of requested derivatives: it expands every
// monomial with respect to the children of its head node, discards the
// monomials which cannot contribute to a requested root, and assigns
// every intermediate monomial to a slot of a scratch buffer. The result
// is a flat program which a Tape executes for given input values,
// without allocating memory.
//
// Values are Taylor coefficients: the value of the monomial
// d^k1(x1)...d^kn(xn) is the partial derivative divided by k1!...kn!.
package backprop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gxfmt "github.com/gx-org/hoad/base/fmt"
	"github.com/gx-org/hoad/base/fmterr"
	"github.com/gx-org/hoad/diffop"
	"github.com/gx-org/hoad/graph"
	"github.com/gx-org/hoad/requirement"
	"github.com/gx-org/hoad/univariate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/gx-org/hoad/backprop")

type (
	prep uint8

	// step propagates the monomials headed by one node.
	step struct {
		pos, x, y int
		fn        univariate.Func
		prep      prep
		// Maximum exponent of the powers of the children values.
		power int
		// Number of rows and maximum exponent of the table.
		series, order int
		// Range of the terms of the step.
		start, end int
	}

	// term computes
	//
	//	slots[dst] (+)= slots[src] * coeff * table[factors[0]] * table[factors[1]] * table[factors[2]]
	//
	// where table holds the values computed for the step, table[0] being 1.
	term struct {
		src, dst int32
		store    bool
		coeff    float64
		factors  [3]int32
	}

	// intermediate is a monomial stored in the scratch buffer.
	intermediate struct {
		m    diffop.Monomial
		slot int32
		// Index of the step storing the first value.
		step int
	}

	// Plan is the program propagating a set of requested derivatives
	// through a graph. A plan is immutable and can be shared between
	// goroutines.
	Plan struct {
		g       *graph.Graph
		set     *diffop.Set
		steps   []step
		terms   []term
		inter   []intermediate
		buffer  int
		table   int
		pruned  int
		pruning bool
	}
)

const (
	// prepNone requires no value: additions, subtractions, negations.
	prepNone prep = iota
	// prepPowers computes the powers of the values of both children.
	prepPowers
	// prepSeries computes the table of a unary function.
	prepSeries
	// prepDiv computes the powers of the numerator, the powers of the
	// inverse of the denominator, and the table of the inverse.
	prepDiv
)

func (p prep) String() string {
	switch p {
	case prepNone:
		return "none"
	case prepPowers:
		return "powers"
	case prepSeries:
		return "series"
	case prepDiv:
		return "div"
	}
	return fmt.Sprintf("prep(%d)", uint8(p))
}

func (st *step) use(refs [3]valueRef) {
	for _, ref := range refs {
		switch ref.kind {
		case refX, refY:
			st.power = max(st.power, ref.p)
		case refSeries:
			st.series = max(st.series, ref.p)
			st.order = max(st.order, ref.m)
		}
	}
}

func (st *step) seriesBase() int {
	if st.prep == prepSeries {
		return 1
	}
	return 3 + 2*st.power
}

func (st *step) index(ref valueRef) int32 {
	switch ref.kind {
	case refX:
		return int32(1 + ref.p)
	case refY:
		return int32(2 + st.power + ref.p)
	case refSeries:
		return int32(st.seriesBase() + univariate.TableIndex(st.order, ref.p, ref.m))
	}
	return 0
}

func (st *step) tableSize() int {
	switch st.prep {
	case prepPowers:
		return 3 + 2*st.power
	case prepSeries, prepDiv:
		return st.seriesBase() + univariate.TableSize(st.series, st.order)
	}
	return 1
}

// NewPlan returns the plan computing the requested derivatives of a graph.
func NewPlan(ctx context.Context, g *graph.Graph, set *diffop.Set, opts ...Option) (_ *Plan, err error) {
	cfg := newConfig(opts)
	ctx, span := tracer.Start(ctx, "backprop.NewPlan", trace.WithAttributes(
		attribute.Int("hoad.graph.nodes", g.Len()),
		attribute.Int("hoad.monomials", set.Len()),
		attribute.Bool("hoad.pruning", cfg.pruning),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	var errs fmterr.Errors
	for i, m := range set.Monomials() {
		for _, f := range m.Factors() {
			if !g.Contains(f.Node) {
				errs.Append(fmterr.Configf("monomial %d (%s): node %s is not in the graph", i, m, f.Node))
			}
		}
	}
	if !errs.Empty() {
		return nil, errs.ToError()
	}
	var f filter = degreeFilter{maxOrder: set.MaxOrder()}
	if cfg.pruning {
		analyzer, err := requirement.New(g, set.Roots())
		if err != nil {
			return nil, err
		}
		f = analyzer
	}
	pl := newPlanner(g, set, f)
	if err := pl.run(); err != nil {
		return nil, err
	}
	p := &Plan{
		g:       g,
		set:     set,
		steps:   pl.steps,
		terms:   pl.terms,
		inter:   pl.inter,
		buffer:  len(pl.used),
		table:   pl.table,
		pruned:  pl.pruned,
		pruning: cfg.pruning,
	}
	span.SetAttributes(
		attribute.Int("hoad.plan.steps", len(p.steps)),
		attribute.Int("hoad.plan.terms", len(p.terms)),
		attribute.Int("hoad.plan.buffer", p.buffer),
	)
	cfg.logger.LogAttrs(ctx, slog.LevelDebug, "backpropagation plan built",
		slog.Int("nodes", g.Len()),
		slog.Int("monomials", set.Len()),
		slog.Int("steps", len(p.steps)),
		slog.Int("terms", len(p.terms)),
		slog.Int("pruned", p.pruned),
		slog.Int("buffer", p.buffer),
		slog.Int("table", p.table),
	)
	return p, nil
}

// Graph returns the graph of the plan.
func (p *Plan) Graph() *graph.Graph {
	return p.g
}

// Set returns the requested derivatives.
func (p *Plan) Set() *diffop.Set {
	return p.set
}

// BufferSize returns the number of slots of the scratch buffer.
func (p *Plan) BufferSize() int {
	return p.buffer
}

// TableSize returns the number of values computed per step.
func (p *Plan) TableSize() int {
	return p.table
}

// NumSteps returns the number of nodes through which derivatives are propagated.
func (p *Plan) NumSteps() int {
	return len(p.steps)
}

// NumTerms returns the number of terms computed by the plan.
func (p *Plan) NumTerms() int {
	return len(p.terms)
}

// Pruned returns the number of terms discarded by the requirement analysis
// or by the order truncation.
func (p *Plan) Pruned() int {
	return p.pruned
}

func (p *Plan) slots() int {
	return p.set.Len() + p.buffer
}

// Validate checks that every index of the program is in range.
func (p *Plan) Validate() error {
	numIface := p.set.Len()
	var errs fmterr.Errors
	for si := range p.steps {
		st := &p.steps[si]
		if st.pos < p.g.NumInputs() || st.pos >= p.g.Len() {
			errs.Append(fmterr.Internalf("step %d: invalid node position %d", si, st.pos))
		}
		size := st.tableSize()
		if size > p.table {
			errs.Append(fmterr.Internalf("step %d: table of size %d exceeds %d", si, size, p.table))
		}
		for ti, tm := range p.terms[st.start:st.end] {
			if tm.src < 0 || int(tm.src) >= p.slots() || tm.dst < 0 || int(tm.dst) >= p.slots() {
				errs.Append(fmterr.Internalf("step %d, term %d: slot out of range: %d -> %d", si, ti, tm.src, tm.dst))
			}
			if tm.store && int(tm.dst) < numIface {
				errs.Append(fmterr.Internalf("step %d, term %d: overwriting interface slot %d", si, ti, tm.dst))
			}
			for _, f := range tm.factors {
				if f < 0 || int(f) >= size {
					errs.Append(fmterr.Internalf("step %d, term %d: table index %d out of range", si, ti, f))
				}
			}
		}
	}
	for _, in := range p.inter {
		if int(in.slot) < numIface || int(in.slot) >= p.slots() {
			errs.Append(fmterr.Internalf("intermediate %s: slot %d is not a buffer slot", in.m, in.slot))
		}
	}
	return errs.ToError()
}

// PeakLive returns the maximum number of intermediate monomials alive
// at the same step. An intermediate monomial is alive from the step
// storing its first value to the step propagating its head or, for
// roots, to the end of the program.
func (p *Plan) PeakLive() int {
	type interval struct{ start, end int }
	intervals := make([]interval, len(p.inter))
	for i, in := range p.inter {
		end := len(p.steps) - 1
		if !in.m.IsRoot() {
			head, _ := p.g.Pos(in.m.Head().Node)
			end = -1
			for si := range p.steps {
				if p.steps[si].pos < head {
					break
				}
				end = si
			}
		}
		intervals[i] = interval{start: in.step, end: end}
	}
	peak := 0
	for si := range p.steps {
		live := 0
		for _, in := range intervals {
			if in.start <= si && si <= in.end {
				live++
			}
		}
		peak = max(peak, live)
	}
	return peak
}

func (p *Plan) slotName(slot int32) string {
	if n := p.set.Len(); int(slot) >= n {
		return fmt.Sprintf("b%d", int(slot)-n)
	}
	return fmt.Sprintf("i%d", slot)
}

// String returns the program of the plan.
func (p *Plan) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "plan: interface=%d buffer=%d table=%d\n", p.set.Len(), p.buffer, p.table)
	for i, m := range p.set.Monomials() {
		fmt.Fprintf(&s, "i%d: %s\n", i, m)
	}
	for si := range p.steps {
		st := &p.steps[si]
		fmt.Fprintf(&s, "step %s (%s power=%d series=%d order=%d):\n", p.g.Node(st.pos), st.prep, st.power, st.series, st.order)
		var body strings.Builder
		for _, tm := range p.terms[st.start:st.end] {
			op := "+="
			if tm.store {
				op = "="
			}
			fmt.Fprintf(&body, "%s %s %s * %g * t%v\n", p.slotName(tm.dst), op, p.slotName(tm.src), tm.coeff, tm.factors)
		}
		s.WriteString(gxfmt.Indent(body.String()))
	}
	return s.String()
}
