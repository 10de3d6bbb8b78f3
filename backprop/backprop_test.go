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

package backprop_test

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/gx-org/hoad/backprop"
	"github.com/gx-org/hoad/base/fmterr"
	"github.com/gx-org/hoad/diffop"
	"github.com/gx-org/hoad/graph"
	"github.com/gx-org/hoad/internal/testgraph"
	"github.com/gx-org/hoad/univariate"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats/scalar"
)

type seed struct {
	m diffop.Monomial
	v float64
}

func newPlan(t *testing.T, g *graph.Graph, ms []diffop.Monomial, opts ...backprop.Option) *backprop.Plan {
	t.Helper()
	set, err := diffop.Declare(ms...)
	require.NoError(t, err)
	p, err := backprop.NewPlan(context.Background(), g, set, opts...)
	require.NoError(t, err)
	require.NoError(t, p.Validate())
	require.Equal(t, p.BufferSize(), p.PeakLive(), "buffer is not minimal:\n%s", p)
	return p
}

func run(t *testing.T, p *backprop.Plan, vals *graph.Values, seeds ...seed) *backprop.Tape {
	t.Helper()
	tape := backprop.NewTape(p)
	tape.Reset()
	for _, s := range seeds {
		require.NoError(t, tape.Set(s.m, s.v))
	}
	require.NoError(t, tape.Backpropagate(p, vals))
	return tape
}

func derivative(t *testing.T, tape *backprop.Tape, m diffop.Monomial) float64 {
	t.Helper()
	v, err := tape.Derivative(m)
	require.NoError(t, err)
	return v
}

func evaluate(t *testing.T, g *graph.Graph, inputs map[graph.Node]float64) *graph.Values {
	t.Helper()
	vals := g.NewValues()
	for n, v := range inputs {
		require.NoError(t, vals.Set(n, v))
	}
	require.NoError(t, vals.Evaluate())
	return vals
}

func requireClose(t *testing.T, want, got float64, tol float64, msg string) {
	t.Helper()
	if !scalar.EqualWithinAbsOrRel(got, want, tol, tol) {
		t.Errorf("%s: got %.17g but want %.17g", msg, got, want)
	}
}

func requireRel(t *testing.T, want, got float64, msg string) {
	t.Helper()
	if !scalar.EqualWithinRel(got, want, 1e-13) {
		t.Errorf("%s: got %.17g but want %.17g (relative error %.3g)", msg, got, want, math.Abs(got-want)/math.Abs(want))
	}
}

func TestFiniteDifferences(t *testing.T) {
	b := graph.NewBuilder()
	s, k := b.Input("S"), b.Input("K")
	f := b.Add(b.Mul(s, k), b.Exp(s))
	g, err := b.Build(f)
	require.NoError(t, err)
	dS, dSS, dSK := diffop.D1(s), diffop.D(s, 2), diffop.Mul(diffop.D1(s), diffop.D1(k))
	p := newPlan(t, g, []diffop.Monomial{diffop.D1(f), dS, dSS, dSK})
	const sVal, kVal = 1.0, 2.0
	tape := run(t, p, evaluate(t, g, map[graph.Node]float64{s: sVal, k: kVal}), seed{m: diffop.D1(f), v: 1})

	fn := func(s, k float64) float64 { return s*k + math.Exp(s) }
	central := &fd.Settings{Formula: fd.Central, Step: 1e-4}
	fdS := fd.Derivative(func(x float64) float64 { return fn(x, kVal) }, sVal, central)
	fdSS := fd.Derivative(func(x float64) float64 { return fn(x, kVal) }, sVal, &fd.Settings{Formula: fd.Central2nd, Step: 1e-3})
	fdSK := fd.Derivative(func(y float64) float64 {
		return fd.Derivative(func(x float64) float64 { return fn(x, y) }, sVal, central)
	}, kVal, central)

	tests := []struct {
		m             diffop.Monomial
		closed, diffs float64
	}{
		{m: dS, closed: kVal + math.Exp(sVal), diffs: fdS},
		{m: dSS, closed: math.Exp(sVal), diffs: fdSS},
		{m: dSK, closed: 1, diffs: fdSK},
	}
	for _, test := range tests {
		got := derivative(t, tape, test.m)
		requireClose(t, test.closed, got, 1e-14, test.m.String())
		require.InDelta(t, test.diffs, got, 1e-6, "%s does not match finite differences", test.m)
	}
	taylor, err := tape.Get(dSS)
	require.NoError(t, err)
	requireClose(t, math.Exp(sVal)/2, taylor, 1e-14, "Taylor coefficient of d^2(S)")
}

var blackScholesPoint = [4]float64{1.01, 1.02, 0.15, 0.5}

func blackScholes(t *testing.T) (*testgraph.BlackScholes, *graph.Values) {
	t.Helper()
	bs, err := testgraph.NewBlackScholes()
	require.NoError(t, err)
	x := blackScholesPoint
	vals, err := bs.Evaluate(x[0], x[1], x[2], x[3])
	require.NoError(t, err)
	return bs, vals
}

func TestBlackScholesFirstOrder(t *testing.T) {
	bs, vals := blackScholes(t)
	price, err := vals.Get(bs.Price)
	require.NoError(t, err)
	require.InDelta(t, 1.8890465506626162, price, 1e-13)

	ms := []diffop.Monomial{diffop.D1(bs.Price)}
	for _, in := range bs.Inputs() {
		ms = append(ms, diffop.D1(in))
	}
	p := newPlan(t, bs.Graph, ms)
	tape := run(t, p, vals, seed{m: diffop.D1(bs.Price), v: 1})
	want := []float64{6.0454412443913581, 3.3740304502248355, -1.9089022751421003, -0.28633534127131505}
	for i, in := range bs.Inputs() {
		got := derivative(t, tape, diffop.D1(in))
		require.InDelta(t, want[i], got, 1e-12, "d(%s)", in)
		requireRel(t, testgraph.FirstOrder(blackScholesPoint, i), got, "hyperdual d("+in.String()+")")
	}
}

func secondOrderSet(bs *testgraph.BlackScholes) (ms []diffop.Monomial, pairs [][2]int) {
	ms = []diffop.Monomial{diffop.D1(bs.Price)}
	ins := bs.Inputs()
	for i := range ins {
		ms = append(ms, diffop.D1(ins[i]))
		for j := i; j < len(ins); j++ {
			ms = append(ms, diffop.Mul(diffop.D1(ins[i]), diffop.D1(ins[j])))
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return ms, pairs
}

func TestBlackScholesSecondOrder(t *testing.T) {
	bs, vals := blackScholes(t)
	ms, pairs := secondOrderSet(bs)
	p := newPlan(t, bs.Graph, ms)
	tape := run(t, p, vals, seed{m: diffop.D1(bs.Price), v: 1})
	ins := bs.Inputs()
	for _, ij := range pairs {
		m := diffop.Mul(diffop.D1(ins[ij[0]]), diffop.D1(ins[ij[1]]))
		want := testgraph.SecondOrder(blackScholesPoint, ij[0], ij[1])
		requireRel(t, want, derivative(t, tape, m), m.String())
	}
}

func TestPruningSoundness(t *testing.T) {
	bs, vals := blackScholes(t)
	sets := map[string][]diffop.Monomial{
		"second order S,K": {
			diffop.D1(bs.Price),
			diffop.D1(bs.S),
			diffop.D(bs.S, 2),
			diffop.Mul(diffop.D1(bs.S), diffop.D1(bs.K)),
		},
		"third order T": {
			diffop.D1(bs.Price),
			diffop.D(bs.T, 3),
			diffop.Mul(diffop.D1(bs.V), diffop.D1(bs.T)),
		},
	}
	full, _ := secondOrderSet(bs)
	sets["all second order"] = full
	for name, ms := range sets {
		pruned := newPlan(t, bs.Graph, ms)
		unpruned := newPlan(t, bs.Graph, ms, backprop.WithoutPruning())
		require.LessOrEqual(t, pruned.NumTerms(), unpruned.NumTerms(), name)
		prunedTape := run(t, pruned, vals, seed{m: diffop.D1(bs.Price), v: 1})
		unprunedTape := run(t, unpruned, vals, seed{m: diffop.D1(bs.Price), v: 1})
		for _, m := range ms[1:] {
			want := derivative(t, unprunedTape, m)
			requireClose(t, want, derivative(t, prunedTape, m), 1e-12, name+": "+m.String())
		}
	}
	pruned := newPlan(t, bs.Graph, sets["second order S,K"])
	unpruned := newPlan(t, bs.Graph, sets["second order S,K"], backprop.WithoutPruning())
	require.Less(t, pruned.NumTerms(), unpruned.NumTerms())
	require.Positive(t, pruned.Pruned())
}

func TestDeterminism(t *testing.T) {
	bs, vals := blackScholes(t)
	ms, _ := secondOrderSet(bs)
	p := newPlan(t, bs.Graph, ms)
	tape := backprop.NewTape(p)
	var results [2][]float64
	for i := range results {
		tape.Reset()
		require.NoError(t, tape.Set(diffop.D1(bs.Price), 1))
		require.NoError(t, tape.Backpropagate(p, vals))
		for _, m := range ms[1:] {
			v, err := tape.Get(m)
			require.NoError(t, err)
			results[i] = append(results[i], v)
		}
	}
	require.Equal(t, results[0], results[1])
}

func TestReplanning(t *testing.T) {
	bs, vals := blackScholes(t)
	ms, _ := secondOrderSet(bs)
	set, err := diffop.Declare(ms...)
	require.NoError(t, err)
	p1, err := backprop.NewPlan(context.Background(), bs.Graph, set)
	require.NoError(t, err)
	p2, err := backprop.NewPlan(context.Background(), bs.Graph, set)
	require.NoError(t, err)
	require.Equal(t, p1.BufferSize(), p2.BufferSize())
	require.Equal(t, p1.String(), p2.String())
	// A tape created for one plan can run the other.
	tape := backprop.NewTape(p1)
	require.NoError(t, tape.Backpropagate(p2, vals))
}

func TestErfc(t *testing.T) {
	b := graph.NewBuilder()
	x := b.Input("x")
	f := b.Erfc(x)
	g, err := b.Build(f)
	require.NoError(t, err)
	ms := []diffop.Monomial{diffop.D1(f), diffop.D1(x), diffop.D(x, 2), diffop.D(x, 3)}
	p := newPlan(t, g, ms)
	require.Equal(t, 0, p.BufferSize())
	tape := run(t, p, evaluate(t, g, map[graph.Node]float64{x: 1.2}), seed{m: diffop.D1(f), v: 1})
	want := []float64{-0.267344347003539, 0.64162643280849396, -1.0052147447333071}
	for i, m := range ms[1:] {
		requireClose(t, want[i], derivative(t, tape, m), 1e-13, m.String())
	}
}

func TestLogErfc(t *testing.T) {
	b := graph.NewBuilder()
	x := b.Input("x")
	f := b.Log(b.Erfc(x))
	g, err := b.Build(f)
	require.NoError(t, err)
	ms := []diffop.Monomial{diffop.D1(f), diffop.D1(x), diffop.D(x, 2), diffop.D(x, 3)}
	p := newPlan(t, g, ms)
	require.Equal(t, 3, p.BufferSize())
	const x0 = 1.2
	tape := run(t, p, evaluate(t, g, map[graph.Node]float64{x: x0}), seed{m: diffop.D1(f), v: 1})

	erfc := func(x float64) []float64 {
		d := make([]float64, 2)
		univariate.Derivatives(univariate.Erfc, math.Erfc(x), x, d)
		return append([]float64{math.Erfc(x)}, d...)
	}
	first := func(x float64) float64 {
		e := erfc(x)
		return e[1] / e[0]
	}
	second := func(x float64) float64 {
		e := erfc(x)
		return (e[2]*e[0] - e[1]*e[1]) / (e[0] * e[0])
	}
	central := &fd.Settings{Formula: fd.Central}
	requireClose(t, first(x0), derivative(t, tape, diffop.D1(x)), 1e-13, "d(x)")
	requireClose(t, second(x0), derivative(t, tape, diffop.D(x, 2)), 1e-13, "d^2(x)")
	require.InDelta(t, fd.Derivative(second, x0, central), derivative(t, tape, diffop.D(x, 3)), 1e-7)
}

func TestUnaryFunctions(t *testing.T) {
	points := map[univariate.Func]float64{
		univariate.Asin:   0.3,
		univariate.Acos:   0.3,
		univariate.Atanh:  0.3,
		univariate.Acosh:  1.7,
		univariate.Lgamma: 2.5,
		univariate.Tgamma: 2.5,
	}
	for _, fn := range univariate.Funcs() {
		u0, ok := points[fn]
		if !ok {
			u0 = 0.7
		}
		b := graph.NewBuilder()
		x, y := b.Input("x"), b.Input("y")
		h := b.Apply(fn, b.Mul(x, y))
		g, err := b.Build(h)
		require.NoError(t, err)
		dx, dxy := diffop.D1(x), diffop.Mul(diffop.D1(x), diffop.D1(y))
		dxxx, dxxy := diffop.D(x, 3), diffop.Mul(diffop.D(x, 2), diffop.D1(y))
		p := newPlan(t, g, []diffop.Monomial{diffop.D1(h), dx, dxy, dxxx, dxxy})
		xv, yv := 2.0, u0/2
		tape := run(t, p, evaluate(t, g, map[graph.Node]float64{x: xv, y: yv}), seed{m: diffop.D1(h), v: 1})

		d := make([]float64, 3)
		univariate.Derivatives(fn, fn.Eval(u0), u0, d)
		tests := []struct {
			m    diffop.Monomial
			want float64
		}{
			{m: dx, want: yv * d[0]},
			{m: dxy, want: d[0] + xv*yv*d[1]},
			{m: dxxx, want: yv * yv * yv * d[2]},
			{m: dxxy, want: 2*yv*d[1] + yv*yv*xv*d[2]},
		}
		for _, test := range tests {
			requireClose(t, test.want, derivative(t, tape, test.m), 1e-12, fn.String()+": "+test.m.String())
		}
	}
}

func TestGammaIdentity(t *testing.T) {
	b := graph.NewBuilder()
	x := b.Input("x")
	f := b.Sub(b.Tgamma(x), b.Exp(b.Lgamma(x)))
	g, err := b.Build(f)
	require.NoError(t, err)
	ms := []diffop.Monomial{diffop.D1(f), diffop.D1(x), diffop.D(x, 2), diffop.D(x, 3), diffop.D(x, 4)}
	p := newPlan(t, g, ms)
	tape := run(t, p, evaluate(t, g, map[graph.Node]float64{x: 2.5}), seed{m: diffop.D1(f), v: 1})
	for _, m := range ms[1:] {
		require.InDelta(t, 0, derivative(t, tape, m), 1e-12, m.String())
	}
}

func TestArithmetic(t *testing.T) {
	type derivatives struct {
		dx, dy, dxx, dxy, dyy, dyyy, dxyy float64
	}
	const x0, y0 = 1.5, 0.7
	tests := []struct {
		name  string
		build func(b *graph.Builder, x, y graph.Node) graph.Node
		want  derivatives
	}{
		{
			name:  "x/y",
			build: func(b *graph.Builder, x, y graph.Node) graph.Node { return b.Div(x, y) },
			want: derivatives{
				dx: 1 / y0, dy: -x0 / (y0 * y0), dxy: -1 / (y0 * y0),
				dyy: 2 * x0 / (y0 * y0 * y0), dyyy: -6 * x0 / (y0 * y0 * y0 * y0), dxyy: 2 / (y0 * y0 * y0),
			},
		},
		{
			name:  "3/y + x",
			build: func(b *graph.Builder, x, y graph.Node) graph.Node { return b.Add(b.Div(b.Const(3), y), x) },
			want: derivatives{
				dx: 1, dy: -3 / (y0 * y0), dyy: 6 / (y0 * y0 * y0), dyyy: -18 / (y0 * y0 * y0 * y0),
			},
		},
		{
			name:  "x/4 - y*y",
			build: func(b *graph.Builder, x, y graph.Node) graph.Node { return b.Sub(b.Div(x, b.Const(4)), b.Mul(y, y)) },
			want:  derivatives{dx: 0.25, dy: -2 * y0, dyy: -2},
		},
		{
			name:  "-(x*y*y)",
			build: func(b *graph.Builder, x, y graph.Node) graph.Node { return b.Neg(b.Mul(x, b.Mul(y, y))) },
			want:  derivatives{dx: -y0 * y0, dy: -2 * x0 * y0, dxy: -2 * y0, dyy: -2 * x0, dxyy: -2},
		},
		{
			name:  "x*x*y",
			build: func(b *graph.Builder, x, y graph.Node) graph.Node { return b.Mul(b.Mul(x, x), y) },
			want:  derivatives{dx: 2 * x0 * y0, dy: x0 * x0, dxx: 2 * y0, dxy: 2 * x0},
		},
		{
			name:  "x/(x*y)",
			build: func(b *graph.Builder, x, y graph.Node) graph.Node { return b.Div(x, b.Mul(x, y)) },
			want: derivatives{
				dy: -1 / (y0 * y0), dyy: 2 / (y0 * y0 * y0), dyyy: -6 / (y0 * y0 * y0 * y0),
			},
		},
		{
			name:  "y-x",
			build: func(b *graph.Builder, x, y graph.Node) graph.Node { return b.Sub(y, x) },
			want:  derivatives{dx: -1, dy: 1},
		},
		{
			name:  "2*x*y - 5",
			build: func(b *graph.Builder, x, y graph.Node) graph.Node { return b.Sub(b.Mul(b.Const(2), b.Mul(x, y)), b.Const(5)) },
			want:  derivatives{dx: 2 * y0, dy: 2 * x0, dxy: 2},
		},
	}
	for _, test := range tests {
		b := graph.NewBuilder()
		x, y := b.Input("x"), b.Input("y")
		f := test.build(b, x, y)
		g, err := b.Build(f)
		require.NoError(t, err, test.name)
		ms := map[string]diffop.Monomial{
			"dx":   diffop.D1(x),
			"dy":   diffop.D1(y),
			"dxx":  diffop.D(x, 2),
			"dxy":  diffop.Mul(diffop.D1(x), diffop.D1(y)),
			"dyy":  diffop.D(y, 2),
			"dyyy": diffop.D(y, 3),
			"dxyy": diffop.Mul(diffop.D1(x), diffop.D(y, 2)),
		}
		want := map[string]float64{
			"dx": test.want.dx, "dy": test.want.dy, "dxx": test.want.dxx, "dxy": test.want.dxy,
			"dyy": test.want.dyy, "dyyy": test.want.dyyy, "dxyy": test.want.dxyy,
		}
		names := []string{"dx", "dy", "dxx", "dxy", "dyy", "dyyy", "dxyy"}
		request := []diffop.Monomial{diffop.D1(f)}
		for _, name := range names {
			request = append(request, ms[name])
		}
		for _, opts := range [][]backprop.Option{nil, {backprop.WithoutPruning()}} {
			p := newPlan(t, g, request, opts...)
			tape := run(t, p, evaluate(t, g, map[graph.Node]float64{x: x0, y: y0}), seed{m: diffop.D1(f), v: 1})
			for _, name := range names {
				requireClose(t, want[name], derivative(t, tape, ms[name]), 1e-12, test.name+": "+name)
			}
		}
	}
}

func TestSeveralOutputs(t *testing.T) {
	b := graph.NewBuilder()
	x, y := b.Input("x"), b.Input("y")
	f := b.Mul(x, y)
	h := b.Exp(x)
	g, err := b.Build(f, h)
	require.NoError(t, err)
	p := newPlan(t, g, []diffop.Monomial{diffop.D1(f), diffop.D1(h), diffop.D1(x), diffop.D1(y)})
	const x0, y0 = 0.3, 4.0
	tape := run(t, p, evaluate(t, g, map[graph.Node]float64{x: x0, y: y0}),
		seed{m: diffop.D1(f), v: 1},
		seed{m: diffop.D1(h), v: 2},
	)
	requireClose(t, y0+2*math.Exp(x0), derivative(t, tape, diffop.D1(x)), 1e-14, "d(x)")
	requireClose(t, x0, derivative(t, tape, diffop.D1(y)), 1e-14, "d(y)")
}

func TestLogger(t *testing.T) {
	b := graph.NewBuilder()
	x := b.Input("x")
	f := b.Sin(x)
	g, err := b.Build(f)
	require.NoError(t, err)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	newPlan(t, g, []diffop.Monomial{diffop.D1(f), diffop.D(x, 2)}, backprop.WithLogger(logger))
	require.Contains(t, buf.String(), "backpropagation plan built")
	require.Contains(t, buf.String(), "buffer=0")
}

func TestConfigErrors(t *testing.T) {
	b := graph.NewBuilder()
	x, y := b.Input("x"), b.Input("y")
	f := b.Mul(x, x)
	unused := b.Exp(y)
	g, err := b.Build(f)
	require.NoError(t, err)
	tests := [][]diffop.Monomial{
		{diffop.D1(f), diffop.D1(y)},
		{diffop.D1(unused), diffop.D1(x)},
	}
	for i, ms := range tests {
		set, err := diffop.Declare(ms...)
		require.NoError(t, err)
		_, err = backprop.NewPlan(context.Background(), g, set)
		require.ErrorIs(t, err, fmterr.ErrConfig, "test %d", i)
	}
}

func TestMisuse(t *testing.T) {
	b := graph.NewBuilder()
	x, y := b.Input("x"), b.Input("y")
	f := b.Mul(x, y)
	g, err := b.Build(f)
	require.NoError(t, err)
	p := newPlan(t, g, []diffop.Monomial{diffop.D1(f), diffop.D1(x)})
	other := newPlan(t, g, []diffop.Monomial{diffop.D1(f), diffop.D1(y)})
	tape := backprop.NewTape(p)

	_, err = tape.Get(diffop.D1(y))
	require.ErrorIs(t, err, fmterr.ErrMisuse)
	require.ErrorIs(t, tape.Set(diffop.D(x, 2), 1), fmterr.ErrMisuse)

	vals := g.NewValues()
	require.NoError(t, vals.Set(x, 1))
	require.NoError(t, vals.Set(y, 2))
	require.ErrorIs(t, tape.Backpropagate(p, vals), fmterr.ErrMisuse)
	require.NoError(t, vals.Evaluate())
	require.ErrorIs(t, tape.Backpropagate(other, vals), fmterr.ErrMisuse)

	otherGraph, err := b.Build(f)
	require.NoError(t, err)
	otherVals := evaluate(t, otherGraph, map[graph.Node]float64{x: 1, y: 2})
	require.ErrorIs(t, tape.Backpropagate(p, otherVals), fmterr.ErrMisuse)

	require.NoError(t, tape.Set(diffop.D1(f), 1))
	require.NoError(t, tape.Backpropagate(p, vals))
	got, err := tape.Derivative(diffop.D1(x))
	require.NoError(t, err)
	require.Equal(t, 2.0, got)
}
