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

// Package testgraph provides graphs shared by tests together with
// reference implementations of the functions they compute.
package testgraph

import (
	"math"

	"github.com/gx-org/hoad/graph"
	"gonum.org/v1/gonum/num/hyperdual"
)

// BlackScholes is the graph of a price in the style of Black-Scholes:
//
//	totalVol = v*sqrt(T)
//	d1 = log(S*sqrt(K))*log(totalVol) + totalVol/2
//	d2 = d1 + totalVol
//	price = S*erfc(d1) + K*erfc(d2)
type BlackScholes struct {
	Graph      *graph.Graph
	S, K, V, T graph.Node
	Price      graph.Node
}

// NewBlackScholes builds the graph of the price.
func NewBlackScholes() (*BlackScholes, error) {
	b := graph.NewBuilder()
	s, k, v, t := b.Input("S"), b.Input("K"), b.Input("v"), b.Input("T")
	totalVol := b.Mul(v, b.Sqrt(t))
	d1 := b.Add(
		b.Mul(b.Log(b.Mul(s, b.Sqrt(k))), b.Log(totalVol)),
		b.Mul(totalVol, b.Const(0.5)),
	)
	d2 := b.Add(d1, totalVol)
	price := b.Add(b.Mul(s, b.Erfc(d1)), b.Mul(k, b.Erfc(d2)))
	g, err := b.Build(price)
	if err != nil {
		return nil, err
	}
	return &BlackScholes{Graph: g, S: s, K: k, V: v, T: t, Price: price}, nil
}

// Inputs returns the inputs in the order S, K, v, T.
func (bs *BlackScholes) Inputs() []graph.Node {
	return []graph.Node{bs.S, bs.K, bs.V, bs.T}
}

// Evaluate returns the evaluated values of the graph.
func (bs *BlackScholes) Evaluate(s, k, v, t float64) (*graph.Values, error) {
	vals := bs.Graph.NewValues()
	for i, in := range bs.Inputs() {
		if err := vals.Set(in, []float64{s, k, v, t}[i]); err != nil {
			return nil, err
		}
	}
	if err := vals.Evaluate(); err != nil {
		return nil, err
	}
	return vals, nil
}

// Erfc returns erfc(x) for a hyperdual number.
func Erfc(x hyperdual.Number) hyperdual.Number {
	d1 := -2 / math.SqrtPi * math.Exp(-x.Real*x.Real)
	d2 := -2 * x.Real * d1
	return hyperdual.Number{
		Real:    math.Erfc(x.Real),
		E1mag:   d1 * x.E1mag,
		E2mag:   d1 * x.E2mag,
		E1E2mag: d1*x.E1E2mag + d2*x.E1mag*x.E2mag,
	}
}

// HyperdualPrice computes the price with hyperdual numbers.
func HyperdualPrice(s, k, v, t hyperdual.Number) hyperdual.Number {
	half := hyperdual.Number{Real: 0.5}
	totalVol := hyperdual.Mul(v, hyperdual.Sqrt(t))
	d1 := hyperdual.Add(
		hyperdual.Mul(hyperdual.Log(hyperdual.Mul(s, hyperdual.Sqrt(k))), hyperdual.Log(totalVol)),
		hyperdual.Mul(totalVol, half),
	)
	d2 := hyperdual.Add(d1, totalVol)
	return hyperdual.Add(hyperdual.Mul(s, Erfc(d1)), hyperdual.Mul(k, Erfc(d2)))
}

// SecondOrder returns the derivative of the price with respect to the
// inputs i and j, in the order S, K, v, T, computed with hyperdual numbers.
func SecondOrder(xs [4]float64, i, j int) float64 {
	var hs [4]hyperdual.Number
	for n, x := range xs {
		hs[n] = hyperdual.Number{Real: x}
	}
	hs[i].E1mag = 1
	hs[j].E2mag = 1
	return HyperdualPrice(hs[0], hs[1], hs[2], hs[3]).E1E2mag
}

// FirstOrder returns the derivative of the price with respect to the
// input i, in the order S, K, v, T, computed with hyperdual numbers.
func FirstOrder(xs [4]float64, i int) float64 {
	var hs [4]hyperdual.Number
	for n, x := range xs {
		hs[n] = hyperdual.Number{Real: x}
	}
	hs[i].E1mag = 1
	return HyperdualPrice(hs[0], hs[1], hs[2], hs[3]).E1mag
}
