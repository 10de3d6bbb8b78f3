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

package univariate

import "github.com/gx-org/hoad/base/combinatorics"

// DerivativeToTaylor converts raw derivatives into Taylor coefficients
// in place: a[k-1] = f^(k) becomes f^(k)/k!.
func DerivativeToTaylor(a []float64) {
	for k := range a {
		a[k] /= combinatorics.Factorial(k + 1)
	}
}

// Elevate computes in dst the coefficients of the series of f^to given
// the coefficients t of f and the coefficients prev of f^(to-1).
// All series are indexed by exponent and t[0] must be zero.
// Coefficients beyond len(dst)-1 are truncated.
func Elevate(t, prev, dst []float64, to int) {
	for m := range dst {
		if m < to {
			dst[m] = 0
			continue
		}
		s := 0.0
		for j := 1; j <= m-to+1; j++ {
			s += t[j] * prev[m-j]
		}
		dst[m] = s
	}
}

// Table holds the truncated series of the powers of a perturbation.
// Row p, for p in [1, Power], holds the coefficients of eps^m, m in
// [0, Order], in (f(x+eps)-f(x))^p.
type Table struct {
	power, order int
	data         []float64
}

// TableSize returns the number of values required to store a table.
func TableSize(power, order int) int {
	return power * (order + 1)
}

// TableIndex returns the index of the coefficient of eps^m in row p
// of a table with the given order.
func TableIndex(order, p, m int) int {
	return (p-1)*(order+1) + m
}

// NewTable returns a table stored in data.
// data must have a length of at least TableSize(power, order).
func NewTable(data []float64, power, order int) Table {
	return Table{power: power, order: order, data: data[:TableSize(power, order)]}
}

// Row returns the coefficients of the p-th power.
func (t Table) Row(p int) []float64 {
	start := TableIndex(t.order, p, 0)
	return t.data[start : start+t.order+1]
}

// At returns the coefficient of eps^m in the p-th power.
func (t Table) At(p, m int) float64 {
	return t.data[TableIndex(t.order, p, m)]
}

// Fill computes the table of f at x given fx = f(x).
// Powers are computed incrementally, each row reusing the previous one.
func (t Table) Fill(f Func, fx, x float64) {
	if t.power == 0 {
		return
	}
	first := t.Row(1)
	first[0] = 0
	Derivatives(f, fx, x, first[1:])
	DerivativeToTaylor(first[1:])
	for p := 2; p <= t.power; p++ {
		Elevate(first, t.Row(p-1), t.Row(p), p)
	}
}
