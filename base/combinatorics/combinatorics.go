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

// Package combinatorics provides the counting functions and the
// enumerations of integer compositions used to expand powers of
// perturbations.
package combinatorics

import (
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat/combin"
)

// MaxFactorial is the largest n for which n! is finite in float64.
const MaxFactorial = 170

var factorials = func() [MaxFactorial + 1]float64 {
	var fs [MaxFactorial + 1]float64
	fs[0] = 1
	for i := 1; i <= MaxFactorial; i++ {
		fs[i] = fs[i-1] * float64(i)
	}
	return fs
}()

// Factorial returns n! as a float64.
// It returns +Inf for n > MaxFactorial and 0 for negative n.
func Factorial[T constraints.Integer](n T) float64 {
	if n < 0 {
		return 0
	}
	if uint64(n) > MaxFactorial {
		return math.Inf(1)
	}
	return factorials[int(n)]
}

// MaxExactBinomial is the largest n for which binomial coefficients
// (n, k) are computed with integer arithmetic without overflow.
const MaxExactBinomial = 61

// Binomial returns the binomial coefficient (n, k) as a float64.
// It is exact up to n = MaxExactBinomial. Above, it is computed from
// the log-gamma function and carries a relative error of a few ulps.
func Binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	if n <= MaxExactBinomial {
		return float64(combin.Binomial(n, k))
	}
	return math.Round(combin.GeneralizedBinomial(float64(n), float64(k)))
}

// Multinomial returns the multinomial coefficient (k1+...+kn)!/(k1!...kn!).
// See Binomial for its precision when k1+...+kn > MaxExactBinomial.
func Multinomial[T constraints.Integer](ks ...T) float64 {
	total, res := 0, 1.0
	for _, k := range ks {
		if k < 0 {
			return 0
		}
		total += int(k)
		res *= Binomial(total, int(k))
	}
	return res
}

// Compositions2 returns all the pairs (a, n-a) for a in [0, n],
// a ascending.
func Compositions2(n int) [][2]int {
	if n < 0 {
		return nil
	}
	cs := make([][2]int, 0, n+1)
	for a := 0; a <= n; a++ {
		cs = append(cs, [2]int{a, n - a})
	}
	return cs
}

// Trinomials returns all the triplets (c, a, b) such that c+a+b = n.
//
// The enumeration starts at (n, 0, 0) and moves units from the first
// element to the second one. Once the first element is exhausted, one
// unit is carried into the third element and the enumeration restarts.
func Trinomials(n int) [][3]int {
	return TrinomialsBounded(n, 2*n)
}

// TrinomialsBounded returns the triplets (c, a, b) of Trinomials such
// that n+c <= max. In the expansion of (xy + x + y)^n, c is the power
// of the cross term xy, which adds c to the total order of the
// resulting monomial.
func TrinomialsBounded(n, max int) [][3]int {
	if n < 0 || max < n {
		return nil
	}
	var ts [][3]int
	for b := 0; b <= n; b++ {
		for c := min(n-b, max-n); c >= 0; c-- {
			ts = append(ts, [3]int{c, n - b - c, b})
		}
	}
	return ts
}
