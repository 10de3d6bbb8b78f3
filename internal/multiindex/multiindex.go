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

// Package multiindex implements vectors of derivative orders, one entry
// per input of a graph, with saturating arithmetic.
package multiindex

import (
	"slices"
	"strconv"
	"strings"
)

// Inf is the saturated order. It represents an unbounded dependency.
const Inf = int(^uint32(0) >> 1)

// AddSat returns a+b saturated at Inf.
func AddSat(a, b int) int {
	if a >= Inf-b {
		return Inf
	}
	return a + b
}

// MulSat returns k*a saturated at Inf, k >= 0.
func MulSat(k, a int) int {
	if k == 0 || a == 0 {
		return 0
	}
	if a >= Inf/k {
		return Inf
	}
	return k * a
}

// Index is a vector of orders.
type Index []int

// Unit returns the index of dimension dims with a 1 at position i.
func Unit(dims, i int) Index {
	idx := make(Index, dims)
	idx[i] = 1
	return idx
}

// Add returns the saturated sum of two indices.
func Add(a, b Index) Index {
	r := make(Index, len(a))
	for i := range a {
		r[i] = AddSat(a[i], b[i])
	}
	return r
}

// Max returns the coordinate-wise maximum of two indices.
func Max(a, b Index) Index {
	r := make(Index, len(a))
	for i := range a {
		r[i] = max(a[i], b[i])
	}
	return r
}

// LessEq returns true if a <= b coordinate-wise.
func (a Index) LessEq(b Index) bool {
	for i := range a {
		if a[i] > b[i] {
			return false
		}
	}
	return true
}

// Total returns the sum of the orders, saturated at Inf.
func (a Index) Total() int {
	t := 0
	for _, v := range a {
		t = AddSat(t, v)
	}
	return t
}

// Equal returns true if both indices are equal.
func (a Index) Equal(b Index) bool {
	return slices.Equal(a, b)
}

func compare(a, b Index) int {
	return slices.Compare(a, b)
}

// String representation of the index.
func (a Index) String() string {
	ss := make([]string, len(a))
	for i, v := range a {
		if v == Inf {
			ss[i] = "inf"
		} else {
			ss[i] = strconv.Itoa(v)
		}
	}
	return "(" + strings.Join(ss, ",") + ")"
}
