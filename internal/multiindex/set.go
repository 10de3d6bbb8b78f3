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

package multiindex

import "slices"

// Set is a set of indices.
// A minimal set contains no index dominating another one.
type Set []Index

// Minimize returns the minimal elements of s, that is the indices of s
// which do not dominate another index of s. The result is sorted and
// free of duplicates.
func Minimize(s Set) Set {
	sorted := slices.Clone(s)
	slices.SortFunc(sorted, compare)
	sorted = slices.CompactFunc(sorted, Index.Equal)
	var r Set
	for _, idx := range sorted {
		dominated := false
		for _, kept := range r {
			if kept.LessEq(idx) {
				dominated = true
				break
			}
		}
		if !dominated {
			r = append(r, idx)
		}
	}
	return r
}

// Union returns the minimal elements of the union of two sets.
func Union(a, b Set) Set {
	return Minimize(append(slices.Clone(a), b...))
}

// Sum returns the minimal elements of the Minkowski sum of two sets,
// keeping only the sums for which keep returns true.
// A nil keep function keeps all the sums.
func Sum(a, b Set, keep func(Index) bool) Set {
	var r Set
	for _, x := range a {
		for _, y := range b {
			s := Add(x, y)
			if keep != nil && !keep(s) {
				continue
			}
			r = append(r, s)
		}
	}
	return Minimize(r)
}

// AnyLessEq returns true if an index of s is less or equal to idx.
func (s Set) AnyLessEq(idx Index) bool {
	for _, x := range s {
		if x.LessEq(idx) {
			return true
		}
	}
	return false
}
