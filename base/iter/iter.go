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

// Package iter provides iterators and helpers over sorted slices.
package iter

import stditer "iter"

// All iterates over the elements of multiple slices.
func All[T any](slices ...[]T) stditer.Seq[T] {
	return func(yield func(T) bool) {
		for _, slice := range slices {
			for _, el := range slice {
				if !yield(el) {
					return
				}
			}
		}
	}
}

// Filter iterates over the elements of multiple slices
// and excludes elements for which keep returns false.
func Filter[T any](keep func(T) bool, slices ...[]T) stditer.Seq[T] {
	return func(yield func(T) bool) {
		for el := range All(slices...) {
			if !keep(el) {
				continue
			}
			if !yield(el) {
				return
			}
		}
	}
}

// MergeSorted merges two slices sorted with respect to cmp in a single
// pass. When two elements compare equal, the result holds a single
// element: combine(x, y) if combine is not nil, x otherwise.
// a and b are not modified.
func MergeSorted[T any](a, b []T, cmp func(T, T) int, combine func(T, T) T) []T {
	r := make([]T, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch c := cmp(a[i], b[j]); {
		case c < 0:
			r = append(r, a[i])
			i++
		case c > 0:
			r = append(r, b[j])
			j++
		default:
			x := a[i]
			if combine != nil {
				x = combine(a[i], b[j])
			}
			r = append(r, x)
			i++
			j++
		}
	}
	r = append(r, a[i:]...)
	return append(r, b[j:]...)
}
