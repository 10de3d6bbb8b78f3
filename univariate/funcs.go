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

// Package univariate provides the catalogue of elementary functions
// supported by the graph together with their derivative tables.
//
// For a function f evaluated at x, Derivatives computes the raw
// derivatives f', f'', ... using a recurrence specific to f.
// DerivativeToTaylor turns them into Taylor coefficients, Elevate
// raises the resulting series to successive powers, and Table stores
// these powers for all the orders required by a propagation step.
package univariate

import (
	"fmt"
	"math"
)

// Func is an elementary function tag.
type Func uint8

// Elementary functions.
const (
	Invalid Func = iota
	Neg
	Inv
	Exp
	Log
	Sqrt
	Sin
	Cos
	Tan
	Asin
	Acos
	Atan
	Sinh
	Cosh
	Tanh
	Asinh
	Acosh
	Atanh
	Erf
	Erfc
	Lgamma
	Tgamma
	numFuncs
)

var names = [numFuncs]string{
	Invalid: "invalid",
	Neg:     "neg",
	Inv:     "inv",
	Exp:     "exp",
	Log:     "log",
	Sqrt:    "sqrt",
	Sin:     "sin",
	Cos:     "cos",
	Tan:     "tan",
	Asin:    "asin",
	Acos:    "acos",
	Atan:    "atan",
	Sinh:    "sinh",
	Cosh:    "cosh",
	Tanh:    "tanh",
	Asinh:   "asinh",
	Acosh:   "acosh",
	Atanh:   "atanh",
	Erf:     "erf",
	Erfc:    "erfc",
	Lgamma:  "lgamma",
	Tgamma:  "tgamma",
}

// Funcs returns all the valid functions of the catalogue.
func Funcs() []Func {
	fs := make([]Func, 0, numFuncs-1)
	for f := Neg; f < numFuncs; f++ {
		fs = append(fs, f)
	}
	return fs
}

// Valid returns true if the function is in the catalogue.
func (f Func) Valid() bool {
	return f > Invalid && f < numFuncs
}

// Linear returns true if the function is linear, that is if all its
// derivatives of order greater than 1 are zero and f(0) = 0.
func (f Func) Linear() bool {
	return f == Neg
}

// String returns the name of the function.
func (f Func) String() string {
	if f >= numFuncs {
		return fmt.Sprintf("Func(%d)", uint8(f))
	}
	return names[f]
}

// Eval returns f(x).
func (f Func) Eval(x float64) float64 {
	switch f {
	case Neg:
		return -x
	case Inv:
		return 1 / x
	case Exp:
		return math.Exp(x)
	case Log:
		return math.Log(x)
	case Sqrt:
		return math.Sqrt(x)
	case Sin:
		return math.Sin(x)
	case Cos:
		return math.Cos(x)
	case Tan:
		return math.Tan(x)
	case Asin:
		return math.Asin(x)
	case Acos:
		return math.Acos(x)
	case Atan:
		return math.Atan(x)
	case Sinh:
		return math.Sinh(x)
	case Cosh:
		return math.Cosh(x)
	case Tanh:
		return math.Tanh(x)
	case Asinh:
		return math.Asinh(x)
	case Acosh:
		return math.Acosh(x)
	case Atanh:
		return math.Atanh(x)
	case Erf:
		return math.Erf(x)
	case Erfc:
		return math.Erfc(x)
	case Lgamma:
		v, _ := math.Lgamma(x)
		return v
	case Tgamma:
		return math.Gamma(x)
	}
	return math.NaN()
}
