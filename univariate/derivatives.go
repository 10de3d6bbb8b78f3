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

import (
	"math"

	"github.com/gx-org/hoad/base/combinatorics"
	"gonum.org/v1/gonum/mathext"
)

// Derivatives writes the first len(out) raw derivatives of f at x in
// out, that is out[k-1] = f^(k)(x). fx must be equal to f(x).
func Derivatives(f Func, fx, x float64, out []float64) {
	if len(out) == 0 {
		return
	}
	switch f {
	case Neg:
		clear(out)
		out[0] = -1
	case Inv:
		out[0] = -fx * fx
		for k := 1; k < len(out); k++ {
			out[k] = -float64(k+1) * out[k-1] * fx
		}
	case Exp:
		for k := range out {
			out[k] = fx
		}
	case Log:
		out[0] = 1 / x
		for k := 1; k < len(out); k++ {
			out[k] = -float64(k) * out[k-1] * out[0]
		}
	case Sqrt:
		out[0] = 0.5 * fx / x
		inv := 1 / x
		for k := 1; k < len(out); k++ {
			out[k] = out[k-1] * inv * (0.5 - float64(k))
		}
	case Sin:
		periodic(math.Cos(x), -fx, -1, out)
	case Cos:
		periodic(-math.Sin(x), -fx, -1, out)
	case Sinh:
		periodic(math.Cosh(x), fx, 1, out)
	case Cosh:
		periodic(math.Sinh(x), fx, 1, out)
	case Tan:
		riccati(fx, 1, out)
	case Tanh:
		riccati(fx, -1, out)
	case Asin:
		den := 1 / (1 - x*x)
		out[0] = math.Sqrt(den)
		arcsin(x, den, 1, out)
	case Acos:
		den := 1 / (1 - x*x)
		out[0] = -math.Sqrt(den)
		arcsin(x, den, 1, out)
	case Asinh:
		den := 1 / (1 + x*x)
		out[0] = math.Sqrt(den)
		arcsin(x, den, -1, out)
	case Acosh:
		den := 1 / (x*x - 1)
		out[0] = math.Sqrt(den)
		arcsin(x, den, -1, out)
	case Atan:
		den := 1 / (1 + x*x)
		out[0] = den
		arctan(x, den, out)
	case Atanh:
		den := 1 / (x*x - 1)
		out[0] = -den
		arctan(x, den, out)
	case Erf:
		out[0] = 2 / math.SqrtPi * math.Exp(-x*x)
		hermite(x, out)
	case Erfc:
		out[0] = -2 / math.SqrtPi * math.Exp(-x*x)
		hermite(x, out)
	case Lgamma:
		polygamma(x, out)
	case Tgamma:
		polygamma(x, out)
		gamma(fx, out)
	default:
		for k := range out {
			out[k] = math.NaN()
		}
	}
}

// periodic fills out for functions satisfying f'' = sign * f.
func periodic(d1, d2, sign float64, out []float64) {
	out[0] = d1
	if len(out) > 1 {
		out[1] = d2
	}
	for k := 2; k < len(out); k++ {
		out[k] = sign * out[k-2]
	}
}

// arcsin fills out from out[0] for the inverse sine family:
//
//	f^(k+1) = sign * ((2k-1) x f^(k) + (k-1)^2 f^(k-1)) * den
func arcsin(x, den, sign float64, out []float64) {
	for k := 1; k < len(out); k++ {
		v := float64(2*k-1) * x * out[k-1]
		if k > 1 {
			v += float64((k-1)*(k-1)) * out[k-2]
		}
		out[k] = sign * v * den
	}
}

// arctan fills out from out[0] for the inverse tangent family:
//
//	f^(k+1) = -(2k x f^(k) + k(k-1) f^(k-1)) * den
func arctan(x, den float64, out []float64) {
	for k := 1; k < len(out); k++ {
		v := float64(2*k) * x * out[k-1]
		if k > 1 {
			v += float64(k*(k-1)) * out[k-2]
		}
		out[k] = -v * den
	}
}

// hermite fills out from out[0] for the error functions:
//
//	f^(k+1) = -2x f^(k) - 2(k-1) f^(k-1)
func hermite(x float64, out []float64) {
	for k := 1; k < len(out); k++ {
		v := -2 * x * out[k-1]
		if k > 1 {
			v -= float64(2*(k-1)) * out[k-2]
		}
		out[k] = v
	}
}

// riccati fills out for the solutions of y' = 1 + sign y^2 by computing
// the Taylor coefficients first, then scaling them by k!.
func riccati(fx, sign float64, out []float64) {
	coef := func(j int) float64 {
		if j == 0 {
			return fx
		}
		return out[j-1]
	}
	for k := range out {
		sum := 0.0
		for j := 0; j <= k; j++ {
			sum += coef(j) * coef(k-j)
		}
		sum *= sign
		if k == 0 {
			sum++
		}
		out[k] = sum / float64(k+1)
	}
	for k := range out {
		out[k] *= combinatorics.Factorial(k + 1)
	}
}

// polygamma fills out with the derivatives of log|Γ| at x, that is
// out[k] = ψ^(k)(x) = (-1)^(k+1) k! ζ(k+1, x).
func polygamma(x float64, out []float64) {
	if x <= 0 && x == math.Floor(x) {
		for k := range out {
			out[k] = math.NaN()
		}
		return
	}
	out[0] = mathext.Digamma(x)
	sign := 1.0
	for k := 1; k < len(out); k++ {
		out[k] = sign * combinatorics.Factorial(k) * mathext.Zeta(float64(k+1), x)
		sign = -sign
	}
}

// gamma replaces the derivatives of log|Γ| in out by the derivatives
// of Γ given fx = Γ(x), using Γ' = Γψ:
//
//	Γ^(k+1) = sum_{j=0}^{k} C(k, j) Γ^(j) ψ^(k-j).
//
// No memory is allocated up to order 16.
func gamma(fx float64, out []float64) {
	var buf [16]float64
	logs := buf[:0]
	if len(out) > len(buf) {
		logs = make([]float64, 0, len(out))
	}
	logs = append(logs, out...)
	for k := range out {
		s := fx * logs[k]
		for j := 1; j <= k; j++ {
			s += combinatorics.Binomial(k, j) * out[j-1] * logs[k-j]
		}
		out[k] = s
	}
}
