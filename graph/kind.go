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

package graph

import "fmt"

// Kind of a node.
type Kind uint8

// Node kinds.
const (
	InvalidKind Kind = iota
	Input
	Constant
	Unary
	Binary
)

// String representation of the kind.
func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case Constant:
		return "constant"
	case Unary:
		return "unary"
	case Binary:
		return "binary"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Op is the operator of a binary node.
type Op uint8

// Binary operators.
const (
	InvalidOp Op = iota
	Add
	Sub
	Mul
	Div
)

// Eval applies the operator.
func (op Op) Eval(x, y float64) float64 {
	switch op {
	case Add:
		return x + y
	case Sub:
		return x - y
	case Mul:
		return x * y
	case Div:
		return x / y
	}
	panic(fmt.Sprintf("cannot evaluate %s", op))
}

// Commutative returns true if the operands of the operator can be swapped.
func (op Op) Commutative() bool {
	return op == Add || op == Mul
}

// Symbol returns the symbol of the operator.
func (op Op) Symbol() string {
	switch op {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	}
	return "?"
}

// String representation of the operator.
func (op Op) String() string {
	switch op {
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Div:
		return "div"
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}
