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

// Package graph builds and evaluates expression graphs.
//
// A Builder creates nodes. Nodes are interned: building the same
// expression twice returns the same node, and additions and
// multiplications are interned regardless of the order of their
// operands. Expressions of constants are folded when they are built.
//
// Build freezes the nodes reachable from a set of outputs into a Graph,
// linearized in forward order: inputs first, then every other node after
// its children.
package graph

import (
	"cmp"
	"math"
	"strconv"

	"github.com/gx-org/hoad/base/fmterr"
	"github.com/gx-org/hoad/base/ordered"
	"github.com/gx-org/hoad/univariate"
)

type (
	def struct {
		kind  Kind
		op    Op
		fn    univariate.Func
		x, y  int32
		value float64
		name  string
	}

	key struct {
		kind Kind
		op   Op
		fn   univariate.Func
		x, y int32
		bits uint64
		name string
	}

	// Builder creates the nodes of expression graphs.
	Builder struct {
		nodes  []def
		intern *ordered.Map[key, int32]
		inputs *ordered.Map[string, int32]
		errs   fmterr.Errors
	}

	// Node in an expression graph.
	// The zero value is an invalid node.
	Node struct {
		b  *Builder
		id int32
	}
)

// NewBuilder returns a new builder.
func NewBuilder() *Builder {
	return &Builder{
		intern: ordered.NewMap[key, int32](),
		inputs: ordered.NewMap[string, int32](),
	}
}

func (d def) key() key {
	k := key{kind: d.kind, op: d.op, fn: d.fn, x: d.x, y: d.y, name: d.name}
	if d.kind == Constant {
		k.bits = math.Float64bits(d.value)
	}
	return k
}

func (b *Builder) node(d def) Node {
	id, _ := b.intern.LoadOrStore(d.key(), func() int32 {
		b.nodes = append(b.nodes, d)
		return int32(len(b.nodes) - 1)
	})
	return Node{b: b, id: id}
}

func (b *Builder) check(n Node) bool {
	if n.b == b {
		return true
	}
	if n.b == nil {
		if b.errs.Empty() {
			b.errs.Append(fmterr.Configf("invalid node"))
		}
		return false
	}
	return b.errs.Append(fmterr.Configf("node %s has been created by another builder", n))
}

// Input returns the input with the given name.
// Calling Input twice with the same name returns the same node.
func (b *Builder) Input(name string) Node {
	if name == "" {
		b.errs.Append(fmterr.Configf("input name cannot be empty"))
		return Node{}
	}
	id, _ := b.inputs.LoadOrStore(name, func() int32 {
		return b.node(def{kind: Input, name: name}).id
	})
	return Node{b: b, id: id}
}

// Inputs returns all the inputs created by the builder
// in the order in which they have been declared.
func (b *Builder) Inputs() []Node {
	var ins []Node
	for id := range b.inputs.Values() {
		ins = append(ins, Node{b: b, id: id})
	}
	return ins
}

// Const returns a constant node.
func (b *Builder) Const(v float64) Node {
	return b.node(def{kind: Constant, value: v})
}

// Apply returns the node f(x).
func (b *Builder) Apply(f univariate.Func, x Node) Node {
	if !b.check(x) {
		return Node{}
	}
	if !f.Valid() {
		b.errs.Append(fmterr.Configf("invalid function %s applied to %s", f, x))
		return Node{}
	}
	dx := b.nodes[x.id]
	if dx.kind == Constant {
		return b.Const(f.Eval(dx.value))
	}
	return b.node(def{kind: Unary, fn: f, x: x.id})
}

func (b *Builder) binary(op Op, x, y Node) Node {
	okX, okY := b.check(x), b.check(y)
	if !okX || !okY {
		return Node{}
	}
	dx, dy := b.nodes[x.id], b.nodes[y.id]
	if dx.kind == Constant && dy.kind == Constant {
		return b.Const(op.Eval(dx.value, dy.value))
	}
	if op.Commutative() && y.id < x.id {
		x, y = y, x
	}
	return b.node(def{kind: Binary, op: op, x: x.id, y: y.id})
}

// Add returns x+y.
func (b *Builder) Add(x, y Node) Node { return b.binary(Add, x, y) }

// Sub returns x-y.
func (b *Builder) Sub(x, y Node) Node { return b.binary(Sub, x, y) }

// Mul returns x*y.
func (b *Builder) Mul(x, y Node) Node { return b.binary(Mul, x, y) }

// Div returns x/y.
func (b *Builder) Div(x, y Node) Node { return b.binary(Div, x, y) }

// Neg returns -x.
func (b *Builder) Neg(x Node) Node { return b.Apply(univariate.Neg, x) }

// Inv returns 1/x.
func (b *Builder) Inv(x Node) Node { return b.Apply(univariate.Inv, x) }

// Exp returns exp(x).
func (b *Builder) Exp(x Node) Node { return b.Apply(univariate.Exp, x) }

// Log returns log(x).
func (b *Builder) Log(x Node) Node { return b.Apply(univariate.Log, x) }

// Sqrt returns sqrt(x).
func (b *Builder) Sqrt(x Node) Node { return b.Apply(univariate.Sqrt, x) }

// Sin returns sin(x).
func (b *Builder) Sin(x Node) Node { return b.Apply(univariate.Sin, x) }

// Cos returns cos(x).
func (b *Builder) Cos(x Node) Node { return b.Apply(univariate.Cos, x) }

// Tan returns tan(x).
func (b *Builder) Tan(x Node) Node { return b.Apply(univariate.Tan, x) }

// Asin returns asin(x).
func (b *Builder) Asin(x Node) Node { return b.Apply(univariate.Asin, x) }

// Acos returns acos(x).
func (b *Builder) Acos(x Node) Node { return b.Apply(univariate.Acos, x) }

// Atan returns atan(x).
func (b *Builder) Atan(x Node) Node { return b.Apply(univariate.Atan, x) }

// Sinh returns sinh(x).
func (b *Builder) Sinh(x Node) Node { return b.Apply(univariate.Sinh, x) }

// Cosh returns cosh(x).
func (b *Builder) Cosh(x Node) Node { return b.Apply(univariate.Cosh, x) }

// Tanh returns tanh(x).
func (b *Builder) Tanh(x Node) Node { return b.Apply(univariate.Tanh, x) }

// Asinh returns asinh(x).
func (b *Builder) Asinh(x Node) Node { return b.Apply(univariate.Asinh, x) }

// Acosh returns acosh(x).
func (b *Builder) Acosh(x Node) Node { return b.Apply(univariate.Acosh, x) }

// Atanh returns atanh(x).
func (b *Builder) Atanh(x Node) Node { return b.Apply(univariate.Atanh, x) }

// Erf returns erf(x).
func (b *Builder) Erf(x Node) Node { return b.Apply(univariate.Erf, x) }

// Erfc returns erfc(x).
func (b *Builder) Erfc(x Node) Node { return b.Apply(univariate.Erfc, x) }

// Lgamma returns log|Γ(x)|.
func (b *Builder) Lgamma(x Node) Node { return b.Apply(univariate.Lgamma, x) }

// Tgamma returns Γ(x).
func (b *Builder) Tgamma(x Node) Node { return b.Apply(univariate.Tgamma, x) }

// Len returns the number of nodes created by the builder.
func (b *Builder) Len() int {
	return len(b.nodes)
}

// Valid returns true if the node has been created by a builder.
func (n Node) Valid() bool {
	return n.b != nil
}

// Builder returns the builder which has created the node.
func (n Node) Builder() *Builder {
	return n.b
}

// ID returns the creation index of the node in its builder.
func (n Node) ID() int {
	return int(n.id)
}

func (n Node) def() *def {
	return &n.b.nodes[n.id]
}

// Kind returns the kind of the node.
func (n Node) Kind() Kind {
	if n.b == nil {
		return InvalidKind
	}
	return n.def().kind
}

// IsInput returns true if the node is an input.
func (n Node) IsInput() bool {
	return n.Kind() == Input
}

// IsConstant returns true if the node is a constant.
func (n Node) IsConstant() bool {
	return n.Kind() == Constant
}

// Compare the position of two nodes of the same builder in forward
// order: inputs come first, then nodes in their creation order.
// It returns -1 if n is evaluated before m, 0 if n == m, +1 otherwise.
func (n Node) Compare(m Node) int {
	nIn, mIn := n.IsInput(), m.IsInput()
	if nIn != mIn {
		if nIn {
			return -1
		}
		return 1
	}
	return cmp.Compare(n.id, m.id)
}

// Before returns true if n is evaluated before m.
func (n Node) Before(m Node) bool {
	return n.Compare(m) < 0
}

// String returns a short name for the node.
func (n Node) String() string {
	if n.b == nil {
		return "invalid"
	}
	d := n.def()
	id := strconv.Itoa(int(n.id))
	switch d.kind {
	case Input:
		return d.name
	case Constant:
		return strconv.FormatFloat(d.value, 'g', -1, 64)
	case Unary:
		return d.fn.String() + "#" + id
	case Binary:
		return d.op.String() + "#" + id
	}
	return "node#" + id
}
