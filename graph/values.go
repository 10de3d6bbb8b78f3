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

import "github.com/gx-org/hoad/base/fmterr"

// Values stores the value of every node of a graph.
// Values are not safe for concurrent use: each goroutine evaluating a
// graph needs its own instance.
type Values struct {
	g         *Graph
	vals      []float64
	set       []bool
	evaluated bool
}

// NewValues returns a new set of values for the graph.
// Constants are set, inputs are not.
func (g *Graph) NewValues() *Values {
	v := &Values{
		g:    g,
		vals: make([]float64, len(g.entries)),
		set:  make([]bool, g.inputs),
	}
	for pos, e := range g.entries {
		if e.def.kind == Constant {
			v.vals[pos] = e.def.value
		}
	}
	return v
}

// Graph returns the graph of the values.
func (v *Values) Graph() *Graph {
	return v.g
}

func (v *Values) pos(n Node) (int, error) {
	pos, ok := v.g.Pos(n)
	if !ok {
		return -1, fmterr.Misusef("node %s is not in the graph", n)
	}
	return pos, nil
}

// Set the value of an input.
func (v *Values) Set(n Node, x float64) error {
	pos, err := v.pos(n)
	if err != nil {
		return err
	}
	if pos >= v.g.inputs {
		return fmterr.Misusef("cannot set the value of %s: node is a %s, not an input", n, n.Kind())
	}
	v.vals[pos] = x
	v.set[pos] = true
	v.evaluated = false
	return nil
}

// Evaluate computes the value of all the nodes in forward order.
// All inputs need to be set.
func (v *Values) Evaluate() error {
	for pos, ok := range v.set {
		if !ok {
			return fmterr.Misusef("input %s has not been set", v.g.entries[pos].node)
		}
	}
	vals := v.vals
	for pos := v.g.inputs; pos < len(v.g.entries); pos++ {
		e := &v.g.entries[pos]
		switch e.def.kind {
		case Unary:
			vals[pos] = e.def.fn.Eval(vals[e.x])
		case Binary:
			vals[pos] = e.def.op.Eval(vals[e.x], vals[e.y])
		}
	}
	v.evaluated = true
	return nil
}

// Evaluated returns true if the values are up to date with the inputs.
func (v *Values) Evaluated() bool {
	return v.evaluated
}

// Get returns the value of a node.
func (v *Values) Get(n Node) (float64, error) {
	pos, err := v.pos(n)
	if err != nil {
		return 0, err
	}
	switch {
	case pos < v.g.inputs:
		if !v.set[pos] {
			return 0, fmterr.Misusef("input %s has not been set", n)
		}
	case v.g.entries[pos].def.kind == Constant:
	case !v.evaluated:
		return 0, fmterr.Misusef("cannot read %s: values have not been evaluated since the last input change", n)
	}
	return v.vals[pos], nil
}

// At returns the value of the node at a given position without any check.
func (v *Values) At(pos int) float64 {
	return v.vals[pos]
}
