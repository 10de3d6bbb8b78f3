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

import (
	"fmt"
	"slices"
	"strings"

	gxfmt "github.com/gx-org/hoad/base/fmt"
	"github.com/gx-org/hoad/base/fmterr"
	"github.com/gx-org/hoad/univariate"
)

type (
	entry struct {
		node Node
		def  def
		// Positions of the children in the graph.
		x, y int
	}

	// Graph is a frozen expression graph.
	// A graph is immutable and can be shared between goroutines.
	Graph struct {
		b       *Builder
		entries []entry
		pos     map[int32]int
		inputs  int
		outputs []int
	}
)

type color uint8

const (
	white color = iota
	grey
	black
)

// Build returns the graph of all the nodes reachable from the outputs.
func (b *Builder) Build(outputs ...Node) (*Graph, error) {
	if !b.errs.Empty() {
		return nil, b.errs.ToError()
	}
	if len(outputs) == 0 {
		return nil, fmterr.Configf("cannot build a graph without output")
	}
	var errs fmterr.Errors
	for i, out := range outputs {
		if out.b != b {
			errs.Append(fmterr.Configf("output %d (%s) has not been created by this builder", i, out))
		}
	}
	if !errs.Empty() {
		return nil, errs.ToError()
	}
	colors := make([]color, len(b.nodes))
	var reached []Node
	var visit func(id int32) error
	visit = func(id int32) error {
		switch colors[id] {
		case black:
			return nil
		case grey:
			return fmterr.Configf("cycle detected at node %s", Node{b: b, id: id})
		}
		colors[id] = grey
		d := b.nodes[id]
		switch d.kind {
		case Unary:
			if err := visit(d.x); err != nil {
				return err
			}
		case Binary:
			if err := visit(d.x); err != nil {
				return err
			}
			if err := visit(d.y); err != nil {
				return err
			}
		}
		colors[id] = black
		reached = append(reached, Node{b: b, id: id})
		return nil
	}
	for _, out := range outputs {
		if err := visit(out.id); err != nil {
			return nil, err
		}
	}
	slices.SortFunc(reached, Node.Compare)
	g := &Graph{
		b:       b,
		entries: make([]entry, len(reached)),
		pos:     make(map[int32]int, len(reached)),
	}
	for i, n := range reached {
		g.pos[n.id] = i
		if n.IsInput() {
			g.inputs++
		}
	}
	for i, n := range reached {
		e := entry{node: n, def: *n.def(), x: -1, y: -1}
		switch e.def.kind {
		case Unary:
			e.x = g.pos[e.def.x]
		case Binary:
			e.x, e.y = g.pos[e.def.x], g.pos[e.def.y]
		}
		if (e.x >= 0 && e.x >= i) || (e.y >= 0 && e.y >= i) {
			return nil, fmterr.Internalf("node %s at position %d is evaluated before its children", n, i)
		}
		g.entries[i] = e
	}
	for _, out := range outputs {
		g.outputs = append(g.outputs, g.pos[out.id])
	}
	return g, nil
}

// Builder returns the builder which has created the nodes of the graph.
func (g *Graph) Builder() *Builder {
	return g.b
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.entries)
}

// NumInputs returns the number of inputs of the graph.
// Inputs occupy the first positions of the graph.
func (g *Graph) NumInputs() int {
	return g.inputs
}

// Inputs returns the inputs of the graph in forward order.
func (g *Graph) Inputs() []Node {
	ins := make([]Node, g.inputs)
	for i := range ins {
		ins[i] = g.entries[i].node
	}
	return ins
}

// Input returns the input with the given name.
func (g *Graph) Input(name string) (Node, bool) {
	for _, e := range g.entries[:g.inputs] {
		if e.def.name == name {
			return e.node, true
		}
	}
	return Node{}, false
}

// Outputs returns the outputs of the graph.
func (g *Graph) Outputs() []Node {
	outs := make([]Node, len(g.outputs))
	for i, pos := range g.outputs {
		outs[i] = g.entries[pos].node
	}
	return outs
}

// Node returns the node at a given position.
func (g *Graph) Node(pos int) Node {
	return g.entries[pos].node
}

// Pos returns the position of a node in forward order.
func (g *Graph) Pos(n Node) (int, bool) {
	if n.b != g.b {
		return -1, false
	}
	pos, ok := g.pos[n.id]
	return pos, ok
}

// Contains returns true if the node is in the graph.
func (g *Graph) Contains(n Node) bool {
	_, ok := g.Pos(n)
	return ok
}

// Kind returns the kind of the node at a position.
func (g *Graph) Kind(pos int) Kind {
	return g.entries[pos].def.kind
}

// Op returns the operator of the binary node at a position.
func (g *Graph) Op(pos int) Op {
	return g.entries[pos].def.op
}

// Func returns the function of the unary node at a position.
func (g *Graph) Func(pos int) univariate.Func {
	return g.entries[pos].def.fn
}

// Children returns the positions of the children of a node.
// A missing child has a position of -1.
func (g *Graph) Children(pos int) (x, y int) {
	e := &g.entries[pos]
	return e.x, e.y
}

// Value returns the value of a constant node.
func (g *Graph) Value(pos int) float64 {
	return g.entries[pos].def.value
}

func (g *Graph) expr(pos int) string {
	e := &g.entries[pos]
	switch e.def.kind {
	case Unary:
		return fmt.Sprintf("%s = %s(%s)", e.node, e.def.fn, g.entries[e.x].node)
	case Binary:
		return fmt.Sprintf("%s = %s %s %s", e.node, g.entries[e.x].node, e.def.op.Symbol(), g.entries[e.y].node)
	}
	return fmt.Sprintf("%s %s", e.def.kind, e.node)
}

// String returns the list of nodes in forward order.
func (g *Graph) String() string {
	var s strings.Builder
	for pos := range g.entries {
		s.WriteString(g.expr(pos))
		s.WriteString("\n")
	}
	outs := make([]string, len(g.outputs))
	for i, out := range g.Outputs() {
		outs[i] = out.String()
	}
	return gxfmt.Number(s.String()) + "outputs: " + strings.Join(outs, ", ") + "\n"
}
