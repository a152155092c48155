// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
	"strings"
)

// NodeID identifies a node in a Graph. It is stable across recoloring: changing the operator or
// attributes of a node keeps its id.
type NodeID string

// Node is one operator in the Graph.
//
// Edges are implicit: a node depends on the producer of each of its input tensors. Inputs and
// outputs are therefore only changed through Graph methods, which keep the edges consistent.
type Node struct {
	id      NodeID
	op      OpType
	attrs   Attributes
	inputs  []string
	outputs []string
}

// ID returns the stable node identifier.
func (n *Node) ID() NodeID { return n.id }

// Op returns the operator kind.
func (n *Node) Op() OpType { return n.op }

// Attrs returns the operator attributes, possibly nil.
func (n *Node) Attrs() Attributes { return n.attrs }

// Inputs returns the names of the input tensors, in operand order. It must not be modified.
func (n *Node) Inputs() []string { return n.inputs }

// NumInputs returns len(Inputs()).
func (n *Node) NumInputs() int { return len(n.inputs) }

// Input returns the name of the i-th input tensor, or "" if there is no such input.
func (n *Node) Input(i int) string {
	if i < 0 || i >= len(n.inputs) {
		return ""
	}
	return n.inputs[i]
}

// Outputs returns the names of the tensors declared as outputs. It must not be modified.
//
// Only Outputs()[0] is produced by the node itself, except for AuxOutput nodes. The secondary
// outputs of a multi-output operator are produced by AuxOutput nodes.
func (n *Node) Outputs() []string { return n.outputs }

// Output returns the name of the i-th output tensor, or "" if there is no such output.
func (n *Node) Output(i int) string {
	if i < 0 || i >= len(n.outputs) {
		return ""
	}
	return n.outputs[i]
}

// producedTensor is the one tensor this node registers as producer of, or "" if none.
func (n *Node) producedTensor() string {
	return n.Output(0)
}

// auxParent returns the parent of an AuxOutput node, or "" for any other node.
func (n *Node) auxParent() NodeID {
	if n.op != OpTypeAuxOutput {
		return ""
	}
	if attrs, ok := n.attrs.(*AuxOutputAttrs); ok && attrs != nil {
		return attrs.Parent
	}
	return ""
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%s: %s(%s) -> [%s]", n.id, n.op, strings.Join(n.inputs, ", "), strings.Join(n.outputs, ", "))
	if n.attrs != nil {
		_, _ = fmt.Fprintf(&sb, " %+v", n.attrs)
	}
	return sb.String()
}

func newNode(id NodeID, op OpType, inputs, outputs []string, attrs Attributes) *Node {
	return &Node{
		id:      id,
		op:      op,
		attrs:   attrs,
		inputs:  slices.Clone(inputs),
		outputs: slices.Clone(outputs),
	}
}
