// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"fmt"
	"slices"

	"github.com/gomlx/nnopt/pkg/core/ir"
	"github.com/gomlx/nnopt/pkg/core/tensors"
	"github.com/gomlx/nnopt/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// groupNormMatch is a matched Reshape -> InstanceNormalization -> Reshape -> Mul -> Add chain.
type groupNormMatch struct {
	reshape1, instanceNorm, reshape2, mul, add *ir.Node

	numGroups   int
	epsilon     float32
	scale, bias *tensors.Tensor
}

// nodes returns the matched nodes, in chain order.
func (m *groupNormMatch) nodes() []*ir.Node {
	return []*ir.Node{m.reshape1, m.instanceNorm, m.reshape2, m.mul, m.add}
}

// FuseGroupNormalization replaces the chain
//
//	Reshape(x, [N, G, -1]) -> InstanceNormalization -> Reshape(back) -> Mul(scale) -> Add(bias)
//
// with a single GroupNormalization(x) node, producing the tensor the Add produced.
//
// The scale of the Mul and the bias of the Add must be constants: they become the
// GroupNormAttrs.Scale and GroupNormAttrs.Bias. The number of groups is the size of the axis 1 of the
// first Reshape's output, or, if its shape is unknown, the size of the InstanceNormalization scale.
// Candidates for which none is known are skipped.
//
// Every intermediate node of the chain must have exactly one consumer, and must not produce a graph
// output, otherwise the candidate is skipped. Each fusion increments CounterFuseGroupNormalization.
func FuseGroupNormalization(ctx *Context) error {
	g := ctx.Graph
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	fused := sets.Make[ir.NodeID]()
	for _, id := range order {
		if fused.Has(id) {
			continue
		}
		node := g.MustNode(id)
		if node.Op() != ir.OpTypeReshape {
			continue
		}
		match, reason := matchGroupNorm(ctx, node)
		if match == nil {
			if reason != "" {
				ctx.debugf("FuseGroupNormalization: candidate %q skipped: %s", id, reason)
			}
			continue
		}
		for _, n := range match.nodes() {
			fused.Insert(n.ID())
		}
		if err := fuseGroupNorm(ctx, match); err != nil {
			return errors.WithMessagef(err, "FuseGroupNormalization: fusing chain starting at %q", id)
		}
		ctx.Counters.Inc(CounterFuseGroupNormalization)
	}
	return nil
}

// matchGroupNorm tries to match the chain starting at reshape1. If it fails, it returns nil and
// the reason, or an empty reason if reshape1 isn't followed by an InstanceNormalization at all.
func matchGroupNorm(ctx *Context, reshape1 *ir.Node) (*groupNormMatch, string) {
	g := ctx.Graph
	m := &groupNormMatch{reshape1: reshape1}
	if reshape1.NumInputs() == 0 {
		return nil, ""
	}

	// Walk down the chain: each stage must be the only consumer of the previous one.
	chain := []ir.OpType{ir.OpTypeInstanceNormalization, ir.OpTypeReshape, ir.OpTypeMul, ir.OpTypeAdd}
	prev := reshape1
	for ii, op := range chain {
		next, reason := nextInChain(g, prev, op)
		if next == nil {
			if ii == 0 {
				// Plain Reshape, not a candidate.
				return nil, ""
			}
			return nil, reason
		}
		switch op {
		case ir.OpTypeInstanceNormalization:
			m.instanceNorm = next
		case ir.OpTypeReshape:
			m.reshape2 = next
		case ir.OpTypeMul:
			m.mul = next
		case ir.OpTypeAdd:
			m.add = next
		default:
		}
		prev = next
	}

	// Affine parameters.
	for _, n := range []*ir.Node{m.mul, m.add} {
		if n.NumInputs() != 2 {
			return nil, fmt.Sprintf("%s %q has %d inputs, wanted 2", n.Op(), n.ID(), n.NumInputs())
		}
	}
	var found bool
	if m.scale, found = ctx.Constants.Get(m.mul.Input(1)); !found {
		return nil, fmt.Sprintf("scale %q of Mul %q is not a constant", m.mul.Input(1), m.mul.ID())
	}
	if m.bias, found = ctx.Constants.Get(m.add.Input(1)); !found {
		return nil, fmt.Sprintf("bias %q of Add %q is not a constant", m.add.Input(1), m.add.ID())
	}

	if fusedID := fusedNodeID(reshape1); g.Has(fusedID) {
		return nil, fmt.Sprintf("node id %q already taken", fusedID)
	}

	// Hyperparameters.
	m.numGroups = groupCount(ctx, m)
	if m.numGroups <= 0 {
		return nil, "number of groups unknown: no shape for the output of the first Reshape, and no InstanceNormalization scale"
	}
	if inputShape, found := ctx.Shapes.Get(reshape1.Input(0)); found && inputShape.Rank() >= 2 {
		if channels := inputShape.Dim(1); channels > 0 && channels%m.numGroups != 0 {
			return nil, fmt.Sprintf("%d channels not divisible in %d groups", channels, m.numGroups)
		}
	}
	attrs, _ := m.instanceNorm.Attrs().(*ir.InstanceNormAttrs)
	m.epsilon = attrs.EpsilonOr(ctx.Config.DefaultEpsilon)
	ctx.debugf("FuseGroupNormalization: matched %q -> %q -> %q -> %q -> %q, groups=%d, epsilon=%g",
		m.reshape1.ID(), m.instanceNorm.ID(), m.reshape2.ID(), m.mul.ID(), m.add.ID(), m.numGroups, m.epsilon)
	return m, ""
}

// nextInChain returns the single consumer of prev, if it is an op node consuming prev's output
// as its first operand.
func nextInChain(g *ir.Graph, prev *ir.Node, op ir.OpType) (*ir.Node, string) {
	if slices.Contains(g.Outputs, prev.Output(0)) {
		return nil, fmt.Sprintf("output %q of %q is a graph output", prev.Output(0), prev.ID())
	}
	successors := g.Successors(prev.ID())
	if len(successors) != 1 {
		return nil, fmt.Sprintf("%s %q has %d consumers, wanted 1", prev.Op(), prev.ID(), len(successors))
	}
	next := g.MustNode(successors[0])
	if next.Op() != op {
		return nil, fmt.Sprintf("%s %q is followed by %s, wanted %s", prev.Op(), prev.ID(), next.Op(), op)
	}
	if next.Input(0) != prev.Output(0) {
		return nil, fmt.Sprintf("%s %q doesn't take %q as its first operand", next.Op(), next.ID(), prev.Output(0))
	}
	return next, ""
}

// groupCount returns the number of channels the InstanceNormalization normalizes over, which are
// the groups of the fused normalization, or 0 if unknown.
func groupCount(ctx *Context, m *groupNormMatch) int {
	if shape, found := ctx.Shapes.OutputShape(m.reshape1); found && shape.Rank() >= 2 {
		return shape.Dim(1)
	}
	if scale, found := ctx.Constants.Get(m.instanceNorm.Input(1)); found && scale.Rank() == 1 {
		return scale.Size()
	}
	return 0
}

func fusedNodeID(reshape1 *ir.Node) ir.NodeID {
	return reshape1.ID() + "/GroupNormalization"
}

// fuseGroupNorm replaces the matched chain by a GroupNormalization node.
//
// The downstream nodes are removed first, so the output of the Add is free to be produced by the new
// node, which is then inserted after the first Reshape, before that one is removed as well.
// Everything InsertNode could fail on is checked before the first removal, so on error the graph
// is unchanged.
func fuseGroupNorm(ctx *Context, m *groupNormMatch) error {
	g := ctx.Graph
	input, output := m.reshape1.Input(0), m.add.Output(0)
	id := fusedNodeID(m.reshape1)
	if g.Has(id) {
		return errors.Wrapf(ir.ErrInvalid, "node id %q already taken", id)
	}
	if producer, found := g.Producer(output); !found || producer != m.add.ID() {
		return errors.Wrapf(ir.ErrInvalid, "output %q is not produced by Add %q", output, m.add.ID())
	}
	for _, n := range []*ir.Node{m.add, m.mul, m.reshape2, m.instanceNorm} {
		g.RemoveNode(n.ID())
	}
	attrs := &ir.GroupNormAttrs{
		NumGroups: m.numGroups,
		Epsilon:   m.epsilon,
		Scale:     m.scale,
		Bias:      m.bias,
	}
	node, err := g.InsertNode(m.reshape1.ID(), id, ir.OpTypeGroupNormalization, []string{input}, []string{output}, attrs)
	if err != nil {
		return err
	}
	g.RemoveNode(m.reshape1.ID())
	klog.V(1).Infof("FuseGroupNormalization: %s", node)
	return nil
}
