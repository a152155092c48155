// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"slices"

	"github.com/gomlx/nnopt/pkg/core/ir"
	"github.com/gomlx/nnopt/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RemoveIdentity removes operators that don't change their input.
//
// It runs in two phases. First it visits a topological snapshot of the graph and:
//
//   - Identity over a constant: the output becomes an alias of the constant in the constant
//     table, and the node is deleted.
//   - Transpose: recolored to Identity if its permutation is the identity, or if its output has
//     at most one non-trivial axis and it's only consumed by Reshape nodes.
//   - Dropout: always recolored to Identity (inference mode); its secondary "mask" output is dropped.
//   - Add: recolored to Identity if exactly one operand is an all-zeros constant of rank <= 1.
//   - Resize: recolored to Identity if its output shape equals the shape of its first input.
//
// Then it elides every Identity node with ir.Graph.RemoveOneNode.
//
// Eliding a node changes the consumers of its input, which may turn a Transpose into a no-op: the
// two phases are repeated until a round changes nothing, so a second run is always a no-op.
//
// Each rewrite of the first phase increments CounterRemoveIdentity, and each elision
// CounterElideIdentity.
func RemoveIdentity(ctx *Context) error {
	for round := 1; ; round++ {
		before := ctx.Counters.Total()
		if err := normalizeNoOps(ctx); err != nil {
			return err
		}
		if err := elideNoOps(ctx); err != nil {
			return err
		}
		if ctx.Counters.Total() == before {
			klog.V(2).Infof("RemoveIdentity: fixed point reached after %d round(s)", round)
			return nil
		}
	}
}

// normalizeNoOps is the first phase of RemoveIdentity.
func normalizeNoOps(ctx *Context) error {
	g := ctx.Graph
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	// removed holds nodes deleted during the traversal, still present in the snapshot.
	removed := sets.Make[ir.NodeID]()
	for _, id := range order {
		if removed.Has(id) {
			continue
		}
		node := g.MustNode(id)
		var rewritten bool
		switch node.Op() {
		case ir.OpTypeIdentity:
			rewritten = foldConstantIdentity(ctx, node)
			if rewritten {
				removed.Insert(id)
			}
		case ir.OpTypeTranspose:
			rewritten, err = transposeToNoOp(ctx, node)
		case ir.OpTypeDropout:
			rewritten, err = dropoutToNoOp(ctx, node, removed)
		case ir.OpTypeAdd:
			rewritten, err = addZeroToNoOp(ctx, node)
		case ir.OpTypeResize:
			rewritten, err = resizeToNoOp(ctx, node)
		default:
			// Other operators are never no-ops.
		}
		if err != nil {
			return errors.WithMessagef(err, "RemoveIdentity: rewriting %s node %q", node.Op(), id)
		}
		if rewritten {
			ctx.Counters.Inc(CounterRemoveIdentity)
		}
	}
	return nil
}

// elideNoOps is the second phase of RemoveIdentity.
func elideNoOps(ctx *Context) error {
	g := ctx.Graph
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	for _, id := range order {
		node := g.MustNode(id)
		if !node.Op().IsNoOp() {
			continue
		}
		if err := g.RemoveOneNode(id); err != nil {
			return errors.WithMessage(err, "RemoveIdentity: eliding no-op")
		}
		ctx.Counters.Inc(CounterElideIdentity)
	}
	return nil
}

// toNoOp recolors the node to the canonical no-op, clearing its attributes.
func toNoOp(ctx *Context, node *ir.Node, reason string) error {
	klog.V(1).Infof("RemoveIdentity: %s node %q is a no-op: %s", node.Op(), node.ID(), reason)
	return ctx.Graph.Recolor(node.ID(), ir.OpTypeIdentity, nil)
}

// foldConstantIdentity handles an Identity whose input is a constant: its output becomes an alias
// of the constant, and the node is deleted outright, since there is nothing left to compute.
func foldConstantIdentity(ctx *Context, node *ir.Node) bool {
	if node.NumInputs() != 1 || len(node.Outputs()) != 1 {
		return false
	}
	input, output := node.Input(0), node.Output(0)
	if !ctx.Constants.Alias(output, input) {
		return false
	}
	klog.V(1).Infof("RemoveIdentity: Identity node %q folded into constant %q", node.ID(), input)
	ctx.Graph.RemoveNode(node.ID())
	return true
}

func transposeToNoOp(ctx *Context, node *ir.Node) (bool, error) {
	attrs, _ := node.Attrs().(*ir.TransposeAttrs)
	if attrs.IsIdentityPermutation() {
		return true, toNoOp(ctx, node, "identity permutation")
	}

	// With at most one non-trivial axis, a permutation doesn't move any element, only
	// the shape changes. That is safe if every consumer reshapes the result anyway.
	shape, found := ctx.Shapes.OutputShape(node)
	if !found || shape.Rank() == 0 || shape.NonTrivialAxes() > 1 {
		return false, nil
	}
	g := ctx.Graph
	if slices.Contains(g.Outputs, node.Output(0)) {
		// The graph output shape would change.
		return false, nil
	}
	successors := g.Successors(node.ID())
	if len(successors) == 0 {
		return false, nil
	}
	for _, succ := range successors {
		if g.MustNode(succ).Op() != ir.OpTypeReshape {
			return false, nil
		}
	}
	return true, toNoOp(ctx, node, "output "+shape.String()+" only consumed by Reshape")
}

// dropoutToNoOp recolors a Dropout, since it has no effect outside training. The secondary
// (mask) outputs are dropped, and their AuxOutput nodes deleted and marked as removed.
// The optional ratio and training_mode inputs are dropped as well, leaving only the data.
func dropoutToNoOp(ctx *Context, node *ir.Node, removed sets.Set[ir.NodeID]) (bool, error) {
	g := ctx.Graph
	if node.NumInputs() == 0 {
		return false, nil
	}
	if err := toNoOp(ctx, node, "inference mode"); err != nil {
		return false, err
	}
	if node.NumInputs() > 1 {
		if err := g.SetInputs(node.ID(), []string{node.Input(0)}); err != nil {
			return false, err
		}
	}
	for {
		mask, ok := g.PopOutput(node.ID())
		if !ok {
			break
		}
		maskID := ir.NodeID(mask)
		if consumers := g.Consumers(mask); len(consumers) > 0 {
			klog.Warningf("RemoveIdentity: dropping output %q of Dropout %q, still consumed by %v", mask, node.ID(), consumers)
		}
		if aux, found := g.Node(maskID); found && aux.Op() == ir.OpTypeAuxOutput {
			g.RemoveNode(maskID)
		}
		removed.Insert(maskID)
	}
	return true, nil
}

// addZeroToNoOp handles x + 0, where 0 is an all-zeros constant of rank <= 1.
// Higher ranks are excluded because the Add may be there to broadcast x.
func addZeroToNoOp(ctx *Context, node *ir.Node) (bool, error) {
	if node.NumInputs() != 2 {
		return false, nil
	}
	lhs, lhsIsConst := ctx.Constants.Get(node.Input(0))
	rhs, rhsIsConst := ctx.Constants.Get(node.Input(1))
	if lhsIsConst == rhsIsConst {
		// Either nothing is known, or it's a constant expression: folding constants is
		// not the job of this pass.
		return false, nil
	}
	zero, x := lhs, node.Input(1)
	if rhsIsConst {
		zero, x = rhs, node.Input(0)
	}
	if zero.Rank() > 1 || !zero.IsAllZeros() {
		return false, nil
	}
	// A scalar x may still be broadcast by a rank-1 zero: check the shapes when known.
	if outputShape, found := ctx.Shapes.OutputShape(node); found {
		if xShape, found := ctx.Shapes.Get(x); found && !xShape.EqualDimensions(outputShape) {
			return false, nil
		}
	}
	if err := toNoOp(ctx, node, "adds zero"); err != nil {
		return false, err
	}
	return true, ctx.Graph.SetInputs(node.ID(), []string{x})
}

// resizeToNoOp handles a Resize whose output has the shape of its input.
// Only the primary input is kept, so the no-op has the single input required for its elision.
func resizeToNoOp(ctx *Context, node *ir.Node) (bool, error) {
	input := node.Input(0)
	if input == "" {
		return false, nil
	}
	outputShape, found := ctx.Shapes.OutputShape(node)
	if !found {
		return false, nil
	}
	inputShape, found := ctx.Shapes.Get(input)
	if !found || !inputShape.EqualDimensions(outputShape) {
		return false, nil
	}
	if err := toNoOp(ctx, node, "output shape equals input shape"); err != nil {
		return false, err
	}
	// SetInputs drops every incoming edge but the one carrying the primary input.
	return true, ctx.Graph.SetInputs(node.ID(), []string{input})
}
