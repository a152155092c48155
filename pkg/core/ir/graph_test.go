// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds x -> a -> b -> c, where each node's output tensor is named after the node.
func chain(t *testing.T) *Graph {
	g := New("chain")
	g.Inputs = []string{"x"}
	g.Outputs = []string{"c"}
	must.M1(g.AddNode("a", OpTypeUnknown, []string{"x"}, []string{"a"}, nil))
	must.M1(g.AddNode("b", OpTypeIdentity, []string{"a"}, []string{"b"}, nil))
	must.M1(g.AddNode("c", OpTypeUnknown, []string{"b"}, []string{"c"}, nil))
	require.NoError(t, g.Validate())
	return g
}

func TestAddNode(t *testing.T) {
	g := chain(t)
	require.Equal(t, 3, g.Len())
	require.Equal(t, []NodeID{"a"}, g.Predecessors("b"))
	require.Equal(t, []NodeID{"c"}, g.Successors("b"))
	producer, found := g.Producer("b")
	require.True(t, found)
	require.Equal(t, NodeID("b"), producer)
	_, found = g.Producer("x")
	require.False(t, found, "graph inputs have no producer")
	require.Equal(t, []NodeID{"b"}, g.Consumers("a"))

	t.Run("DuplicateID", func(t *testing.T) {
		_, err := g.AddNode("a", OpTypeUnknown, nil, []string{"other"}, nil)
		require.ErrorIs(t, err, ErrInvalid)
	})
	t.Run("DuplicateProducer", func(t *testing.T) {
		_, err := g.AddNode("d", OpTypeUnknown, []string{"c"}, []string{"a"}, nil)
		require.ErrorIs(t, err, ErrInvalid)
		require.False(t, g.Has("d"))
	})
	t.Run("WrongAttributes", func(t *testing.T) {
		_, err := g.AddNode("d", OpTypeAdd, []string{"c", "x"}, []string{"d"}, &TransposeAttrs{})
		require.ErrorIs(t, err, ErrInvalid)
	})
	t.Run("Cycle", func(t *testing.T) {
		// "x" is consumed by a, so producing it from a descendant of a closes a cycle.
		_, err := g.AddNode("d", OpTypeUnknown, []string{"c"}, []string{"x"}, nil)
		require.ErrorIs(t, err, ErrCycle)
		require.False(t, g.Has("d"))
		require.NoError(t, g.Validate())
	})
}

func TestAddNodeOutOfOrder(t *testing.T) {
	// Consumers may be added before their producers.
	g := New("out-of-order")
	must.M1(g.AddNode("c", OpTypeUnknown, []string{"b"}, []string{"c"}, nil))
	must.M1(g.AddNode("b", OpTypeUnknown, []string{"a"}, []string{"b"}, nil))
	must.M1(g.AddNode("a", OpTypeUnknown, []string{"x"}, []string{"a"}, nil))
	require.NoError(t, g.Validate())
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []NodeID{"a", "b", "c"}, order)
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	g := New("diamond")
	must.M1(g.AddNode("left", OpTypeUnknown, []string{"top"}, []string{"left"}, nil))
	must.M1(g.AddNode("top", OpTypeUnknown, []string{"x"}, []string{"top"}, nil))
	must.M1(g.AddNode("right", OpTypeUnknown, []string{"top"}, []string{"right"}, nil))
	must.M1(g.AddNode("bottom", OpTypeAdd, []string{"left", "right"}, []string{"bottom"}, nil))
	for range 10 {
		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		require.Equal(t, []NodeID{"top", "left", "right", "bottom"}, order)
	}

	// The snapshot doesn't follow later mutations.
	order := must.M1(g.TopologicalOrder())
	g.RemoveNode("left")
	require.Len(t, order, 4)
	require.Len(t, must.M1(g.TopologicalOrder()), 3)
}

func TestRemoveNode(t *testing.T) {
	g := chain(t)
	g.RemoveNode("b")
	require.False(t, g.Has("b"))
	require.Empty(t, g.Successors("a"))
	require.Empty(t, g.Predecessors("c"))
	_, found := g.Producer("b")
	require.False(t, found)
	// c still refers to "b", which is now a dangling (producer-less) tensor.
	require.Equal(t, []string{"b"}, g.MustNode("c").Inputs())
	require.NoError(t, g.Validate())

	// Removing a missing node is a no-op.
	g.RemoveNode("b")
	require.Panics(t, func() { g.MustNode("b") })
}

func TestSetInputs(t *testing.T) {
	g := New("set-inputs")
	must.M1(g.AddNode("p0", OpTypeUnknown, []string{"x"}, []string{"p0"}, nil))
	must.M1(g.AddNode("p1", OpTypeUnknown, []string{"x"}, []string{"p1"}, nil))
	must.M1(g.AddNode("resize", OpTypeResize, []string{"p0", "p1", "scales"}, []string{"resize"}, nil))
	require.Equal(t, []NodeID{"p0", "p1"}, g.Predecessors("resize"))

	require.NoError(t, g.SetInputs("resize", []string{"p0"}))
	require.Equal(t, []NodeID{"p0"}, g.Predecessors("resize"))
	require.Empty(t, g.Successors("p1"))
	require.Empty(t, g.Consumers("scales"))
	require.NoError(t, g.Validate())

	require.ErrorIs(t, g.SetInputs("missing", nil), ErrNotFound)
	require.ErrorIs(t, g.SetInputs("p0", []string{"p0"}), ErrCycle)
}

func TestRemoveEdge(t *testing.T) {
	g := chain(t)
	g.RemoveEdge("a", "b")
	require.Empty(t, g.Predecessors("b"))
	require.Empty(t, g.Successors("a"))
	// Inputs were left untouched, so the graph is now inconsistent.
	require.ErrorIs(t, g.Validate(), ErrInvalid)
}

func TestRecolor(t *testing.T) {
	g := chain(t)
	require.NoError(t, g.Recolor("a", OpTypeTranspose, &TransposeAttrs{Perm: []int{1, 0}}))
	n := g.MustNode("a")
	require.Equal(t, OpTypeTranspose, n.Op())
	require.NoError(t, g.Recolor("a", OpTypeIdentity, nil))
	require.Equal(t, OpTypeIdentity, n.Op())
	require.Nil(t, n.Attrs())
	require.Same(t, n, g.MustNode("a"), "recoloring keeps the node identity")

	require.ErrorIs(t, g.Recolor("a", OpTypeDropout, &TransposeAttrs{}), ErrInvalid)
	require.ErrorIs(t, g.Recolor("a", OpTypeAuxOutput, nil), ErrInvalid)
	require.ErrorIs(t, g.Recolor("zz", OpTypeIdentity, nil), ErrNotFound)
}

func TestRemoveOneNode(t *testing.T) {
	g := chain(t)
	require.NoError(t, g.RemoveOneNode("b"))
	require.False(t, g.Has("b"))
	require.Equal(t, []string{"a"}, g.MustNode("c").Inputs())
	require.Equal(t, []NodeID{"c"}, g.Successors("a"))
	require.NoError(t, g.Validate())

	t.Run("RenamesGraphOutputs", func(t *testing.T) {
		g := chain(t)
		require.NoError(t, g.Recolor("c", OpTypeIdentity, nil))
		require.NoError(t, g.RemoveOneNode("c"))
		require.Equal(t, []string{"b"}, g.Outputs)
	})

	t.Run("RepeatedInput", func(t *testing.T) {
		g := chain(t)
		must.M1(g.AddNode("square", OpTypeMul, []string{"b", "b"}, []string{"square"}, nil))
		require.NoError(t, g.RemoveOneNode("b"))
		require.Equal(t, []string{"a", "a"}, g.MustNode("square").Inputs())
		require.NoError(t, g.Validate())
	})

	t.Run("Preconditions", func(t *testing.T) {
		g := chain(t)
		err := g.RemoveOneNode("a")
		require.ErrorIs(t, err, ErrPrecondition, "not a no-op")

		must.M1(g.AddNode("noop2", OpTypeIdentity, []string{"a", "x"}, []string{"noop2"}, nil))
		require.ErrorIs(t, g.RemoveOneNode("noop2"), ErrPrecondition, "2 inputs")
		require.True(t, g.Has("noop2"), "graph left unchanged")

		require.ErrorIs(t, g.RemoveOneNode("missing"), ErrNotFound)
	})
}

func TestInsertNode(t *testing.T) {
	g := chain(t)
	g.RemoveNode("c")
	n, err := g.InsertNode("a", "fused", OpTypeGroupNormalization, []string{"x"}, []string{"c"}, &GroupNormAttrs{NumGroups: 2})
	require.NoError(t, err)
	require.Equal(t, NodeID("fused"), n.ID())
	require.Equal(t, []NodeID{"a", "fused", "b"}, g.Nodes())
	require.NoError(t, g.Validate())

	_, err = g.InsertNode("missing", "other", OpTypeUnknown, nil, []string{"other"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = g.InsertNode("a", "other", OpTypeUnknown, nil, []string{"c"}, nil)
	require.ErrorIs(t, err, ErrInvalid, "c already has a producer")
}

func TestAuxOutput(t *testing.T) {
	g := New("dropout")
	must.M1(g.AddNode("dropout", OpTypeDropout, []string{"x"}, []string{"dropout", "mask"}, &DropoutAttrs{Ratio: 0.1}))
	must.M1(g.AddNode("mask", OpTypeAuxOutput, nil, []string{"mask"}, &AuxOutputAttrs{Parent: "dropout", Index: 1}))
	must.M1(g.AddNode("use_mask", OpTypeUnknown, []string{"mask"}, []string{"use_mask"}, nil))
	require.NoError(t, g.Validate())
	require.Equal(t, []NodeID{"mask"}, g.Successors("dropout"))
	producer, _ := g.Producer("mask")
	require.Equal(t, NodeID("mask"), producer)

	_, err := g.AddNode("bad", OpTypeAuxOutput, nil, []string{"bad"}, &AuxOutputAttrs{Parent: "dropout", Index: 1})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = g.AddNode("bad", OpTypeAuxOutput, nil, []string{"bad"}, nil)
	require.ErrorIs(t, err, ErrInvalid)

	popped, ok := g.PopOutput("dropout")
	require.True(t, ok)
	require.Equal(t, "mask", popped)
	_, ok = g.PopOutput("dropout")
	require.False(t, ok, "single output can't be popped")
	// Mask is no longer declared by its parent.
	require.Error(t, g.Validate())
	g.RemoveNode("mask")
	require.NoError(t, g.Validate())
}

func TestParseOpType(t *testing.T) {
	assert.Equal(t, OpTypeInstanceNormalization, ParseOpType("InstanceNormalization"))
	assert.Equal(t, OpTypeAdd, ParseOpType("add"))
	assert.Equal(t, OpTypeUnknown, ParseOpType("Conv"))
	assert.Equal(t, OpTypeUnknown, ParseOpType("Invalid"))
	assert.Equal(t, "GroupNormalization", OpTypeGroupNormalization.String())
	assert.True(t, OpTypeIdentity.IsNoOp())
	assert.False(t, OpTypeDropout.IsNoOp())
}

func TestTransposeAttrs(t *testing.T) {
	assert.True(t, (&TransposeAttrs{Perm: []int{0, 1, 2, 3}}).IsIdentityPermutation())
	assert.False(t, (&TransposeAttrs{Perm: []int{0, 2, 1, 3}}).IsIdentityPermutation())
	assert.False(t, (&TransposeAttrs{}).IsIdentityPermutation())
	var nilAttrs *TransposeAttrs
	assert.False(t, nilAttrs.IsIdentityPermutation())

	eps := float32(1e-3)
	attrs := &InstanceNormAttrs{Epsilon: &eps}
	clone := attrs.CloneAttributes().(*InstanceNormAttrs)
	*clone.Epsilon = 1
	assert.Equal(t, float32(1e-3), attrs.EpsilonOr(1e-5))
	assert.Equal(t, float32(1e-5), (&InstanceNormAttrs{}).EpsilonOr(1e-5))
}

func TestErrorsAreWrapped(t *testing.T) {
	err := chain(t).RemoveOneNode("a")
	require.True(t, errors.Is(err, ErrPrecondition))
	require.Contains(t, err.Error(), `RemoveOneNode("a")`)
}
