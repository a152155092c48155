// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnopt/pkg/core/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassesByName(t *testing.T) {
	passes := must.M1(PassesByName(""))
	require.Len(t, passes, 2)
	assert.Equal(t, "RemoveIdentity", passes[0].Name)
	assert.Equal(t, "FuseGroupNormalization", passes[1].Name)

	passes = must.M1(PassesByName(" fusegroupnormalization, RemoveIdentity "))
	require.Len(t, passes, 2)
	assert.Equal(t, "FuseGroupNormalization", passes[0].Name)
	assert.Equal(t, "RemoveIdentity", passes[1].Name)

	_, err := PassesByName("RemoveIdentity,ConstantFolding")
	require.ErrorContains(t, err, "ConstantFolding")
}

func TestRunDefaultPasses(t *testing.T) {
	// A Dropout between the Reshape and the Mul hides the chain until it's removed.
	ctx := groupNormGraph(nil)
	g := ctx.Graph
	require.NoError(t, g.SetInputs("mul", []string{"drop", "gamma"}))
	must.M1(g.AddNode("drop", ir.OpTypeDropout, []string{"r2"}, []string{"drop"}, &ir.DropoutAttrs{Ratio: 0.2}))
	require.NoError(t, g.Validate())

	require.NoError(t, Run(ctx, DefaultPasses()...))
	assert.Equal(t, []ir.NodeID{"r1/GroupNormalization", "relu"}, must.M1(g.TopologicalOrder()))
	assert.Equal(t, 1, ctx.Counters.Get(CounterRemoveIdentity))
	assert.Equal(t, 1, ctx.Counters.Get(CounterElideIdentity))
	assert.Equal(t, 1, ctx.Counters.Get(CounterFuseGroupNormalization))
	assert.Equal(t, 3, ctx.Counters.Total())
}

func TestRunErrors(t *testing.T) {
	ctx := newTestContext()
	failing := Pass{Name: "Failing", Run: func(ctx *Context) error {
		ctx.Graph.MustNode("missing")
		return nil
	}}
	var ran bool
	after := Pass{Name: "After", Run: func(*Context) error {
		ran = true
		return nil
	}}
	err := Run(ctx, failing, after)
	require.ErrorContains(t, err, "pass Failing")
	require.ErrorContains(t, err, "missing")
	assert.False(t, ran, "passes after a failure must not run")

	// Panics that are not errors are not swallowed.
	require.Panics(t, func() {
		_ = Run(ctx, Pass{Name: "Broken", Run: func(*Context) error { panic("not an error") }})
	})

	// Errors returned by the pass are wrapped too.
	err = Run(ctx, Pass{Name: "Precondition", Run: func(ctx *Context) error {
		must.M1(ctx.Graph.AddNode("id", ir.OpTypeIdentity, []string{"a", "b"}, []string{"id"}, nil))
		return RemoveIdentity(ctx)
	}})
	require.ErrorIs(t, err, ir.ErrPrecondition)
	require.ErrorContains(t, err, "pass Precondition")
}

func TestRunRecoversExceptions(t *testing.T) {
	ctx := newTestContext()
	err := Run(ctx, Pass{Name: "Exception", Run: func(*Context) error {
		exceptions.Panicf("invariant %d broken", 7)
		return nil
	}})
	require.ErrorContains(t, err, "invariant 7 broken")
}
