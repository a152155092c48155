// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optimizer implements semantics-preserving rewrite passes over the graph IR of package ir.
//
// Passes take a *Context, which aggregates the graph, the constant and shape tables produced by
// the upstream loader and shape inference, and the rewrite counters. The passes:
//
//   - RemoveIdentity: recolors no-op Transpose, Dropout, Add and Resize nodes to Identity,
//     folds Identity nodes over constants, and then elides every Identity.
//   - FuseGroupNormalization: replaces Reshape -> InstanceNormalization -> Reshape -> Mul -> Add
//     with a single GroupNormalization.
//
// Passes run sequentially, each with exclusive access to the Context: none of this is safe for
// concurrent use, except Counters.
package optimizer

import (
	"github.com/gomlx/nnopt/pkg/core/ir"
	"k8s.io/klog/v2"
)

// Context is the mutable state threaded through every pass.
type Context struct {
	Graph     *ir.Graph
	Constants *ConstantTable
	Shapes    *ShapeTable
	Counters  *Counters
	Config    Config
}

// NewContext creates a Context for the given graph and tables. Nil tables are replaced by empty ones.
func NewContext(graph *ir.Graph, constants *ConstantTable, shapes *ShapeTable, options ...Option) *Context {
	if constants == nil {
		constants = NewConstantTable()
	}
	if shapes == nil {
		shapes = NewShapeTable()
	}
	ctx := &Context{
		Graph:     graph,
		Constants: constants,
		Shapes:    shapes,
		Counters:  NewCounters(),
		Config:    DefaultConfig(),
	}
	for _, option := range options {
		option(&ctx.Config)
	}
	return ctx
}

// debugf logs pattern-matching diagnostics: always if Config.DebugMatches, otherwise at -v=2.
func (ctx *Context) debugf(format string, args ...any) {
	if ctx.Config.DebugMatches || klog.V(2).Enabled() {
		klog.Infof(format, args...)
	}
}
