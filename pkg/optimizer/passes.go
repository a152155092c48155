// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Pass is a named graph rewrite.
type Pass struct {
	Name string
	Run  func(ctx *Context) error
}

// DefaultPasses returns the passes in the order they should run: no-ops are removed first, so
// the fusions see the chains without interleaved Identity or Dropout nodes.
func DefaultPasses() []Pass {
	return []Pass{
		{Name: "RemoveIdentity", Run: RemoveIdentity},
		{Name: "FuseGroupNormalization", Run: FuseGroupNormalization},
	}
}

// PassesByName returns the default passes selected by a comma-separated list of names
// (case-insensitive), in the order given. An empty list selects all of them.
func PassesByName(names string) ([]Pass, error) {
	all := DefaultPasses()
	if strings.TrimSpace(names) == "" {
		return all, nil
	}
	var selected []Pass
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var found bool
		for _, pass := range all {
			if strings.EqualFold(pass.Name, name) {
				selected = append(selected, pass)
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Errorf("unknown pass %q, valid passes are %s", name, passNames(all))
		}
	}
	return selected, nil
}

func passNames(passes []Pass) string {
	names := make([]string, len(passes))
	for ii, pass := range passes {
		names[ii] = pass.Name
	}
	return strings.Join(names, ", ")
}

// Run the passes in sequence over ctx. It stops at the first failing pass.
//
// Panics raised with an error (as the graph does on broken invariants) are converted to errors.
// If ctx.Config.Validate is set, the graph invariants are checked after each pass.
func Run(ctx *Context, passes ...Pass) error {
	for _, pass := range passes {
		before, beforeTotal := ctx.Graph.Len(), ctx.Counters.Total()
		var err error
		panicErr := exceptions.TryCatch[error](func() { err = pass.Run(ctx) })
		if panicErr != nil {
			err = panicErr
		}
		if err != nil {
			return errors.WithMessagef(err, "pass %s", pass.Name)
		}
		if ctx.Config.Validate {
			if err := ctx.Graph.Validate(); err != nil {
				return errors.WithMessagef(err, "graph invalid after pass %s", pass.Name)
			}
		}
		klog.V(1).Infof("pass %s: %d rewrites, %d -> %d nodes", pass.Name, ctx.Counters.Total()-beforeTotal, before, ctx.Graph.Len())
	}
	return nil
}
