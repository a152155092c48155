// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/nnopt/pkg/core/ir"
	"github.com/gomlx/nnopt/pkg/core/shapes"
	"github.com/gomlx/nnopt/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantTable(t *testing.T) {
	table := NewConstantTable()
	_, found := table.Get("w")
	require.False(t, found, "absent constants are reported, not an error")

	w := tensors.FromFlat([]float32{1, 2, 3}, 3)
	table.Set("w", w)
	require.True(t, table.Has("w"))
	require.False(t, table.Alias("copy", "runtime"))
	require.False(t, table.Has("copy"))
	require.True(t, table.Alias("copy", "w"))
	value, found := table.Get("copy")
	require.True(t, found)
	assert.Same(t, w, value)
	assert.Equal(t, []string{"copy", "w"}, table.Names())

	table.Delete("w")
	assert.Equal(t, 1, table.Len())
}

func TestShapeTable(t *testing.T) {
	g := ir.New("shapes")
	byOutput := must.M1(g.AddNode("a", ir.OpTypeUnknown, []string{"x"}, []string{"a:0"}, nil))
	byID := must.M1(g.AddNode("b", ir.OpTypeUnknown, []string{"a:0"}, []string{"b:0"}, nil))
	unknown := must.M1(g.AddNode("c", ir.OpTypeUnknown, []string{"b:0"}, []string{"c:0"}, nil))

	table := NewShapeTable()
	table.Set("a:0", shapes.Make(dtypes.Float32, 2, 3))
	table.Set("b", shapes.Make(dtypes.Int64, 6))
	require.Equal(t, 2, table.Len())

	shape, found := table.OutputShape(byOutput)
	require.True(t, found)
	assert.Equal(t, []int{2, 3}, shape.Dimensions)
	shape, found = table.OutputShape(byID)
	require.True(t, found)
	assert.Equal(t, dtypes.Int64, shape.DType)
	_, found = table.OutputShape(unknown)
	assert.False(t, found)
}

func TestNewContext(t *testing.T) {
	ctx := NewContext(ir.New("empty"), nil, nil, WithDefaultEpsilon(1e-3), WithDebugMatches(true))
	require.NotNil(t, ctx.Constants)
	require.NotNil(t, ctx.Shapes)
	require.NotNil(t, ctx.Counters)
	assert.Equal(t, float32(1e-3), ctx.Config.DefaultEpsilon)
	assert.True(t, ctx.Config.DebugMatches)
	assert.False(t, ctx.Config.Validate)
	assert.Equal(t, DefaultEpsilon, DefaultConfig().DefaultEpsilon)
}
