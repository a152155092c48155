// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"maps"
	"slices"

	"github.com/gomlx/nnopt/pkg/core/ir"
	"github.com/gomlx/nnopt/pkg/core/shapes"
	"github.com/gomlx/nnopt/pkg/core/tensors"
)

// ConstantTable maps tensor names to their values, for tensors known at rewrite time
// (weights, initializers).
//
// A missing name is meaningful: the tensor is computed at run time.
type ConstantTable struct {
	values map[string]*tensors.Tensor
}

// NewConstantTable returns an empty ConstantTable.
func NewConstantTable() *ConstantTable {
	return &ConstantTable{values: make(map[string]*tensors.Tensor)}
}

// Get returns the value of the named tensor. The second value is false if the tensor is not
// a constant.
func (t *ConstantTable) Get(name string) (*tensors.Tensor, bool) {
	value, found := t.values[name]
	return value, found
}

// Has returns whether the named tensor is a constant.
func (t *ConstantTable) Has(name string) bool {
	_, found := t.values[name]
	return found
}

// Set the value of the named tensor.
func (t *ConstantTable) Set(name string, value *tensors.Tensor) {
	t.values[name] = value
}

// Alias makes name refer to the same value as from. It returns false, and does nothing, if
// from is not a constant.
func (t *ConstantTable) Alias(name, from string) bool {
	value, found := t.values[from]
	if !found {
		return false
	}
	t.values[name] = value
	return true
}

// Delete removes the named constant, if present.
func (t *ConstantTable) Delete(name string) {
	delete(t.values, name)
}

// Len returns the number of constants.
func (t *ConstantTable) Len() int { return len(t.values) }

// Names returns the sorted names of the constants.
func (t *ConstantTable) Names() []string {
	return slices.Sorted(maps.Keys(t.values))
}

// ShapeTable maps tensor names (or node ids) to their inferred shapes.
// Shapes may be missing for some tensors.
type ShapeTable struct {
	shapes map[string]shapes.Shape
}

// NewShapeTable returns an empty ShapeTable.
func NewShapeTable() *ShapeTable {
	return &ShapeTable{shapes: make(map[string]shapes.Shape)}
}

// Get returns the shape of the named tensor. The second value is false if it is unknown.
func (t *ShapeTable) Get(name string) (shapes.Shape, bool) {
	shape, found := t.shapes[name]
	return shape, found
}

// Set the shape of the named tensor.
func (t *ShapeTable) Set(name string, shape shapes.Shape) {
	t.shapes[name] = shape
}

// Len returns the number of known shapes.
func (t *ShapeTable) Len() int { return len(t.shapes) }

// Names returns the sorted names of the tensors (or nodes) with a known shape.
func (t *ShapeTable) Names() []string {
	return slices.Sorted(maps.Keys(t.shapes))
}

// OutputShape returns the shape of the node's (first) output: it looks up the output tensor name
// and, failing that, the node id.
func (t *ShapeTable) OutputShape(node *ir.Node) (shapes.Shape, bool) {
	if output := node.Output(0); output != "" {
		if shape, found := t.shapes[output]; found {
			return shape, true
		}
	}
	shape, found := t.shapes[string(node.ID())]
	return shape, found
}
