// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"maps"
	"slices"

	"github.com/gomlx/nnopt/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Attributes is the operator-specific payload of a Node.
//
// Each operator kind has its own record type, and OpType tells which one is expected. A nil
// Attributes is valid for any operator and means "no attributes" (or all defaults).
type Attributes interface {
	// OpType returns the operator kind these attributes belong to.
	OpType() OpType

	// CloneAttributes returns a deep copy.
	CloneAttributes() Attributes
}

// TransposeAttrs of a Transpose node.
type TransposeAttrs struct {
	// Perm is the permutation of the axes. Empty means "reverse the axes", the ONNX default.
	Perm []int
}

func (a *TransposeAttrs) OpType() OpType { return OpTypeTranspose }

func (a *TransposeAttrs) CloneAttributes() Attributes {
	return &TransposeAttrs{Perm: slices.Clone(a.Perm)}
}

// IsIdentityPermutation returns whether Perm is [0, 1, ..., n-1], which leaves the tensor unchanged.
// An empty Perm is not the identity: it reverses the axes.
func (a *TransposeAttrs) IsIdentityPermutation() bool {
	if a == nil || len(a.Perm) == 0 {
		return false
	}
	for ii, axis := range a.Perm {
		if axis != ii {
			return false
		}
	}
	return true
}

// DropoutAttrs of a Dropout node.
type DropoutAttrs struct {
	Ratio float32
}

func (a *DropoutAttrs) OpType() OpType { return OpTypeDropout }

func (a *DropoutAttrs) CloneAttributes() Attributes {
	c := *a
	return &c
}

// ReshapeAttrs of a Reshape node.
type ReshapeAttrs struct {
	AllowZero bool
}

func (a *ReshapeAttrs) OpType() OpType { return OpTypeReshape }

func (a *ReshapeAttrs) CloneAttributes() Attributes {
	c := *a
	return &c
}

// ResizeAttrs of a Resize node.
type ResizeAttrs struct {
	Mode string
}

func (a *ResizeAttrs) OpType() OpType { return OpTypeResize }

func (a *ResizeAttrs) CloneAttributes() Attributes {
	c := *a
	return &c
}

// InstanceNormAttrs of an InstanceNormalization node.
type InstanceNormAttrs struct {
	// Epsilon is nil if the model didn't set it.
	Epsilon *float32
}

func (a *InstanceNormAttrs) OpType() OpType { return OpTypeInstanceNormalization }

func (a *InstanceNormAttrs) CloneAttributes() Attributes {
	c := &InstanceNormAttrs{}
	if a.Epsilon != nil {
		eps := *a.Epsilon
		c.Epsilon = &eps
	}
	return c
}

// EpsilonOr returns Epsilon if set, or defaultValue otherwise. Safe on a nil receiver.
func (a *InstanceNormAttrs) EpsilonOr(defaultValue float32) float32 {
	if a == nil || a.Epsilon == nil {
		return defaultValue
	}
	return *a.Epsilon
}

// GroupNormAttrs of a GroupNormalization node, created by the group normalization fusion.
//
// Scale and Bias are the per-channel affine parameters, taken from the constant table.
type GroupNormAttrs struct {
	NumGroups   int
	Epsilon     float32
	Scale, Bias *tensors.Tensor
}

func (a *GroupNormAttrs) OpType() OpType { return OpTypeGroupNormalization }

// CloneAttributes shares Scale and Bias: tensors are immutable.
func (a *GroupNormAttrs) CloneAttributes() Attributes {
	c := *a
	return &c
}

// AuxOutputAttrs of an AuxOutput node.
type AuxOutputAttrs struct {
	// Parent is the multi-output node this output belongs to.
	Parent NodeID

	// Index of the output in Parent.Outputs, always >= 1.
	Index int
}

func (a *AuxOutputAttrs) OpType() OpType { return OpTypeAuxOutput }

func (a *AuxOutputAttrs) CloneAttributes() Attributes {
	c := *a
	return &c
}

// GenericAttrs holds the attributes of operators the passes don't inspect.
type GenericAttrs struct {
	// Op is the kind of the node that owns these attributes. For OpTypeUnknown, OpName holds
	// the operator name as given by the model.
	Op     OpType
	OpName string
	Values map[string]any
}

func (a *GenericAttrs) OpType() OpType { return a.Op }

func (a *GenericAttrs) CloneAttributes() Attributes {
	return &GenericAttrs{Op: a.Op, OpName: a.OpName, Values: maps.Clone(a.Values)}
}

// checkAttributes verifies attrs may be attached to a node of kind op.
func checkAttributes(op OpType, attrs Attributes) error {
	if attrs == nil {
		return nil
	}
	if attrs.OpType() != op {
		return errors.Errorf("attributes %T are for %s, not %s", attrs, attrs.OpType(), op)
	}
	return nil
}
