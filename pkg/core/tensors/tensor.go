// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors holds Tensor, a constant value materialized on the host.
//
// Tensors are the values of the constant table (weights and initializers): they are loaded by an
// upstream stage and only read by the rewrite passes, so they are immutable after creation.
package tensors

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/nnopt/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Supported lists the Go types a Tensor can be backed by.
type Supported interface {
	bool | float16.Float16 | float32 | float64 |
		int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

// Tensor is an immutable host-side constant: a shape plus the flat (row-major) data.
type Tensor struct {
	shape shapes.Shape
	flat  any
}

// FromFlat creates a Tensor from flat data and the given dimensions.
// No dimensions means a scalar, in which case flat must have exactly one element.
//
// The flat slice is copied.
func FromFlat[T Supported](flat []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypeOf[T](), dimensions...)
	if shape.Size() != len(flat) {
		exceptions.Panicf("tensors.FromFlat: shape %s requires %d elements, got %d", shape, shape.Size(), len(flat))
	}
	return &Tensor{shape: shape, flat: slices.Clone(flat)}
}

// FromScalar creates a scalar (rank-0) Tensor.
func FromScalar[T Supported](value T) *Tensor {
	return FromFlat([]T{value})
}

// FromAnyFlat creates a Tensor from a flat slice of one of the Supported types, given as any.
// It returns an error if the slice type is not supported or the size doesn't match.
func FromAnyFlat(flat any, dimensions ...int) (*Tensor, error) {
	dtype := dtypeOfSlice(flat)
	if dtype == dtypes.InvalidDType {
		return nil, errors.Errorf("tensors.FromAnyFlat: unsupported flat data type %T", flat)
	}
	for _, dim := range dimensions {
		if dim <= 0 {
			return nil, errors.Errorf("tensors.FromAnyFlat: invalid dimensions %v", dimensions)
		}
	}
	shape := shapes.Make(dtype, dimensions...)
	v := reflect.ValueOf(flat)
	if v.Len() != shape.Size() {
		return nil, errors.Errorf("tensors.FromAnyFlat: shape %s requires %d elements, got %d", shape, shape.Size(), v.Len())
	}
	clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(clone, v)
	return &Tensor{shape: shape, flat: clone.Interface()}, nil
}

// Shape returns the tensor shape.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the element type.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements.
func (t *Tensor) Size() int { return t.shape.Size() }

// Flat returns the underlying flat slice, e.g. []float32. It must not be modified.
func (t *Tensor) Flat() any { return t.flat }

// IsAllZeros returns whether every element is the zero value (false, for bool tensors).
// An empty tensor is never produced, since dimensions are always positive.
func (t *Tensor) IsAllZeros() bool {
	switch flat := t.flat.(type) {
	case []bool:
		return !slices.Contains(flat, true)
	case []float16.Float16:
		for _, v := range flat {
			// Mask out the sign bit, so -0 counts as zero.
			if v.Bits()&0x7fff != 0 {
				return false
			}
		}
		return true
	case []float32:
		return allZeros(flat)
	case []float64:
		return allZeros(flat)
	case []int8:
		return allZeros(flat)
	case []int16:
		return allZeros(flat)
	case []int32:
		return allZeros(flat)
	case []int64:
		return allZeros(flat)
	case []uint8:
		return allZeros(flat)
	case []uint16:
		return allZeros(flat)
	case []uint32:
		return allZeros(flat)
	case []uint64:
		return allZeros(flat)
	default:
		exceptions.Panicf("Tensor.IsAllZeros: unsupported flat type %T", t.flat)
	}
	return false
}

// allZeros treats -0.0 as zero.
func allZeros[T constraints.Integer | constraints.Float](flat []T) bool {
	for _, v := range flat {
		if v != 0 {
			return false
		}
	}
	return true
}

// Equal returns whether both tensors have the same shape and the same values.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	return t.shape.Equal(other.shape) && reflect.DeepEqual(t.flat, other.flat)
}

// String implements fmt.Stringer. Large tensors are summarized.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	if t.Size() > 16 {
		return fmt.Sprintf("Tensor%s{...}", t.shape)
	}
	return fmt.Sprintf("Tensor%s%v", t.shape, t.flat)
}

func dtypeOf[T Supported]() dtypes.DType {
	var zero T
	return dtypeOfSlice([]T{zero})
}

func dtypeOfSlice(flat any) dtypes.DType {
	switch flat.(type) {
	case []bool:
		return dtypes.Bool
	case []float16.Float16:
		return dtypes.Float16
	case []float32:
		return dtypes.Float32
	case []float64:
		return dtypes.Float64
	case []int8:
		return dtypes.Int8
	case []int16:
		return dtypes.Int16
	case []int32:
		return dtypes.Int32
	case []int64:
		return dtypes.Int64
	case []uint8:
		return dtypes.Uint8
	case []uint16:
		return dtypes.Uint16
	case []uint32:
		return dtypes.Uint32
	case []uint64:
		return dtypes.Uint64
	}
	return dtypes.InvalidDType
}
