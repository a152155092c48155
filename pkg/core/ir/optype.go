// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

// OpType enumerates the operator kinds the rewrite passes know about.
//
// The set is closed: operators read from a model that are not listed here are represented by
// OpTypeUnknown, with the original operator name kept in GenericAttrs.OpName.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota

	// OpTypeIdentity is the canonical no-op: it passes its single input through unchanged.
	// Passes recolor nodes to OpTypeIdentity to mark them for elision.
	OpTypeIdentity

	OpTypeTranspose
	OpTypeDropout
	OpTypeAdd
	OpTypeResize
	OpTypeReshape
	OpTypeInstanceNormalization
	OpTypeMul
	OpTypeGroupNormalization
	OpTypeConstant

	// OpTypeAuxOutput is the producer of a secondary output (index >= 1) of a multi-output
	// operator, e.g. the "mask" of a Dropout. Its id is the name of the tensor it produces.
	OpTypeAuxOutput

	// OpTypeUnknown is any operator not listed above.
	OpTypeUnknown
)

// IsNoOp returns whether the op is the canonical no-op.
func (op OpType) IsNoOp() bool { return op == OpTypeIdentity }

// ParseOpType converts a model operator name (e.g. "InstanceNormalization") to an OpType.
// Names that don't match any known operator map to OpTypeUnknown: it never fails.
func ParseOpType(name string) OpType {
	op, err := OpTypeString(name)
	if err != nil || op == OpTypeInvalid {
		return OpTypeUnknown
	}
	return op
}
