// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphio reads and writes graphs, with their constant and shape tables, as JSON dumps.
//
// The format is a convenience for tools and tests, not a model format:
//
//	{
//	  "name": "model",
//	  "inputs": ["x"],
//	  "outputs": ["y"],
//	  "nodes": [
//	    {"id": "t0", "op": "Transpose", "inputs": ["x"], "outputs": ["t0"], "attrs": {"perm": [0, 2, 1]}},
//	    {"id": "d0", "op": "Dropout", "inputs": ["t0"], "outputs": ["y", "mask"], "attrs": {"ratio": 0.1}}
//	  ],
//	  "constants": {"w": {"dtype": "Float32", "dims": [2], "data": [1, 2]}},
//	  "shapes": {"x": {"dtype": "Float32", "dims": [1, 3, 2]}}
//	}
//
// Secondary outputs of a node (the "mask" above) are produced by ir.OpTypeAuxOutput nodes,
// created when reading and omitted when writing.
package graphio

import (
	"encoding/json"
	"io"
	"os"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/nnopt/pkg/core/ir"
	"github.com/gomlx/nnopt/pkg/core/shapes"
	"github.com/gomlx/nnopt/pkg/core/tensors"
	"github.com/gomlx/nnopt/pkg/optimizer"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

type graphJSON struct {
	Name      string                 `json:"name,omitempty"`
	Inputs    []string               `json:"inputs"`
	Outputs   []string               `json:"outputs"`
	Nodes     []nodeJSON             `json:"nodes"`
	Constants map[string]*tensorJSON `json:"constants,omitempty"`
	Shapes    map[string]*shapeJSON  `json:"shapes,omitempty"`
}

type nodeJSON struct {
	ID      string          `json:"id"`
	Op      string          `json:"op"`
	Inputs  []string        `json:"inputs,omitempty"`
	Outputs []string        `json:"outputs"`
	Attrs   json.RawMessage `json:"attrs,omitempty"`
}

type shapeJSON struct {
	DType string `json:"dtype"`
	Dims  []int  `json:"dims"`
}

type tensorJSON struct {
	DType string          `json:"dtype"`
	Dims  []int           `json:"dims"`
	Data  json.RawMessage `json:"data"`
}

type transposeJSON struct {
	Perm []int `json:"perm,omitempty"`
}

type dropoutJSON struct {
	Ratio float32 `json:"ratio,omitempty"`
}

type reshapeJSON struct {
	AllowZero int `json:"allowzero,omitempty"`
}

type resizeJSON struct {
	Mode string `json:"mode,omitempty"`
}

type instanceNormJSON struct {
	Epsilon *float32 `json:"epsilon,omitempty"`
}

type groupNormJSON struct {
	NumGroups int         `json:"num_groups"`
	Epsilon   float32     `json:"epsilon"`
	Scale     *tensorJSON `json:"scale,omitempty"`
	Bias      *tensorJSON `json:"bias,omitempty"`
}

// ReadFile reads the JSON dump in path. See Read.
func ReadFile(path string, options ...optimizer.Option) (*optimizer.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "graphio: opening %q", path)
	}
	defer func() { _ = f.Close() }()
	ctx, err := Read(f, options...)
	if err != nil {
		return nil, errors.WithMessagef(err, "graphio: reading %q", path)
	}
	return ctx, nil
}

// Read decodes a JSON dump and returns a Context over the graph and its tables, ready to run passes.
func Read(r io.Reader, options ...optimizer.Option) (*optimizer.Context, error) {
	var dump graphJSON
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&dump); err != nil {
		return nil, errors.Wrap(err, "graphio: decoding JSON")
	}

	constants := optimizer.NewConstantTable()
	for name, tj := range dump.Constants {
		value, err := decodeTensor(tj)
		if err != nil {
			return nil, errors.WithMessagef(err, "graphio: constant %q", name)
		}
		constants.Set(name, value)
	}
	shapeTable := optimizer.NewShapeTable()
	for name, sj := range dump.Shapes {
		shape, err := decodeShape(sj)
		if err != nil {
			return nil, errors.WithMessagef(err, "graphio: shape of %q", name)
		}
		shapeTable.Set(name, shape)
	}

	g := ir.New(dump.Name)
	g.Inputs = dump.Inputs
	g.Outputs = dump.Outputs
	for _, nj := range dump.Nodes {
		if err := addNode(g, &nj); err != nil {
			return nil, errors.WithMessagef(err, "graphio: node %q", nj.ID)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, errors.WithMessage(err, "graphio: graph read")
	}
	klog.V(1).Infof("graphio: read graph %q with %d nodes, %d constants and %d shapes",
		g.Name, g.Len(), constants.Len(), shapeTable.Len())
	return optimizer.NewContext(g, constants, shapeTable, options...), nil
}

// addNode adds the node, and an AuxOutput node for each of its secondary outputs.
func addNode(g *ir.Graph, nj *nodeJSON) error {
	op := ir.ParseOpType(nj.Op)
	if op == ir.OpTypeAuxOutput {
		return errors.Errorf("%s nodes are implicit, list the tensor as a secondary output of its parent instead", op)
	}
	attrs, err := decodeAttrs(op, nj.Op, nj.Attrs)
	if err != nil {
		return err
	}
	id := ir.NodeID(nj.ID)
	if _, err := g.AddNode(id, op, nj.Inputs, nj.Outputs, attrs); err != nil {
		return err
	}
	for ii := 1; ii < len(nj.Outputs); ii++ {
		output := nj.Outputs[ii]
		if output == "" {
			// Optional output not used.
			continue
		}
		auxAttrs := &ir.AuxOutputAttrs{Parent: id, Index: ii}
		if _, err := g.AddNode(ir.NodeID(output), ir.OpTypeAuxOutput, nil, []string{output}, auxAttrs); err != nil {
			return errors.WithMessagef(err, "output #%d", ii)
		}
	}
	return nil
}

func decodeAttrs(op ir.OpType, opName string, raw json.RawMessage) (ir.Attributes, error) {
	if len(raw) == 0 || string(raw) == "null" {
		if op == ir.OpTypeUnknown {
			return &ir.GenericAttrs{Op: op, OpName: opName}, nil
		}
		return nil, nil
	}
	var err error
	switch op {
	case ir.OpTypeTranspose:
		var aj transposeJSON
		if err = json.Unmarshal(raw, &aj); err == nil {
			return &ir.TransposeAttrs{Perm: aj.Perm}, nil
		}
	case ir.OpTypeDropout:
		var aj dropoutJSON
		if err = json.Unmarshal(raw, &aj); err == nil {
			return &ir.DropoutAttrs{Ratio: aj.Ratio}, nil
		}
	case ir.OpTypeReshape:
		var aj reshapeJSON
		if err = json.Unmarshal(raw, &aj); err == nil {
			return &ir.ReshapeAttrs{AllowZero: aj.AllowZero != 0}, nil
		}
	case ir.OpTypeResize:
		var aj resizeJSON
		if err = json.Unmarshal(raw, &aj); err == nil {
			return &ir.ResizeAttrs{Mode: aj.Mode}, nil
		}
	case ir.OpTypeInstanceNormalization:
		var aj instanceNormJSON
		if err = json.Unmarshal(raw, &aj); err == nil {
			return &ir.InstanceNormAttrs{Epsilon: aj.Epsilon}, nil
		}
	case ir.OpTypeGroupNormalization:
		var aj groupNormJSON
		if err = json.Unmarshal(raw, &aj); err != nil {
			break
		}
		attrs := &ir.GroupNormAttrs{NumGroups: aj.NumGroups, Epsilon: aj.Epsilon}
		if aj.Scale != nil {
			if attrs.Scale, err = decodeTensor(aj.Scale); err != nil {
				return nil, errors.WithMessage(err, "scale")
			}
		}
		if aj.Bias != nil {
			if attrs.Bias, err = decodeTensor(aj.Bias); err != nil {
				return nil, errors.WithMessage(err, "bias")
			}
		}
		return attrs, nil
	default:
		var values map[string]any
		if err = json.Unmarshal(raw, &values); err == nil {
			attrs := &ir.GenericAttrs{Op: op, Values: values}
			if op == ir.OpTypeUnknown {
				attrs.OpName = opName
			}
			return attrs, nil
		}
	}
	return nil, errors.Wrapf(err, "decoding %s attributes", op)
}

func decodeShape(sj *shapeJSON) (shapes.Shape, error) {
	if sj == nil {
		return shapes.Invalid(), errors.New("missing shape")
	}
	dtype, err := dtypes.DTypeString(sj.DType)
	if err != nil {
		return shapes.Invalid(), errors.Wrapf(err, "invalid dtype %q", sj.DType)
	}
	for _, dim := range sj.Dims {
		if dim <= 0 {
			return shapes.Invalid(), errors.Errorf("invalid dimensions %v", sj.Dims)
		}
	}
	return shapes.Make(dtype, sj.Dims...), nil
}

func unmarshalFlat[T any](data json.RawMessage) (any, error) {
	var flat []T
	err := json.Unmarshal(data, &flat)
	return flat, err
}

func decodeTensor(tj *tensorJSON) (*tensors.Tensor, error) {
	if tj == nil {
		return nil, errors.New("missing tensor")
	}
	dtype, err := dtypes.DTypeString(tj.DType)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid dtype %q", tj.DType)
	}
	var flat any
	switch dtype {
	case dtypes.Bool:
		flat, err = unmarshalFlat[bool](tj.Data)
	case dtypes.Float16:
		var values any
		values, err = unmarshalFlat[float32](tj.Data)
		if err == nil {
			f32 := values.([]float32)
			f16 := make([]float16.Float16, len(f32))
			for ii, v := range f32 {
				f16[ii] = float16.Fromfloat32(v)
			}
			flat = f16
		}
	case dtypes.Float32:
		flat, err = unmarshalFlat[float32](tj.Data)
	case dtypes.Float64:
		flat, err = unmarshalFlat[float64](tj.Data)
	case dtypes.Int8:
		flat, err = unmarshalFlat[int8](tj.Data)
	case dtypes.Int16:
		flat, err = unmarshalFlat[int16](tj.Data)
	case dtypes.Int32:
		flat, err = unmarshalFlat[int32](tj.Data)
	case dtypes.Int64:
		flat, err = unmarshalFlat[int64](tj.Data)
	case dtypes.Uint8:
		// A []uint8 would be decoded from base64.
		var values any
		values, err = unmarshalFlat[uint16](tj.Data)
		if err == nil {
			u16 := values.([]uint16)
			u8 := make([]uint8, len(u16))
			for ii, v := range u16 {
				if v > 255 {
					return nil, errors.Errorf("value %d out of range for %s", v, dtype)
				}
				u8[ii] = uint8(v)
			}
			flat = u8
		}
	case dtypes.Uint16:
		flat, err = unmarshalFlat[uint16](tj.Data)
	case dtypes.Uint32:
		flat, err = unmarshalFlat[uint32](tj.Data)
	case dtypes.Uint64:
		flat, err = unmarshalFlat[uint64](tj.Data)
	default:
		return nil, errors.Errorf("dtype %s not supported", dtype)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s data", dtype)
	}
	return tensors.FromAnyFlat(flat, tj.Dims...)
}

// WriteFile writes the JSON dump of the Context's graph and tables to path. See Write.
func WriteFile(path string, ctx *optimizer.Context) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "graphio: creating %q", path)
	}
	if err = Write(f, ctx); err != nil {
		_ = f.Close()
		return errors.WithMessagef(err, "graphio: writing %q", path)
	}
	return errors.Wrapf(f.Close(), "graphio: closing %q", path)
}

// Write encodes the Context's graph, constant and shape tables as an indented JSON dump.
// Nodes are written in insertion order.
func Write(w io.Writer, ctx *optimizer.Context) error {
	g := ctx.Graph
	dump := graphJSON{
		Name:      g.Name,
		Inputs:    g.Inputs,
		Outputs:   g.Outputs,
		Nodes:     make([]nodeJSON, 0, g.Len()),
		Constants: make(map[string]*tensorJSON, ctx.Constants.Len()),
		Shapes:    make(map[string]*shapeJSON, ctx.Shapes.Len()),
	}
	for _, id := range g.Nodes() {
		node := g.MustNode(id)
		if node.Op() == ir.OpTypeAuxOutput {
			continue
		}
		nj, err := encodeNode(node)
		if err != nil {
			return errors.WithMessagef(err, "graphio: node %q", id)
		}
		dump.Nodes = append(dump.Nodes, nj)
	}
	for _, name := range ctx.Constants.Names() {
		value, _ := ctx.Constants.Get(name)
		tj, err := encodeTensor(value)
		if err != nil {
			return errors.WithMessagef(err, "graphio: constant %q", name)
		}
		dump.Constants[name] = tj
	}
	for _, name := range ctx.Shapes.Names() {
		shape, _ := ctx.Shapes.Get(name)
		dump.Shapes[name] = &shapeJSON{DType: shape.DType.String(), Dims: shape.Dimensions}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(&dump), "graphio: encoding JSON")
}

func encodeNode(node *ir.Node) (nodeJSON, error) {
	nj := nodeJSON{
		ID:      string(node.ID()),
		Op:      node.Op().String(),
		Inputs:  node.Inputs(),
		Outputs: node.Outputs(),
	}
	var attrs any
	switch a := node.Attrs().(type) {
	case nil:
	case *ir.TransposeAttrs:
		attrs = transposeJSON{Perm: a.Perm}
	case *ir.DropoutAttrs:
		attrs = dropoutJSON{Ratio: a.Ratio}
	case *ir.ReshapeAttrs:
		aj := reshapeJSON{}
		if a.AllowZero {
			aj.AllowZero = 1
		}
		attrs = aj
	case *ir.ResizeAttrs:
		attrs = resizeJSON{Mode: a.Mode}
	case *ir.InstanceNormAttrs:
		attrs = instanceNormJSON{Epsilon: a.Epsilon}
	case *ir.GroupNormAttrs:
		aj := groupNormJSON{NumGroups: a.NumGroups, Epsilon: a.Epsilon}
		var err error
		if a.Scale != nil {
			if aj.Scale, err = encodeTensor(a.Scale); err != nil {
				return nj, errors.WithMessage(err, "scale")
			}
		}
		if a.Bias != nil {
			if aj.Bias, err = encodeTensor(a.Bias); err != nil {
				return nj, errors.WithMessage(err, "bias")
			}
		}
		attrs = aj
	case *ir.GenericAttrs:
		if a.OpName != "" {
			nj.Op = a.OpName
		}
		if len(a.Values) > 0 {
			attrs = a.Values
		}
	default:
		return nj, errors.Errorf("attributes %T not supported", a)
	}
	if attrs != nil {
		raw, err := json.Marshal(attrs)
		if err != nil {
			return nj, errors.Wrap(err, "encoding attributes")
		}
		nj.Attrs = raw
	}
	return nj, nil
}

func encodeTensor(t *tensors.Tensor) (*tensorJSON, error) {
	flat := t.Flat()
	switch values := flat.(type) {
	case []float16.Float16:
		f32 := make([]float32, len(values))
		for ii, v := range values {
			f32[ii] = v.Float32()
		}
		flat = f32
	case []uint8:
		u16 := make([]uint16, len(values))
		for ii, v := range values {
			u16[ii] = uint16(v)
		}
		flat = u16
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s", t.Shape())
	}
	dims := t.Shape().Dimensions
	if dims == nil {
		dims = []int{}
	}
	return &tensorJSON{DType: t.DType().String(), Dims: dims, Data: data}, nil
}
