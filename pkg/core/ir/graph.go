// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir defines the in-memory graph intermediate representation rewritten by the optimizer.
//
// A Graph is a DAG of Node, each carrying an operator kind (OpType), typed attributes and the
// names of its input and output tensors. Edges are implicit: a consumer's input name equals a
// producer's output name. The Graph keeps an explicit adjacency (predecessors/successors) in sync
// with the inputs, and every tensor has at most one producer.
//
// Rewrites that mutate the graph while iterating over it must iterate over a snapshot: see
// TopologicalOrder, which always returns a fresh slice of ids.
package ir

import (
	"container/heap"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnopt/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrNotFound is returned when a node id is not in the graph.
	ErrNotFound = errors.New("node not found")

	// ErrPrecondition is returned by RemoveOneNode when the node is not a single-input no-op.
	ErrPrecondition = errors.New("precondition violated")

	// ErrCycle is returned when an operation would create, or has found, a cycle.
	ErrCycle = errors.New("graph has a cycle")

	// ErrInvalid is returned for malformed nodes: duplicate ids, duplicate producers, etc.
	ErrInvalid = errors.New("invalid graph")
)

// Graph is a DAG of operators. Create it with New.
//
// It is not safe for concurrent use: passes take exclusive access for their whole run.
type Graph struct {
	// Name of the graph, informative only.
	Name string

	// Inputs are the names of the tensors fed to the graph at run time.
	Inputs []string

	// Outputs are the names of the tensors returned by the graph. RemoveOneNode renames them
	// when it elides their producer.
	Outputs []string

	nodes map[NodeID]*Node

	// order is the insertion order, used to break ties in TopologicalOrder deterministically.
	order []NodeID

	preds, succs map[NodeID]sets.Set[NodeID]
	producers    map[string]NodeID
	consumers    map[string]sets.Set[NodeID]
}

// New creates an empty Graph.
func New(name string) *Graph {
	return &Graph{
		Name:      name,
		nodes:     make(map[NodeID]*Node),
		preds:     make(map[NodeID]sets.Set[NodeID]),
		succs:     make(map[NodeID]sets.Set[NodeID]),
		producers: make(map[string]NodeID),
		consumers: make(map[string]sets.Set[NodeID]),
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Has returns whether the graph has a node with the given id.
func (g *Graph) Has(id NodeID) bool {
	_, found := g.nodes[id]
	return found
}

// Node returns the node with the given id. The second value is false if it is not in the graph.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, found := g.nodes[id]
	return n, found
}

// MustNode returns the node with the given id, and panics if it is not in the graph.
func (g *Graph) MustNode(id NodeID) *Node {
	n, found := g.nodes[id]
	if !found {
		exceptions.Panicf("graph %q has no node %q", g.Name, id)
	}
	return n
}

// Nodes returns a snapshot of the node ids in insertion order.
func (g *Graph) Nodes() []NodeID {
	return slices.Clone(g.order)
}

// Producer returns the id of the node that produces the given tensor.
// The second value is false for graph inputs, constants and unknown tensors.
func (g *Graph) Producer(tensor string) (NodeID, bool) {
	id, found := g.producers[tensor]
	return id, found
}

// Consumers returns the sorted ids of the nodes that take the given tensor as input.
func (g *Graph) Consumers(tensor string) []NodeID {
	return sets.Sorted(g.consumers[tensor])
}

// Predecessors returns the sorted ids of the nodes the given node depends on.
func (g *Graph) Predecessors(id NodeID) []NodeID {
	return sets.Sorted(g.preds[id])
}

// Successors returns the sorted ids of the nodes that depend on the given node.
func (g *Graph) Successors(id NodeID) []NodeID {
	return sets.Sorted(g.succs[id])
}

// AddNode creates a new node at the end of the insertion order.
//
// Inputs are wired to their producers if they already exist; producers added later get wired to
// this node as they are added. It fails if the id is taken, if the output tensor already has a
// producer, or if the new edges would close a cycle.
func (g *Graph) AddNode(id NodeID, op OpType, inputs, outputs []string, attrs Attributes) (*Node, error) {
	n := newNode(id, op, inputs, outputs, attrs)
	if err := g.addNode(n, len(g.order)); err != nil {
		return nil, err
	}
	return n, nil
}

// InsertNode creates a new node positioned right after anchor in the insertion order, so that
// it is visited where the anchor was whenever topological order allows it.
//
// It is the single-node insertion primitive used by fusions. Besides the checks of AddNode, it
// fails if the anchor is not in the graph.
func (g *Graph) InsertNode(anchor, id NodeID, op OpType, inputs, outputs []string, attrs Attributes) (*Node, error) {
	position := slices.Index(g.order, anchor)
	if position < 0 {
		return nil, errors.Wrapf(ErrNotFound, "InsertNode(%q): anchor %q", id, anchor)
	}
	n := newNode(id, op, inputs, outputs, attrs)
	if err := g.addNode(n, position+1); err != nil {
		return nil, err
	}
	klog.V(3).Infof("graph %q: inserted %s after %q", g.Name, n, anchor)
	return n, nil
}

func (g *Graph) addNode(n *Node, position int) error {
	if n.id == "" {
		return errors.Wrap(ErrInvalid, "node id cannot be empty")
	}
	if g.Has(n.id) {
		return errors.Wrapf(ErrInvalid, "duplicate node id %q", n.id)
	}
	if err := checkAttributes(n.op, n.attrs); err != nil {
		return errors.Wrapf(ErrInvalid, "node %q: %v", n.id, err)
	}
	produced := n.producedTensor()
	if produced != "" {
		if other, found := g.producers[produced]; found {
			return errors.Wrapf(ErrInvalid, "node %q: tensor %q is already produced by %q", n.id, produced, other)
		}
	}
	if n.op == OpTypeAuxOutput {
		if err := g.checkAuxOutput(n); err != nil {
			return err
		}
	}

	g.nodes[n.id] = n
	g.order = slices.Insert(g.order, position, n.id)
	g.preds[n.id] = sets.Make[NodeID]()
	g.succs[n.id] = sets.Make[NodeID]()
	for _, input := range n.inputs {
		g.addConsumer(input, n.id)
		if producer, found := g.producers[input]; found {
			g.addEdge(producer, n.id)
		}
	}
	if parent := n.auxParent(); parent != "" {
		g.addEdge(parent, n.id)
	}
	if produced != "" {
		g.producers[produced] = n.id
		for consumer := range g.consumers[produced] {
			g.addEdge(n.id, consumer)
		}
	}

	if g.reaches(n.id, n.id) {
		g.RemoveNode(n.id)
		return errors.Wrapf(ErrCycle, "adding node %q", n.id)
	}
	return nil
}

func (g *Graph) checkAuxOutput(n *Node) error {
	attrs, ok := n.attrs.(*AuxOutputAttrs)
	if !ok || attrs == nil {
		return errors.Wrapf(ErrInvalid, "AuxOutput node %q requires AuxOutputAttrs", n.id)
	}
	parent, found := g.nodes[attrs.Parent]
	if !found {
		return errors.Wrapf(ErrNotFound, "AuxOutput node %q: parent %q", n.id, attrs.Parent)
	}
	if attrs.Index < 1 || parent.Output(attrs.Index) != n.Output(0) || len(n.outputs) != 1 {
		return errors.Wrapf(ErrInvalid, "AuxOutput node %q must produce output #%d of %q", n.id, attrs.Index, attrs.Parent)
	}
	return nil
}

func (g *Graph) addEdge(from, to NodeID) {
	g.succs[from].Insert(to)
	g.preds[to].Insert(from)
}

func (g *Graph) addConsumer(tensor string, id NodeID) {
	s, found := g.consumers[tensor]
	if !found {
		s = sets.Make[NodeID]()
		g.consumers[tensor] = s
	}
	s.Insert(id)
}

func (g *Graph) removeConsumer(tensor string, id NodeID) {
	s := g.consumers[tensor]
	s.Delete(id)
	if s.Len() == 0 {
		delete(g.consumers, tensor)
	}
}

// reaches returns whether there is a non-empty path from -> ... -> to.
func (g *Graph) reaches(from, to NodeID) bool {
	visited := sets.Make[NodeID]()
	stack := sets.Sorted(g.succs[from])
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		if visited.Has(id) {
			continue
		}
		visited.Insert(id)
		for succ := range g.succs[id] {
			stack = append(stack, succ)
		}
	}
	return false
}

// RemoveEdge deletes the edge from -> to, if present. It doesn't change the inputs of the nodes:
// it's meant for rewrites that are about to change the inputs of `to` accordingly.
func (g *Graph) RemoveEdge(from, to NodeID) {
	if s, found := g.succs[from]; found {
		s.Delete(to)
	}
	if s, found := g.preds[to]; found {
		s.Delete(from)
	}
}

// RemoveNode deletes the node and all its edges. The tensor it produced is left without producer,
// and its consumers keep referring to it: use RemoveOneNode to splice a no-op out instead.
//
// Removing a node that is not in the graph is a no-op.
func (g *Graph) RemoveNode(id NodeID) {
	n, found := g.nodes[id]
	if !found {
		return
	}
	for pred := range g.preds[id] {
		g.succs[pred].Delete(id)
	}
	for succ := range g.succs[id] {
		g.preds[succ].Delete(id)
	}
	for _, input := range n.inputs {
		g.removeConsumer(input, id)
	}
	if produced := n.producedTensor(); produced != "" && g.producers[produced] == id {
		delete(g.producers, produced)
	}
	delete(g.preds, id)
	delete(g.succs, id)
	delete(g.nodes, id)
	if idx := slices.Index(g.order, id); idx >= 0 {
		g.order = slices.Delete(g.order, idx, idx+1)
	}
}

// Recolor changes the operator kind and attributes of a node in place. The id, inputs and
// outputs are kept.
func (g *Graph) Recolor(id NodeID, op OpType, attrs Attributes) error {
	n, found := g.nodes[id]
	if !found {
		return errors.Wrapf(ErrNotFound, "Recolor(%q)", id)
	}
	if (n.op == OpTypeAuxOutput) != (op == OpTypeAuxOutput) {
		return errors.Wrapf(ErrInvalid, "Recolor(%q): cannot change %s to %s", id, n.op, op)
	}
	if err := checkAttributes(op, attrs); err != nil {
		return errors.Wrapf(ErrInvalid, "Recolor(%q): %v", id, err)
	}
	n.op = op
	n.attrs = attrs
	return nil
}

// SetInputs replaces the inputs of a node, and updates the edges accordingly: incoming edges
// from producers no longer referenced are removed, edges to the producers of new inputs added.
func (g *Graph) SetInputs(id NodeID, inputs []string) error {
	n, found := g.nodes[id]
	if !found {
		return errors.Wrapf(ErrNotFound, "SetInputs(%q)", id)
	}
	wantPreds := sets.Make[NodeID]()
	for _, input := range inputs {
		if producer, found := g.producers[input]; found {
			if producer == id {
				return errors.Wrapf(ErrCycle, "SetInputs(%q): node cannot consume its own output %q", id, input)
			}
			wantPreds.Insert(producer)
		}
	}
	if parent := n.auxParent(); parent != "" {
		wantPreds.Insert(parent)
	}

	for _, input := range n.inputs {
		g.removeConsumer(input, id)
	}
	n.inputs = slices.Clone(inputs)
	for _, input := range n.inputs {
		g.addConsumer(input, id)
	}
	for _, pred := range sets.Sorted(g.preds[id]) {
		if !wantPreds.Has(pred) {
			g.RemoveEdge(pred, id)
		}
	}
	for pred := range wantPreds {
		g.addEdge(pred, id)
	}
	return nil
}

// PopOutput removes the last declared output of a multi-output node and returns its name.
// It returns false, and leaves the node untouched, if the node has fewer than two outputs.
//
// The AuxOutput node producing the popped tensor, if any, is not removed: that is up to the caller.
func (g *Graph) PopOutput(id NodeID) (string, bool) {
	n, found := g.nodes[id]
	if !found || len(n.outputs) < 2 {
		return "", false
	}
	last := n.outputs[len(n.outputs)-1]
	n.outputs = n.outputs[:len(n.outputs)-1]
	return last, true
}

// RemoveOneNode elides a no-op node: every consumer of its output is rewired to consume its
// single input instead, and the node is deleted. Graph outputs naming the no-op's output are
// renamed to its input.
//
// It is the single-node removal primitive. The node must be OpTypeIdentity with exactly one input
// and one output, otherwise it returns an error wrapping ErrPrecondition and the graph is left
// unchanged.
func (g *Graph) RemoveOneNode(id NodeID) error {
	n, found := g.nodes[id]
	if !found {
		return errors.Wrapf(ErrNotFound, "RemoveOneNode(%q)", id)
	}
	if !n.op.IsNoOp() || len(n.inputs) != 1 || len(n.outputs) != 1 {
		return errors.Wrapf(ErrPrecondition, "RemoveOneNode(%q): requires a %s node with exactly 1 input and 1 output, got %s",
			id, OpTypeIdentity, n)
	}
	input, output := n.inputs[0], n.outputs[0]
	consumers := g.Consumers(output)
	g.RemoveNode(id)
	for _, consumerID := range consumers {
		consumer := g.nodes[consumerID]
		newInputs := slices.Clone(consumer.inputs)
		for ii, name := range newInputs {
			if name == output {
				newInputs[ii] = input
			}
		}
		if err := g.SetInputs(consumerID, newInputs); err != nil {
			return errors.WithMessagef(err, "RemoveOneNode(%q): rewiring consumer %q", id, consumerID)
		}
	}
	for ii, name := range g.Outputs {
		if name == output {
			g.Outputs[ii] = input
		}
	}
	klog.V(3).Infof("graph %q: elided %q, %d consumers now read %q", g.Name, id, len(consumers), input)
	return nil
}

// TopologicalOrder returns a snapshot of the node ids in topological order.
//
// The order is deterministic: among the nodes ready to be visited, the one inserted first comes
// first. The returned slice is not affected by later mutations of the graph.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	rank := make(map[NodeID]int, len(g.order))
	for ii, id := range g.order {
		rank[id] = ii
	}
	inDegree := make(map[NodeID]int, len(g.order))
	ready := &rankHeap{rank: rank}
	for _, id := range g.order {
		inDegree[id] = g.preds[id].Len()
		if inDegree[id] == 0 {
			ready.ids = append(ready.ids, id)
		}
	}
	heap.Init(ready)
	sorted := make([]NodeID, 0, len(g.order))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(NodeID)
		sorted = append(sorted, id)
		for succ := range g.succs[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				heap.Push(ready, succ)
			}
		}
	}
	if len(sorted) != len(g.order) {
		return nil, errors.Wrapf(ErrCycle, "graph %q: only %d of %d nodes could be sorted", g.Name, len(sorted), len(g.order))
	}
	return sorted, nil
}

// rankHeap is a min-heap of node ids ordered by insertion rank.
type rankHeap struct {
	ids  []NodeID
	rank map[NodeID]int
}

func (h *rankHeap) Len() int           { return len(h.ids) }
func (h *rankHeap) Less(i, j int) bool { return h.rank[h.ids[i]] < h.rank[h.ids[j]] }
func (h *rankHeap) Swap(i, j int)      { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *rankHeap) Push(x any)         { h.ids = append(h.ids, x.(NodeID)) }
func (h *rankHeap) Pop() any {
	last := h.ids[len(h.ids)-1]
	h.ids = h.ids[:len(h.ids)-1]
	return last
}

// Validate checks the graph invariants: single producer per tensor, edges consistent with the
// inputs, AuxOutput nodes attached to their parents, and acyclicity.
func (g *Graph) Validate() error {
	for _, id := range g.order {
		n := g.nodes[id]
		if produced := n.producedTensor(); produced != "" && g.producers[produced] != id {
			return errors.Wrapf(ErrInvalid, "node %q: tensor %q registered as produced by %q", id, produced, g.producers[produced])
		}
		if n.op == OpTypeAuxOutput {
			if err := g.checkAuxOutput(n); err != nil {
				return err
			}
		}
		wantPreds := sets.Make[NodeID]()
		for _, input := range n.inputs {
			if !g.consumers[input].Has(id) {
				return errors.Wrapf(ErrInvalid, "node %q: not registered as consumer of %q", id, input)
			}
			if producer, found := g.producers[input]; found {
				wantPreds.Insert(producer)
			}
		}
		if parent := n.auxParent(); parent != "" {
			wantPreds.Insert(parent)
		}
		if !wantPreds.Equal(g.preds[id]) {
			return errors.Wrapf(ErrInvalid, "node %q: predecessors %v don't match its inputs (want %v)",
				id, sets.Sorted(g.preds[id]), sets.Sorted(wantPreds))
		}
		for succ := range g.succs[id] {
			if !g.preds[succ].Has(id) {
				return errors.Wrapf(ErrInvalid, "edge %q -> %q missing its reverse", id, succ)
			}
		}
	}
	for tensor, id := range g.producers {
		if !g.Has(id) {
			return errors.Wrapf(ErrInvalid, "tensor %q produced by missing node %q", tensor, id)
		}
	}
	_, err := g.TopologicalOrder()
	return err
}
