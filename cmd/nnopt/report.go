// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/nnopt/pkg/core/ir"
	"github.com/gomlx/nnopt/pkg/optimizer"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// graphStats is a snapshot of the graph size.
type graphStats struct {
	numNodes, numConstants, constantsSize int

	// opCounts by operator name. AuxOutput nodes are not counted.
	opCounts map[string]int
}

func takeStats(ctx *optimizer.Context) graphStats {
	stats := graphStats{
		numNodes:     ctx.Graph.Len(),
		numConstants: ctx.Constants.Len(),
		opCounts:     make(map[string]int),
	}
	for _, name := range ctx.Constants.Names() {
		value, _ := ctx.Constants.Get(name)
		stats.constantsSize += value.Size()
	}
	for _, id := range ctx.Graph.Nodes() {
		node := ctx.Graph.MustNode(id)
		if node.Op() == ir.OpTypeAuxOutput {
			continue
		}
		stats.opCounts[opName(node)]++
	}
	return stats
}

// opName returns the operator name as given by the model for unknown operators.
func opName(node *ir.Node) string {
	if attrs, ok := node.Attrs().(*ir.GenericAttrs); ok && attrs.OpName != "" {
		return attrs.OpName
	}
	return node.Op().String()
}

func report(path string, ctx *optimizer.Context, before, after graphStats) {
	fmt.Println(titleStyle.Render("Summary"))
	fmt.Println(summaryTable(path, ctx, before, after).Render())

	fmt.Println(titleStyle.Render("Operators"))
	fmt.Println(operatorsTable(before, after).Render())

	fmt.Println(titleStyle.Render("Rewrites"))
	table := newTable(lipgloss.Left, lipgloss.Right)
	table.Table.Headers("Counter", "Rewrites")
	for _, name := range ctx.Counters.Names() {
		table.Row(false, name, humanize.Comma(int64(ctx.Counters.Get(name))))
	}
	table.Row(true, "total", humanize.Comma(int64(ctx.Counters.Total())))
	fmt.Println(table.Render())
}

func summaryTable(path string, ctx *optimizer.Context, before, after graphStats) *highlightTable {
	table := newTable(lipgloss.Right, lipgloss.Left)
	table.Row(false, "graph", fmt.Sprintf("%s (%s)", ctx.Graph.Name, path))
	table.Row(false, "inputs", strings.Join(ctx.Graph.Inputs, ", "))
	table.Row(false, "outputs", strings.Join(ctx.Graph.Outputs, ", "))
	table.Row(before.numNodes != after.numNodes, "# nodes",
		fmt.Sprintf("%s -> %s", humanize.Comma(int64(before.numNodes)), humanize.Comma(int64(after.numNodes))))
	table.Row(before.numConstants != after.numConstants, "# constants",
		fmt.Sprintf("%s -> %s", humanize.Comma(int64(before.numConstants)), humanize.Comma(int64(after.numConstants))))
	table.Row(false, "# constant elements", humanize.Comma(int64(after.constantsSize)))
	table.Row(false, "# known shapes", humanize.Comma(int64(ctx.Shapes.Len())))
	return table
}

func operatorsTable(before, after graphStats) *highlightTable {
	table := newTable(lipgloss.Left, lipgloss.Right)
	table.Table.Headers("Operator", "Before", "After")
	names := make(map[string]bool, len(before.opCounts)+len(after.opCounts))
	for name := range before.opCounts {
		names[name] = true
	}
	for name := range after.opCounts {
		names[name] = true
	}
	for _, name := range slices.Sorted(maps.Keys(names)) {
		b, a := before.opCounts[name], after.opCounts[name]
		table.Row(a != b, name, humanize.Comma(int64(b)), humanize.Comma(int64(a)))
	}
	return table
}

// metricsTable registers the counters in a new Prometheus registry, and lists what it gathers.
func metricsTable(counters *optimizer.Counters) (*highlightTable, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(counters); err != nil {
		return nil, errors.Wrap(err, "registering rewrite counters")
	}
	families, err := registry.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gathering metrics")
	}
	table := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Table.Headers("Metric", "Labels", "Value")
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", label.GetName(), label.GetValue()))
			}
			table.Row(false, family.GetName(), strings.Join(labels, ","),
				humanize.Ftoa(metric.GetCounter().GetValue()))
		}
	}
	return table, nil
}
