// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// nnopt runs the graph rewrite passes over a JSON graph dump and reports what changed.
//
// Usage:
//
//	nnopt [flags] graph.json
//
// See package graphio for the format of the dump.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/nnopt/pkg/graphio"
	"github.com/gomlx/nnopt/pkg/optimizer"
	"github.com/gomlx/nnopt/pkg/support/fsutil"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"k8s.io/klog/v2"
)

var (
	flagPasses = flag.String("passes", "", "Comma-separated list of passes to run, in order. "+
		"Empty runs all of them: RemoveIdentity, FuseGroupNormalization.")
	flagEpsilon = flag.Float64("epsilon", float64(optimizer.DefaultEpsilon),
		"Epsilon of fused normalizations, when the source operator doesn't set one.")
	flagDebugMatches = flag.Bool("debug_matches", false, "Log every pattern match and the reason of near-misses.")
	flagValidate     = flag.Bool("validate", true, "Validate the graph invariants after every pass.")
	flagMetrics      = flag.Bool("metrics", false, "Also print the rewrite counters as Prometheus metrics.")
	flagNoColor      = flag.Bool("no_color", false, "Disable colors in the reports.")
	flagOutput       = flag.String("output", "", "If set, write the rewritten graph as a JSON dump to this file.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing graph dump to optimize. See 'nnopt -help'")
		os.Exit(1)
	}
	if len(args) > 1 {
		klog.Errorf("Too many arguments. See 'nnopt -help'.")
		os.Exit(1)
	}
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	passes, err := optimizer.PassesByName(*flagPasses)
	if err != nil {
		klog.Errorf("Invalid -passes: %+v", err)
		os.Exit(1)
	}
	inputPath := must.M1(fsutil.ExpandPath(args[0]))
	ctx := must.M1(graphio.ReadFile(inputPath,
		optimizer.WithDefaultEpsilon(float32(*flagEpsilon)),
		optimizer.WithDebugMatches(*flagDebugMatches),
		optimizer.WithValidation(*flagValidate)))
	before := takeStats(ctx)
	if err := optimizer.Run(ctx, passes...); err != nil {
		klog.Errorf("Failed to optimize %q: %+v", inputPath, err)
		os.Exit(1)
	}
	after := takeStats(ctx)

	report(inputPath, ctx, before, after)
	if *flagMetrics {
		fmt.Println(titleStyle.Render("Metrics"))
		fmt.Println(must.M1(metricsTable(ctx.Counters)).Render())
	}
	if *flagOutput != "" {
		outputPath := must.M1(fsutil.ExpandPath(*flagOutput))
		if must.M1(fsutil.SameFile(inputPath, outputPath)) {
			klog.Errorf("-output %q would overwrite the input graph", *flagOutput)
			os.Exit(1)
		}
		if must.M1(fsutil.FileExists(outputPath)) {
			klog.Warningf("Overwriting %q", outputPath)
		}
		must.M(graphio.WriteFile(outputPath, ctx))
		klog.V(1).Infof("Wrote optimized graph to %q", outputPath)
	}
}
