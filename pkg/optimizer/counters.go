// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"maps"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter names.
const (
	// CounterRemoveIdentity counts the nodes folded or recolored to the no-op by RemoveIdentity.
	CounterRemoveIdentity = "RemoveIdentity"

	// CounterElideIdentity counts the no-op nodes spliced out of the graph by RemoveIdentity.
	CounterElideIdentity = "ElideIdentity"

	// CounterFuseGroupNormalization counts the GroupNormalization nodes created.
	CounterFuseGroupNormalization = "FuseGroupNormalization"
)

var rewritesDesc = prometheus.NewDesc(
	"nnopt_rewrites_total",
	"Number of structural graph rewrites applied, per counter.",
	[]string{"counter"}, nil,
)

// Counters of the structural rewrites applied, by name. They are diagnostic only.
//
// Counters implements prometheus.Collector, so it can be registered on a prometheus.Registry.
// Collect may be called concurrently with the passes, hence the mutex.
type Counters struct {
	mu     sync.Mutex
	counts map[string]int
}

var _ prometheus.Collector = (*Counters)(nil)

// NewCounters returns a zeroed Counters.
func NewCounters() *Counters {
	return &Counters{counts: make(map[string]int)}
}

// Inc increments the named counter by one.
func (c *Counters) Inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
}

// Get returns the value of the named counter, 0 if it was never incremented.
func (c *Counters) Get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Total returns the sum of all counters.
func (c *Counters) Total() (total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, count := range c.counts {
		total += count
	}
	return
}

// Names returns the sorted names of the counters incremented so far.
func (c *Counters) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.counts))
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.counts)
}

// Describe implements prometheus.Collector.
func (c *Counters) Describe(ch chan<- *prometheus.Desc) {
	ch <- rewritesDesc
}

// Collect implements prometheus.Collector.
func (c *Counters) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.Names() {
		ch <- prometheus.MustNewConstMetric(rewritesDesc, prometheus.CounterValue, float64(c.Get(name)), name)
	}
}
