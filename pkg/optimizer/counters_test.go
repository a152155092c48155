// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	c := NewCounters()
	assert.Equal(t, 0, c.Get(CounterRemoveIdentity))
	c.Inc(CounterRemoveIdentity)
	c.Inc(CounterRemoveIdentity)
	c.Inc(CounterElideIdentity)
	assert.Equal(t, 2, c.Get(CounterRemoveIdentity))
	assert.Equal(t, 3, c.Total())
	assert.Equal(t, []string{CounterElideIdentity, CounterRemoveIdentity}, c.Names())

	c.Reset()
	assert.Equal(t, 0, c.Total())
	assert.Empty(t, c.Names())
}

func TestCountersCollector(t *testing.T) {
	c := NewCounters()
	c.Inc(CounterRemoveIdentity)
	c.Inc(CounterRemoveIdentity)
	c.Inc(CounterFuseGroupNormalization)
	require.Equal(t, 2, testutil.CollectAndCount(c, "nnopt_rewrites_total"))

	expected := `
# HELP nnopt_rewrites_total Number of structural graph rewrites applied, per counter.
# TYPE nnopt_rewrites_total counter
nnopt_rewrites_total{counter="FuseGroupNormalization"} 1
nnopt_rewrites_total{counter="RemoveIdentity"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "nnopt_rewrites_total"))

	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(c))
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "nnopt_rewrites_total", families[0].GetName())
}
