// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

// DefaultEpsilon used by fused normalizations when the source operator doesn't set one.
const DefaultEpsilon = float32(1e-5)

// Config holds the options of the passes. Create it with DefaultConfig and modify it with
// Option values passed to NewContext.
type Config struct {
	// DefaultEpsilon is used by FuseGroupNormalization when the InstanceNormalization
	// has no epsilon attribute.
	DefaultEpsilon float32

	// DebugMatches logs every pattern match (and the reason of near-misses) at the default
	// verbosity level. Otherwise, they are only logged with -v=2.
	DebugMatches bool

	// Validate makes Run check the graph invariants after every pass.
	Validate bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{DefaultEpsilon: DefaultEpsilon}
}

// Option modifies a Config.
type Option func(config *Config)

// WithDefaultEpsilon sets Config.DefaultEpsilon.
func WithDefaultEpsilon(epsilon float32) Option {
	return func(config *Config) { config.DefaultEpsilon = epsilon }
}

// WithDebugMatches sets Config.DebugMatches.
func WithDebugMatches(enabled bool) Option {
	return func(config *Config) { config.DebugMatches = enabled }
}

// WithValidation sets Config.Validate.
func WithValidation(enabled bool) Option {
	return func(config *Config) { config.Validate = enabled }
}
