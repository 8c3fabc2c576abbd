package cardinalitylimiter

import "fmt"

// Config is the validated configuration for a Limiter.
type Config struct {
	// MaxUniqueKeySets is the upper bound on the key-set table (spec.md
	// §4.1, default 65536).
	MaxUniqueKeySets int `mapstructure:"max_unique_keysets"`

	// Algorithm selects the cardinality control strategy. Only "entropy"
	// is fully specified and implemented; "lru" and "random" are accepted
	// by validation (closed set, matching the teacher's three-way
	// switch) but reserved for a future selection strategy.
	Algorithm string `mapstructure:"algorithm"`

	// AggregationDimensions are the attribute names preserved when a
	// key-set is aggregated; every other attribute is collapsed to a
	// short prefix + wildcard marker.
	AggregationDimensions []string `mapstructure:"aggregation_dimensions"`

	// MetricsOnly restricts cardinality control to metric-kind records;
	// trace and log records pass through unchanged when true.
	MetricsOnly bool `mapstructure:"metrics_only"`
}

var validAlgorithms = map[string]bool{"entropy": true, "lru": true, "random": true}

// Validate fills defaults and rejects invalid values.
func (c *Config) Validate() error {
	if c.MaxUniqueKeySets <= 0 {
		c.MaxUniqueKeySets = 65536
	}
	if c.Algorithm == "" {
		c.Algorithm = "entropy"
	}
	if !validAlgorithms[c.Algorithm] {
		return fmt.Errorf("cardinality_limiter: unknown algorithm %q", c.Algorithm)
	}
	if len(c.AggregationDimensions) == 0 {
		c.AggregationDimensions = []string{"service.name", "host.name"}
	}
	return nil
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxUniqueKeySets:      65536,
		Algorithm:             "entropy",
		AggregationDimensions: []string{"service.name", "host.name"},
		MetricsOnly:           true,
	}
}
