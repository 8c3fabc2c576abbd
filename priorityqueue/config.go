package priorityqueue

import "fmt"

// Config is the validated configuration for a Queue.
type Config struct {
	// Weights gives the WRR allocation per class for one scheduling round.
	// Default: critical=5, high=3, normal=1 (spec.md §4.2).
	Weights map[string]int `mapstructure:"weights"`

	// MaxSize bounds the total number of items held across all classes.
	MaxSize int `mapstructure:"max_size"`

	// SpillThresholdPercent is the percentage of MaxSize at which new
	// Normal-class enqueues are diverted to the DLQ instead of admitted.
	// High and Critical records tolerate higher occupancy; see
	// HighSpillThresholdPercent.
	SpillThresholdPercent int `mapstructure:"spill_threshold_percent"`

	// CircuitBreakerEnabled gates the breaker wrapping the downstream send.
	CircuitBreakerEnabled bool `mapstructure:"circuit_breaker_enabled"`

	// CircuitBreakerErrorThreshold is the error percentage (0-100) that
	// trips the breaker open once at least 10 outcomes have accumulated
	// (spec.md §4.2: "≥ 10 outcomes ... and the error fraction ≥
	// error_threshold_pct").
	CircuitBreakerErrorThreshold int `mapstructure:"circuit_breaker_error_threshold"`

	// HighSpillThresholdPercent is the secondary, higher spill threshold
	// applied to High-class records (spec.md §4.2: Normal diverts at
	// SpillThresholdPercent, High only above this higher bar, Critical
	// only when the queue is completely full).
	HighSpillThresholdPercent int `mapstructure:"high_spill_threshold_percent"`

	// CircuitBreakerResetTimeout is the open-state duration, in seconds,
	// before a single half-open probe is allowed through.
	CircuitBreakerResetTimeout int `mapstructure:"circuit_breaker_reset_timeout"`
}

// Validate fills defaults and rejects invalid values.
func (c *Config) Validate() error {
	if len(c.Weights) == 0 {
		c.Weights = map[string]int{"critical": 5, "high": 3, "normal": 1}
	}
	for _, name := range []string{"critical", "high", "normal"} {
		if c.Weights[name] < 0 {
			return fmt.Errorf("priorityqueue: negative weight for class %q", name)
		}
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 10000
	}
	if c.SpillThresholdPercent <= 0 || c.SpillThresholdPercent > 100 {
		c.SpillThresholdPercent = 95
	}
	if c.HighSpillThresholdPercent <= 0 || c.HighSpillThresholdPercent > 100 {
		c.HighSpillThresholdPercent = 99
	}
	if c.CircuitBreakerErrorThreshold <= 0 || c.CircuitBreakerErrorThreshold > 100 {
		c.CircuitBreakerErrorThreshold = 50
	}
	if c.CircuitBreakerResetTimeout <= 0 {
		c.CircuitBreakerResetTimeout = 60
	}
	return nil
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Weights:                      map[string]int{"critical": 5, "high": 3, "normal": 1},
		MaxSize:                      10000,
		SpillThresholdPercent:        95,
		HighSpillThresholdPercent:    99,
		CircuitBreakerEnabled:        true,
		CircuitBreakerErrorThreshold: 50,
		CircuitBreakerResetTimeout:   60,
	}
}
