package pipeline

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/nr-labs/nrdot-core/cardinalitylimiter"
	"github.com/nr-labs/nrdot-core/degradation"
	"github.com/nr-labs/nrdot-core/dlq"
	"github.com/nr-labs/nrdot-core/priorityqueue"
)

// LogConfig controls the root zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Config aggregates every component's configuration into the single root
// structure loaded from one YAML file, matching the teacher's mapstructure-
// tagged Config convention carried up one level.
type Config struct {
	Log                LogConfig                 `mapstructure:"log"`
	CardinalityLimiter cardinalitylimiter.Config `mapstructure:"cardinality_limiter"`
	PriorityQueue      priorityqueue.Config      `mapstructure:"priority_queue"`
	DLQ                dlq.Config                `mapstructure:"dlq"`
	Degradation        degradation.Config        `mapstructure:"degradation"`
}

// Validate fills defaults for every subcomponent and surfaces the first
// validation error encountered.
func (c *Config) Validate() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if err := c.CardinalityLimiter.Validate(); err != nil {
		return err
	}
	if err := c.PriorityQueue.Validate(); err != nil {
		return err
	}
	if err := c.DLQ.Validate(); err != nil {
		return err
	}
	if err := c.Degradation.Validate(); err != nil {
		return err
	}
	return nil
}

// DefaultConfig returns the documented defaults for every subcomponent.
func DefaultConfig() Config {
	return Config{
		Log:                LogConfig{Level: "info"},
		CardinalityLimiter: cardinalitylimiter.DefaultConfig(),
		PriorityQueue:      priorityqueue.DefaultConfig(),
		DLQ:                dlq.DefaultConfig(),
		Degradation:        degradation.DefaultConfig(),
	}
}

// Load reads and merges a YAML config file over the documented defaults
// using koanf, then validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(structToMap(cfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("pipeline: loading defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("pipeline: loading config file %s: %w", path, err)
		}
	}

	var out Config
	unmarshalConf := koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &out,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", &out, unmarshalConf); err != nil {
		return Config{}, fmt.Errorf("pipeline: unmarshaling config: %w", err)
	}
	if err := out.Validate(); err != nil {
		return Config{}, fmt.Errorf("pipeline: validating config: %w", err)
	}
	return out, nil
}

// structToMap lets koanf's confmap provider seed from an already-built
// Config value (the programmatic defaults) before the file provider
// overlays user-supplied values, rather than re-deriving defaults through
// a second YAML document.
func structToMap(cfg Config) map[string]interface{} {
	return map[string]interface{}{
		"log": map[string]interface{}{
			"level":       cfg.Log.Level,
			"development": cfg.Log.Development,
		},
		"cardinality_limiter": map[string]interface{}{
			"max_unique_keysets":    cfg.CardinalityLimiter.MaxUniqueKeySets,
			"algorithm":             cfg.CardinalityLimiter.Algorithm,
			"aggregation_dimensions": cfg.CardinalityLimiter.AggregationDimensions,
			"metrics_only":          cfg.CardinalityLimiter.MetricsOnly,
		},
		"priority_queue": map[string]interface{}{
			"weights":                          cfg.PriorityQueue.Weights,
			"max_size":                         cfg.PriorityQueue.MaxSize,
			"spill_threshold_percent":          cfg.PriorityQueue.SpillThresholdPercent,
			"circuit_breaker_enabled":          cfg.PriorityQueue.CircuitBreakerEnabled,
			"circuit_breaker_error_threshold":  cfg.PriorityQueue.CircuitBreakerErrorThreshold,
			"circuit_breaker_reset_timeout":    cfg.PriorityQueue.CircuitBreakerResetTimeout,
		},
		"dlq": map[string]interface{}{
			"directory":            cfg.DLQ.Directory,
			"file_size_limit_mib":  cfg.DLQ.FileSizeLimitMiB,
			"verify_sha256":        cfg.DLQ.VerifySHA256,
			"replay_rate_mib_sec":  cfg.DLQ.ReplayRateMiBSec,
			"interleave_ratio":     cfg.DLQ.InterleaveRatio,
			"retention_hours":      cfg.DLQ.RetentionHours,
			"file_prefix":          cfg.DLQ.FilePrefix,
			"replay_on_start":      cfg.DLQ.ReplayOnStart,
			"replay_concurrency":   cfg.DLQ.ReplayConcurrency,
		},
		"degradation": map[string]interface{}{
			"check_interval_seconds":  cfg.Degradation.CheckInterval,
			"cooldown_period_seconds": cfg.Degradation.CooldownPeriod,
		},
	}
}
