package dlq

import (
	"fmt"
	"path/filepath"
)

// Config is the validated configuration for a Store.
type Config struct {
	// Directory is the path DLQ segment files are written under.
	Directory string `mapstructure:"directory"`

	// FileSizeLimitMiB is the maximum size of one segment file before
	// rotation.
	FileSizeLimitMiB int `mapstructure:"file_size_limit_mib"`

	// VerifySHA256 makes each write tag the record's end sentinel with the
	// SHA-256 of its frame. Replay verifies every record whose sentinel
	// carries such a tag, whatever this setting is at replay time.
	VerifySHA256 bool `mapstructure:"verify_sha256"`

	// ReplayRateMiBSec caps the replay throughput.
	ReplayRateMiBSec float64 `mapstructure:"replay_rate_mib_sec"`

	// InterleaveRatio is the number of replay records admitted per live
	// enqueue admitted (1 means 1:1).
	InterleaveRatio int `mapstructure:"interleave_ratio"`

	// RetentionHours bounds how long a segment file is kept before the
	// hourly sweep deletes it.
	RetentionHours int `mapstructure:"retention_hours"`

	// FilePrefix names the segment files written under Directory.
	FilePrefix string `mapstructure:"file_prefix"`

	// ReplayOnStart makes pipeline.Run start a replay of existing segments
	// when it starts. Opening a Store does not replay by itself.
	ReplayOnStart bool `mapstructure:"replay_on_start"`

	// ReplayConcurrency is the number of worker goroutines draining the
	// replay channel.
	ReplayConcurrency int `mapstructure:"replay_concurrency"`
}

// Validate fills defaults, rejects invalid values, and resolves Directory
// to an absolute path.
func (c *Config) Validate() error {
	if c.Directory == "" {
		c.Directory = "/var/lib/nrdot/dlq"
	}
	abs, err := filepath.Abs(c.Directory)
	if err != nil {
		return fmt.Errorf("dlq: resolving directory %q: %w", c.Directory, err)
	}
	c.Directory = abs

	if c.FileSizeLimitMiB <= 0 {
		c.FileSizeLimitMiB = 100
	}
	if c.ReplayRateMiBSec <= 0 {
		c.ReplayRateMiBSec = 4
	}
	if c.InterleaveRatio <= 0 {
		c.InterleaveRatio = 1
	}
	if c.RetentionHours <= 0 {
		c.RetentionHours = 72
	}
	if c.FilePrefix == "" {
		c.FilePrefix = "nrdot-dlq"
	}
	if c.ReplayConcurrency <= 0 {
		c.ReplayConcurrency = 1
	}
	return nil
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Directory:         "/var/lib/nrdot/dlq",
		FileSizeLimitMiB:  100,
		VerifySHA256:      true,
		ReplayRateMiBSec:  4,
		InterleaveRatio:   1,
		RetentionHours:    72,
		FilePrefix:        "nrdot-dlq",
		ReplayOnStart:     false,
		ReplayConcurrency: 1,
	}
}
