package degradation

import "fmt"

// Level names a degradation tier and the actions applied when it is
// entered (spec.md §4.4: L0-L3).
type Level struct {
	ID      int      `mapstructure:"id"`
	Actions []string `mapstructure:"actions"`
}

// Triggers are the resource-utilization thresholds that drive escalation.
type Triggers struct {
	MemoryUtilizationHigh int     `mapstructure:"memory_utilization_high"`
	QueueUtilizationHigh  int     `mapstructure:"queue_utilization_high"`
	CPUUtilizationHigh    int     `mapstructure:"cpu_utilization_high"`
	LatencyP99HighMillis  int     `mapstructure:"latency_p99_high_millis"`
	ErrorRateHighPercent  float64 `mapstructure:"error_rate_high_percent"`
}

// Config is the validated configuration for a Manager.
type Config struct {
	Triggers       Triggers `mapstructure:"triggers"`
	Levels         []Level  `mapstructure:"levels"`
	CheckInterval  int      `mapstructure:"check_interval_seconds"`
	CooldownPeriod int      `mapstructure:"cooldown_period_seconds"`
}

var validActions = map[string]bool{
	"inc_batch":       true,
	"stretch_scrape":  true,
	"enable_sampling": true,
	"drop_debug":      true,
	"drop_metrics":    true,
}

// Validate fills defaults and rejects invalid values.
func (c *Config) Validate() error {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5
	}
	if c.CooldownPeriod <= 0 {
		c.CooldownPeriod = 60
	}
	if len(c.Levels) == 0 {
		c.Levels = defaultLevels()
	}
	for _, lvl := range c.Levels {
		for _, action := range lvl.Actions {
			if !validActions[action] {
				return fmt.Errorf("degradation: invalid action %q in level %d", action, lvl.ID)
			}
		}
	}

	if c.Triggers.MemoryUtilizationHigh <= 0 {
		c.Triggers.MemoryUtilizationHigh = 75
	} else if c.Triggers.MemoryUtilizationHigh > 95 {
		return fmt.Errorf("degradation: memory_utilization_high must be <= 95")
	}
	if c.Triggers.QueueUtilizationHigh <= 0 {
		c.Triggers.QueueUtilizationHigh = 70
	} else if c.Triggers.QueueUtilizationHigh > 95 {
		return fmt.Errorf("degradation: queue_utilization_high must be <= 95")
	}
	if c.Triggers.CPUUtilizationHigh <= 0 {
		c.Triggers.CPUUtilizationHigh = 80
	}
	if c.Triggers.LatencyP99HighMillis <= 0 {
		c.Triggers.LatencyP99HighMillis = 500
	}
	if c.Triggers.ErrorRateHighPercent <= 0 {
		c.Triggers.ErrorRateHighPercent = 10
	} else if c.Triggers.ErrorRateHighPercent > 100 {
		return fmt.Errorf("degradation: error_rate_high_percent must be <= 100")
	}
	return nil
}

// defaultLevels are cumulative: each level's action list includes every
// action held by the levels below it (spec.md §4.4: "L2 = L1 actions held +
// enable_sampling", "L3 = L2 actions held + drop_debug, drop_metrics").
// setLevelLocked resets to the resting state and then applies exactly the
// entering level's list, so the list itself must carry the lower levels'
// actions forward rather than relying on any additive bookkeeping.
func defaultLevels() []Level {
	return []Level{
		{ID: 1, Actions: []string{"inc_batch", "stretch_scrape"}},
		{ID: 2, Actions: []string{"inc_batch", "stretch_scrape", "enable_sampling"}},
		{ID: 3, Actions: []string{"inc_batch", "stretch_scrape", "enable_sampling", "drop_debug", "drop_metrics"}},
	}
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Triggers: Triggers{
			MemoryUtilizationHigh: 75,
			QueueUtilizationHigh:  70,
			CPUUtilizationHigh:    80,
			LatencyP99HighMillis:  500,
			ErrorRateHighPercent:  10,
		},
		Levels:         defaultLevels(),
		CheckInterval:  5,
		CooldownPeriod: 60,
	}
}
