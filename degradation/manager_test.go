package degradation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nr-labs/nrdot-core/record"
)

func TestManager_EscalatesOnTriggeredSample(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	m := New(cfg, nil, nil)
	assert.Equal(t, 0, m.Level())

	m.Assess(Sample{MemoryUtilizationPercent: 95})
	assert.Equal(t, 3, m.Level())
}

func TestManager_DowngradeBlockedWithinCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownPeriod = 3600
	require.NoError(t, cfg.Validate())

	m := New(cfg, nil, nil)
	m.Assess(Sample{MemoryUtilizationPercent: 95})
	require.Equal(t, 3, m.Level())

	m.Assess(Sample{}) // resource pressure gone, but cooldown hasn't elapsed
	assert.Equal(t, 3, m.Level())
}

func TestManager_DowngradeAllowedAfterCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownPeriod = 1
	require.NoError(t, cfg.Validate())

	m := New(cfg, nil, nil)
	m.Assess(Sample{MemoryUtilizationPercent: 95})
	require.Equal(t, 3, m.Level())

	m.mu.Lock()
	m.lastLevelChange = time.Now().Add(-2 * time.Second)
	m.mu.Unlock()

	m.Assess(Sample{})
	assert.Equal(t, 0, m.Level())
}

func TestManager_UpgradeNeverBlockedByCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownPeriod = 3600
	require.NoError(t, cfg.Validate())

	m := New(cfg, nil, nil)
	m.Assess(Sample{MemoryUtilizationPercent: 76}) // bucket 1
	require.Equal(t, 1, m.Level())

	m.Assess(Sample{MemoryUtilizationPercent: 95}) // bucket 3, an upgrade
	assert.Equal(t, 3, m.Level())
}

func TestManager_Level3ActionsHoldEveryLowerLevelAction(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	m := New(cfg, nil, nil)
	m.Assess(Sample{MemoryUtilizationPercent: 95}) // level 3
	sampleRate, batch, scrape, dropDebug, dropMetrics := m.Actions()
	assert.Equal(t, 2, batch)          // held from level 1's inc_batch
	assert.Equal(t, 2, scrape)         // held from level 1's stretch_scrape
	assert.Equal(t, 0.5, sampleRate)   // held from level 2's enable_sampling
	assert.True(t, dropDebug)
	assert.True(t, dropMetrics)
}

func TestManager_ActionsAreLastWriterWinsAcrossReassessments(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	m := New(cfg, nil, nil)
	m.Assess(Sample{MemoryUtilizationPercent: 95}) // level 3
	require.Equal(t, 3, m.Level())

	m.mu.Lock()
	m.lastLevelChange = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	m.Assess(Sample{MemoryUtilizationPercent: 76}) // downgrade to level 1
	sampleRate, batch, scrape, dropDebug, dropMetrics := m.Actions()
	assert.Equal(t, 1, m.Level())
	assert.Equal(t, 2, batch)
	assert.Equal(t, 2, scrape)
	assert.Equal(t, 1.0, sampleRate) // not held over from level 3: reapplied fresh
	assert.False(t, dropDebug)
	assert.False(t, dropMetrics)
}

func TestManager_AdmitDropsMetricsAtDropMetricsLevel(t *testing.T) {
	cfg := DefaultConfig()
	// Level 3 carries drop_metrics alone here: the default level 3 also
	// holds enable_sampling, which drops about half of every other kind.
	cfg.Levels = []Level{{ID: 1}, {ID: 2}, {ID: 3, Actions: []string{"drop_metrics"}}}
	require.NoError(t, cfg.Validate())

	m := New(cfg, nil, nil)
	m.Assess(Sample{MemoryUtilizationPercent: 95})

	admitted := m.Admit(record.Record{Kind: record.KindMetric})
	assert.False(t, admitted)

	admitted = m.Admit(record.Record{Kind: record.KindTrace})
	assert.True(t, admitted)
}

func TestManager_AdmitPassesEverythingAtLevelZero(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	m := New(cfg, nil, nil)
	assert.True(t, m.Admit(record.Record{Kind: record.KindMetric, Debug: true}))
}
