package cardinalitylimiter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nr-labs/nrdot-core/record"
)

func attrs(name, value string) record.AttributeSet {
	return record.AttributeSet{name: record.StringAttr(value)}
}

func TestLimiter_AdmitsUntilFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUniqueKeySets = 4
	require.NoError(t, cfg.Validate())

	lim := New(cfg, nil, nil)
	for i := 0; i < 4; i++ {
		d, _ := lim.Admit(record.Record{Kind: record.KindMetric, Attributes: attrs("id", string(rune('a'+i)))})
		assert.Equal(t, Keep, d)
	}
	assert.Equal(t, 4, lim.TableSize())
}

func TestLimiter_RepeatedKeySetAlwaysKept(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUniqueKeySets = 1
	require.NoError(t, cfg.Validate())

	lim := New(cfg, nil, nil)
	a := attrs("id", "x")
	d1, _ := lim.Admit(record.Record{Kind: record.KindMetric, Attributes: a})
	require.Equal(t, Keep, d1)

	for i := 0; i < 10; i++ {
		d, _ := lim.Admit(record.Record{Kind: record.KindMetric, Attributes: a})
		assert.Equal(t, Keep, d)
	}
	assert.Equal(t, 1, lim.TableSize())
}

func TestLimiter_MetricsOnlyPassesNonMetricsThrough(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUniqueKeySets = 1
	cfg.MetricsOnly = true
	require.NoError(t, cfg.Validate())

	lim := New(cfg, nil, nil)
	// Fill the one slot with a metric.
	d0, _ := lim.Admit(record.Record{Kind: record.KindMetric, Attributes: attrs("id", "seed")})
	require.Equal(t, Keep, d0)

	// A distinct trace key-set bypasses cardinality control entirely.
	d, a := lim.Admit(record.Record{Kind: record.KindTrace, Attributes: attrs("id", "trace-1")})
	assert.Equal(t, Keep, d)
	assert.Equal(t, "trace-1", a["id"].String())
	assert.Equal(t, 1, lim.TableSize())
}

func TestLimiter_NewKeySetDroppedWhenFullAndNoOccupantScoresLower(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUniqueKeySets = 1
	require.NoError(t, cfg.Validate())

	lim := New(cfg, nil, nil)
	seed := attrs("id", "common")
	_, _ = lim.Admit(record.Record{Kind: record.KindMetric, Attributes: seed})

	// The seed was scored 1.0 on admission (nothing had been observed yet)
	// and a stored score is never recomputed, so observing "common" many
	// more times leaves the occupant's score at 1.0.
	other := attrs("id", "rare-once")
	for i := 0; i < 50; i++ {
		lim.entropy.observe(seed)
	}

	d, _ := lim.Admit(record.Record{Kind: record.KindMetric, Attributes: other})
	// other carries an unseen value: 1.0 scaled by the one-label factor
	// 0.82 lands in the aggregate tier. Its reduced key-set is new and the
	// only occupant (1.0) does not score strictly lower, so nothing is
	// evicted and the record is dropped.
	assert.Equal(t, Drop, d)
	assert.LessOrEqual(t, lim.TableSize(), 1)
}

// TestLimiter_CardinalitySaturationScenario mirrors the seed scenario from
// spec.md §8 in reduced form: 500 distinct key-sets against a table capped
// at 100 entries. Each key-set carries a random 12-character id and a
// random 4-character service, so every value is unseen and every key-set
// after the first scores the same (1.0 scaled by the two-label factor
// 0.84). The table must never exceed its bound plus the in-flight
// aggregate/evict slack, and the large majority of admissions must be
// turned away as drop or aggregate.
func TestLimiter_CardinalitySaturationScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUniqueKeySets = 100
	require.NoError(t, cfg.Validate())

	lim := New(cfg, nil, nil)
	rng := rand.New(rand.NewSource(1))

	var turnedAway int
	for i := 0; i < 500; i++ {
		a := record.AttributeSet{
			"id":      record.StringAttr(randString(rng, 12)),
			"service": record.StringAttr(randString(rng, 4)),
		}
		d, _ := lim.Admit(record.Record{Kind: record.KindMetric, Attributes: a})
		if d != Keep {
			turnedAway++
		}
	}

	assert.LessOrEqual(t, lim.TableSize(), 104)
	assert.GreaterOrEqual(t, turnedAway, 396)
}

func randString(rng *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}
