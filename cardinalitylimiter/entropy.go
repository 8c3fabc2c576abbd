package cardinalitylimiter

import (
	"math"
	"sync"

	"github.com/nr-labs/nrdot-core/record"
)

// entropyCeilingBits is the normalization ceiling for information content,
// matching spec.md §4.1 ("a fixed ceiling, e.g. 16 bits").
const entropyCeilingBits = 16.0

// labelCountSaturation is the number of labels at which the label-count
// factor saturates (spec.md §4.1: "saturating at 10 labels").
const labelCountSaturation = 10.0

// entropyCalculator tracks a running frequency distribution of observed
// (name,value) pairs and scores new key-sets by their surprise under that
// distribution. It is owned exclusively by one Limiter.
type entropyCalculator struct {
	mu          sync.Mutex
	labelValues map[string]map[string]int64 // label name -> value -> count
	totalCount  int64
}

func newEntropyCalculator() *entropyCalculator {
	return &entropyCalculator{
		labelValues: make(map[string]map[string]int64),
	}
}

// observe folds a key-set into the historical distribution.
func (e *entropyCalculator) observe(attrs record.AttributeSet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalCount++
	for name, val := range attrs {
		values, ok := e.labelValues[name]
		if !ok {
			values = make(map[string]int64)
			e.labelValues[name] = values
		}
		values[val.String()]++
	}
}

// score computes the entropy-based importance score for a key-set, in
// [0,1], per spec.md §4.1: the mean information content across
// (name,value) pairs, scaled by a mild factor in [0.8,1.0] that grows with
// the number of labels.
func (e *entropyCalculator) score(attrs record.AttributeSet) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.totalCount == 0 || len(attrs) == 0 {
		return 1.0
	}

	var total float64
	for name, val := range attrs {
		total += e.labelScoreLocked(name, val.String())
	}
	avg := total / float64(len(attrs))

	labelCountFactor := math.Min(1.0, float64(len(attrs))/labelCountSaturation)
	return avg * (0.8 + 0.2*labelCountFactor)
}

// labelScoreLocked returns the normalized information content of a single
// observed (name,value) pair. Callers must hold e.mu.
func (e *entropyCalculator) labelScoreLocked(name, value string) float64 {
	values, ok := e.labelValues[name]
	if !ok {
		return 1.0 // new label name: maximally informative
	}
	count, ok := values[value]
	if !ok {
		return 1.0 // new value for a known label: maximally informative
	}

	probability := float64(count) / float64(e.totalCount)
	entropy := -math.Log2(probability)
	return math.Min(1.0, entropy/entropyCeilingBits)
}
