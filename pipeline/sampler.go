package pipeline

import (
	"runtime"

	"github.com/nr-labs/nrdot-core/degradation"
)

// defaultSampler builds a degradation.Sample from the Go runtime's own
// memory stats and the live queue depth, grounded on the teacher's
// processor.go updateMetrics (runtime.ReadMemStats, HeapInuse+StackInuse
// over Sys as the memory utilization ratio). CPU, error rate, and latency
// are left for the embedder to wire in from their own monitoring stack;
// zero values simply never trip those triggers.
func (p *Pipeline) defaultSampler() func() degradation.Sample {
	return func() degradation.Sample {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		var memUtil float64
		if mem.Sys > 0 {
			memUtil = float64(mem.HeapInuse+mem.StackInuse) / float64(mem.Sys) * 100
		}

		var queueUtil float64
		if p.cfg.PriorityQueue.MaxSize > 0 {
			queueUtil = float64(p.queue.Size()) / float64(p.cfg.PriorityQueue.MaxSize) * 100
		}

		return degradation.Sample{
			MemoryUtilizationPercent: memUtil,
			QueueUtilizationPercent:  queueUtil,
		}
	}
}
