package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuSecondsMetric = "/sched/cpu:seconds"

// ResourceUsage is a coarse view of the process hosting the pipeline.
type ResourceUsage struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryBytes    uint64  `json:"memory_bytes"`
	Goroutines     int     `json:"goroutines"`
	FanoutInFlight int64   `json:"fanout_in_flight"`
}

// resourceTracker samples CPU and memory usage for the web API. CPU usage is
// the delta since the previous sample, so the first call reports zero.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: []metrics.Sample{{Name: cpuSecondsMetric}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

func (r *resourceTracker) Snapshot(fanoutInFlight int64) ResourceUsage {
	if r == nil {
		return ResourceUsage{FanoutInFlight: fanoutInFlight}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{{Name: cpuSecondsMetric}}
	}
	if r.numCPU == 0 {
		r.numCPU = float64(runtime.NumCPU())
	}

	metrics.Read(r.samples)
	now := time.Now()

	var cpuPercent float64
	if sample := r.samples[0]; sample.Value.Kind() == metrics.KindFloat64 {
		cpuSeconds := sample.Value.Float64()
		if !r.lastSample.IsZero() {
			if wall := now.Sub(r.lastSample).Seconds(); wall > 0 {
				cpuPercent = (cpuSeconds - r.lastCPUSeconds) / wall / r.numCPU * 100
			}
		}
		r.lastCPUSeconds = cpuSeconds
	}
	r.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return ResourceUsage{
		CPUPercent:     cpuPercent,
		MemoryBytes:    mem.Alloc,
		Goroutines:     runtime.NumGoroutine(),
		FanoutInFlight: fanoutInFlight,
	}
}
