// Package vitals records a baseline of process metrics after startup and accepts
// web-vitals measurements posted by browsers.
package vitals

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"runtime/metrics"

	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one baseline measurement of the server process.
type Sample struct {
	PID        int32
	RSSBytes   uint64
	CPUPercent float64
	NumThreads int32
	Goroutines uint64
	HeapBytes  uint64
	GCCycles   uint64
}

// Collector takes a Sample.
type Collector interface {
	Collect(ctx context.Context) (Sample, error)
}

// ProcessCollector samples the current process.
type ProcessCollector struct{}

var runtimeMetrics = []string{
	"/sched/goroutines:goroutines",
	"/memory/classes/heap/objects:bytes",
	"/gc/cycles/total:gc-cycles",
}

func (ProcessCollector) Collect(ctx context.Context) (Sample, error) {
	pid := int32(os.Getpid())
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return Sample{}, fmt.Errorf("open process %d: %w", pid, err)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("memory info: %w", err)
	}
	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("cpu percent: %w", err)
	}
	threads, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("thread count: %w", err)
	}

	s := Sample{
		PID:        pid,
		RSSBytes:   mem.RSS,
		CPUPercent: cpu,
		NumThreads: threads,
	}

	samples := make([]metrics.Sample, len(runtimeMetrics))
	for i, name := range runtimeMetrics {
		samples[i].Name = name
	}
	metrics.Read(samples)
	for _, m := range samples {
		if m.Value.Kind() != metrics.KindUint64 {
			continue
		}
		switch m.Name {
		case "/sched/goroutines:goroutines":
			s.Goroutines = m.Value.Uint64()
		case "/memory/classes/heap/objects:bytes":
			s.HeapBytes = m.Value.Uint64()
		case "/gc/cycles/total:gc-cycles":
			s.GCCycles = m.Value.Uint64()
		}
	}
	return s, nil
}

// Start collects one baseline sample in the background and logs it.
// Failures are logged and never reach the caller. The returned channel closes when done.
func Start(ctx context.Context, c Collector, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if v := recover(); v != nil {
				logger.Error("vitals_baseline_panicked", "panic", v, "stack", string(debug.Stack()))
			}
		}()

		s, err := c.Collect(ctx)
		if err != nil {
			logger.Warn("vitals_baseline_failed", "error", err)
			return
		}
		logger.Info("vitals_baseline",
			"pid", s.PID,
			"rss_bytes", s.RSSBytes,
			"cpu_percent", s.CPUPercent,
			"threads", s.NumThreads,
			"goroutines", s.Goroutines,
			"heap_bytes", s.HeapBytes,
			"gc_cycles", s.GCCycles,
		)
	}()
	return done
}
