// Package observability reports process and hub health through the logger.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsProvider supplies application-level gauges for the periodic report.
type StatsProvider func() map[string]any

// Reporter periodically logs memory, goroutine, and application stats.
// Runs under the supervisor like any other worker.
type Reporter struct {
	log      *slog.Logger
	interval time.Duration
	stats    StatsProvider
	proc     *process.Process
}

func NewReporter(log *slog.Logger, interval time.Duration, stats StatsProvider) *Reporter {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process metrics unavailable", "error", err)
	}
	return &Reporter{log: log, interval: interval, stats: stats, proc: proc}
}

func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	attrs := []any{
		"alloc_mb", mem.Alloc / 1024 / 1024,
		"num_gc", mem.NumGC,
		"goroutines", runtime.NumGoroutine(),
	}
	if r.proc != nil {
		if info, err := r.proc.MemoryInfo(); err == nil {
			attrs = append(attrs, "rss_mb", info.RSS/1024/1024)
		}
		if cpu, err := r.proc.CPUPercent(); err == nil {
			attrs = append(attrs, "cpu_percent", cpu)
		}
	}
	for key, value := range r.stats() {
		attrs = append(attrs, key, value)
	}
	r.log.Info("Health report", attrs...)
}
