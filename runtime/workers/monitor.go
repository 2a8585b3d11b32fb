package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"cloud-connect/observability"
	"cloud-connect/runtime"
)

// MonitorWorker periodically folds process self-stats (RSS, CPU) and
// registry counts into the observability manager backing the health
// endpoint.
type MonitorWorker struct {
	log        *slog.Logger
	registry   *runtime.Registry
	monitoring *observability.Manager
	interval   time.Duration
}

func NewMonitorWorker(log *slog.Logger, registry *runtime.Registry,
	monitoring *observability.Manager, interval time.Duration) *MonitorWorker {
	return &MonitorWorker{
		log:        log,
		registry:   registry,
		monitoring: monitoring,
		interval:   interval,
	}
}

func (w *MonitorWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var rss uint64
			if mem, err := proc.MemoryInfo(); err == nil {
				rss = mem.RSS
			} else {
				w.log.Debug("memory stats unavailable", "error", err)
			}
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Debug("cpu stats unavailable", "error", err)
			}

			connections, rooms := w.registry.Stats()
			w.monitoring.Collect(connections, rooms, rss, cpu)
		}
	}
}
