// Package platform samples process resource usage for observability,
// grounded on the teacher's cgroup-aware gopsutil fallback. This is
// strictly informational: sampled values feed metrics gauges only and never
// gate admission, so the proxy never reintroduces a rate-limiting layer.
package platform

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/nickgerrer/stream-proxy/internal/metrics"
)

// Monitor periodically samples this process's CPU and memory usage into a
// metrics.Registry until ctx is cancelled.
type Monitor struct {
	Metrics  *metrics.Registry
	Logger   zerolog.Logger
	Interval time.Duration

	proc *process.Process
}

// NewMonitor builds a Monitor for the current process.
func NewMonitor(reg *metrics.Registry, logger zerolog.Logger, interval time.Duration) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{Metrics: reg, Logger: logger, Interval: interval, proc: proc}, nil
}

// Run samples on a ticker until ctx is cancelled. Intended to be run in its
// own goroutine from main.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	if cpuPct, err := m.proc.CPUPercent(); err == nil {
		if m.Metrics != nil {
			m.Metrics.ProcessCPUPct.Set(cpuPct)
		}
	} else {
		m.Logger.Debug().Err(err).Msg("sample process cpu failed")
	}

	if memInfo, err := m.proc.MemoryInfo(); err == nil {
		if m.Metrics != nil {
			m.Metrics.ProcessMemoryRSS.Set(float64(memInfo.RSS))
		}
	} else {
		m.Logger.Debug().Err(err).Msg("sample process memory failed")
	}
}
