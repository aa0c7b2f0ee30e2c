package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Sample is one snapshot of host and process load.
type Sample struct {
	CPUPercent        float64
	ProcessCPUPercent float64 // per core, can exceed 100
	ProcessRSSMB      float64
	IOWaitPercent     float64
	MemoryPercent     float64
	DiskReadMBps      float64
	DiskWriteMBps     float64
	Timestamp         time.Time
}

// Collector samples system load periodically while an update runs.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastDisk     map[string]disk.IOCountersStat
	lastDiskTime time.Time
	lastCPU      *cpu.TimesStat

	mu   sync.RWMutex
	last *Sample
}

// NewCollector creates a collector. Intervals below one second fall back to
// thirty seconds.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Start samples until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			s := c.Collect()
			c.logger.Info("System metrics",
				zap.Float64("sys_cpu", s.CPUPercent),
				zap.Float64("proc_cpu", s.ProcessCPUPercent),
				zap.String("proc_rss", fmt.Sprintf("%.1f MB", s.ProcessRSSMB)),
				zap.Float64("iowait", s.IOWaitPercent),
				zap.Float64("mem_pct", s.MemoryPercent),
				zap.String("disk_r", fmt.Sprintf("%.1f MB/s", s.DiskReadMBps)),
				zap.String("disk_w", fmt.Sprintf("%.1f MB/s", s.DiskWriteMBps)),
			)
		}
	}
}

// Last returns the most recent sample, or nil before the first one.
func (c *Collector) Last() *Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Collect takes a sample now. Rates are zero on the first call.
func (c *Collector) Collect() Sample {
	s := Sample{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			s.ProcessRSSMB = float64(info.RSS) / (1024 * 1024)
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vm.UsedPercent
	}
	s.IOWaitPercent = c.ioWait()
	s.DiskReadMBps, s.DiskWriteMBps = c.diskRates(s.Timestamp)

	c.mu.Lock()
	c.last = &s
	c.mu.Unlock()
	return s
}

func (c *Collector) ioWait() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0
	}
	cur := times[0]
	last := c.lastCPU
	c.lastCPU = &cur
	if last == nil {
		return 0
	}
	total := cur.Total() - last.Total()
	if total <= 0 {
		return 0
	}
	return (cur.Iowait - last.Iowait) / total * 100
}

func (c *Collector) diskRates(now time.Time) (readMBps, writeMBps float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}
	last, lastTime := c.lastDisk, c.lastDiskTime
	c.lastDisk, c.lastDiskTime = counters, now
	elapsed := now.Sub(lastTime).Seconds()
	if last == nil || elapsed < 0.1 {
		return 0, 0
	}

	var read, write uint64
	for name, cur := range counters {
		prev, ok := last[name]
		if !ok {
			continue
		}
		// Counters may wrap.
		if cur.ReadBytes >= prev.ReadBytes {
			read += cur.ReadBytes - prev.ReadBytes
		}
		if cur.WriteBytes >= prev.WriteBytes {
			write += cur.WriteBytes - prev.WriteBytes
		}
	}
	return float64(read) / elapsed / (1024 * 1024), float64(write) / elapsed / (1024 * 1024)
}
