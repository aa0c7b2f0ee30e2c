package metrics

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Heartbeat logs the progress of long update loops together with the
// latest system sample. It satisfies updater.Heartbeat.
type Heartbeat struct {
	logger    *zap.Logger
	collector *Collector
	minGap    time.Duration
	now       func() time.Time

	mu     sync.Mutex
	last   time.Time
	stages map[string]int
}

// NewHeartbeat creates a heartbeat that logs at most once per minGap.
// collector may be nil.
func NewHeartbeat(logger *zap.Logger, collector *Collector, minGap time.Duration) *Heartbeat {
	return &Heartbeat{
		logger:    logger,
		collector: collector,
		minGap:    minGap,
		now:       time.Now,
		stages:    make(map[string]int),
	}
}

// Beat records that processed elements of stage are done.
func (h *Heartbeat) Beat(stage string, processed int) {
	h.mu.Lock()
	h.stages[stage] = processed
	now := h.now()
	if !h.last.IsZero() && now.Sub(h.last) < h.minGap {
		h.mu.Unlock()
		return
	}
	h.last = now
	h.mu.Unlock()

	fields := []zap.Field{zap.String("stage", stage), zap.Int("processed", processed)}
	if h.collector != nil {
		if s := h.collector.Last(); s != nil {
			fields = append(fields,
				zap.Float64("proc_cpu", s.ProcessCPUPercent),
				zap.Float64("proc_rss_mb", s.ProcessRSSMB),
			)
		}
	}
	h.logger.Info("Update progress", fields...)
}

// Processed returns the last count reported for stage.
func (h *Heartbeat) Processed(stage string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stages[stage]
}
