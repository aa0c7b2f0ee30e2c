package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHeartbeatThrottles(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	hb := NewHeartbeat(zap.New(core), nil, time.Minute)

	clock := time.Unix(1000, 0)
	hb.now = func() time.Time { return clock }

	hb.Beat("nodes", 10000)
	hb.Beat("nodes", 20000)
	clock = clock.Add(2 * time.Minute)
	hb.Beat("ways", 10000)

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 20000, hb.Processed("nodes"))
	assert.Equal(t, 10000, hb.Processed("ways"))
	assert.Equal(t, "ways", logs.All()[1].ContextMap()["stage"])
}

func TestCollectorSample(t *testing.T) {
	c := NewCollector(0, zap.NewNop())
	assert.Equal(t, 30*time.Second, c.interval)
	assert.Nil(t, c.Last())

	s := c.Collect()
	assert.Zero(t, s.DiskReadMBps, "first sample has no rate baseline")
	if assert.NotNil(t, c.Last()) {
		assert.Equal(t, s.Timestamp, c.Last().Timestamp)
	}
}
