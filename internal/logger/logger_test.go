package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceAndNamed(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := Replace(zap.New(core))

	Named("replication").Info("Applied replication diff")
	Get().Debug("dropped")

	restore()
	Get().Info("not observed")

	if logs.Len() != 1 {
		t.Fatalf("observed %d entries, want 1", logs.Len())
	}
	if got := logs.All()[0].LoggerName; got != "replication" {
		t.Errorf("LoggerName = %q, want replication", got)
	}
}
