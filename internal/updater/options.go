package updater

import (
	"fmt"
	"runtime"

	"github.com/wegman-software/osmindex-go/internal/changelog"
)

// MetaMode selects which revision tables an updater maintains.
type MetaMode int

const (
	// MetaData keeps skeletons and tags only.
	MetaData MetaMode = iota
	// MetaKeep adds current revision metadata.
	MetaKeep
	// MetaAttic adds the history tables.
	MetaAttic
)

func (m MetaMode) String() string {
	switch m {
	case MetaData:
		return "data"
	case MetaKeep:
		return "meta"
	case MetaAttic:
		return "attic"
	}
	return fmt.Sprintf("metamode(%d)", int(m))
}

// ParseMetaMode parses "data", "meta" or "attic".
func ParseMetaMode(s string) (MetaMode, error) {
	switch s {
	case "data":
		return MetaData, nil
	case "meta", "":
		return MetaKeep, nil
	case "attic":
		return MetaAttic, nil
	}
	return 0, fmt.Errorf("unknown meta mode %q (want data, meta or attic)", s)
}

// Heartbeat is called periodically during long loops.
type Heartbeat interface {
	Beat(stage string, processed int)
}

// Options tune an updater.
type Options struct {
	MetaMode MetaMode

	// SkipUnchanged leaves a co-located skeleton in place when the new
	// version equals it. Off, every resubmitted element is replaced.
	SkipUnchanged bool

	// RecordMinusculeMoves reports replaced co-located elements as moved.
	RecordMinusculeMoves bool

	Heartbeat      Heartbeat
	HeartbeatEvery int

	// Sink receives the change log at the end of each cycle.
	Sink changelog.Sink
}

// DefaultOptions keeps current meta, replaces every resubmitted element
// and discards the change log.
func DefaultOptions() Options {
	return Options{
		MetaMode:       MetaKeep,
		HeartbeatEvery: 10000,
		Sink:           changelog.Discard,
	}
}

func (o Options) withDefaults() Options {
	if o.HeartbeatEvery <= 0 {
		o.HeartbeatEvery = 10000
	}
	if o.Sink == nil {
		o.Sink = changelog.Discard
	}
	return o
}

type pulse struct {
	hb    Heartbeat
	every int
	n     int
}

func (p *pulse) tick(stage string) {
	p.n++
	if p.hb == nil || p.n%p.every != 0 {
		return
	}
	p.hb.Beat(stage, p.n)
	runtime.Gosched()
}
