package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmindex-go/internal/changelog"
	"github.com/wegman-software/osmindex-go/internal/config"
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/osc"
	"github.com/wegman-software/osmindex-go/internal/tagfilter"
	"github.com/wegman-software/osmindex-go/internal/updater"
)

// AppendStats tracks append processing statistics
type AppendStats struct {
	NodesProcessed     int64
	WaysProcessed      int64
	RelationsProcessed int64
	OutsideBBox        int64
	Cycles             int

	Nodes     updater.Stats
	Ways      updater.Stats
	Relations updater.Stats
	Anomalies int
	Duration  time.Duration
}

func addStats(dst *updater.Stats, s updater.Stats) {
	dst.Entries += s.Entries
	dst.Touched += s.Touched
	dst.Inserted += s.Inserted
	dst.Kept += s.Kept
	dst.Erased += s.Erased
	dst.Moved += s.Moved
	dst.Implicit += s.Implicit
}

// stampedSink tags entries with the id of the running cycle.
type stampedSink struct {
	base  changelog.Sink
	cycle *string
}

func (s stampedSink) Write(ctx context.Context, entries []changelog.Entry) error {
	return changelog.WithCycle(s.base, *s.cycle).Write(ctx, entries)
}

func (s stampedSink) Close() error { return nil }

// AppendProcessor feeds changes into the node, way and relation updaters
// and runs an update cycle over all three kinds whenever a batch is full.
type AppendProcessor struct {
	cfg    *config.Config
	filter tagfilter.Filter

	// BBox drops nodes outside it when set. Ways and relations are kept.
	BBox *config.BBox

	nodes     *updater.NodeUpdater
	ways      *updater.WayUpdater
	relations *updater.RelationUpdater

	cycleID string
	pending int
}

// NewAppendProcessor creates the updaters over backend. sink receives the
// change log of every cycle; hb may be nil.
func NewAppendProcessor(ctx context.Context, cfg *config.Config, backend *Backend, filter tagfilter.Filter, sink changelog.Sink, hb updater.Heartbeat) (*AppendProcessor, error) {
	mode, err := updater.ParseMetaMode(cfg.MetaMode)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = tagfilter.None
	}
	if sink == nil {
		sink = changelog.Discard
	}

	p := &AppendProcessor{cfg: cfg, filter: filter}
	opts := updater.DefaultOptions()
	opts.MetaMode = mode
	opts.SkipUnchanged = cfg.SkipUnchanged
	opts.RecordMinusculeMoves = cfg.RecordMinusculeMoves
	opts.Heartbeat = hb
	opts.HeartbeatEvery = cfg.HeartbeatEvery
	opts.Sink = stampedSink{base: sink, cycle: &p.cycleID}

	if p.nodes, err = updater.NewNodeUpdater(backend.Nodes, opts); err != nil {
		return nil, fmt.Errorf("node updater: %w", err)
	}
	if p.ways, err = updater.NewWayUpdater(backend.Ways, backend.Nodes.Directory, opts); err != nil {
		return nil, fmt.Errorf("way updater: %w", err)
	}
	roles, err := updater.NewRoleDictionary(ctx, backend.Roles, cfg.RoleLimit)
	if err != nil {
		return nil, err
	}
	p.relations, err = updater.NewRelationUpdater(backend.Relations, backend.Nodes.Directory, backend.Ways.Directory, roles, opts)
	if err != nil {
		return nil, fmt.Errorf("relation updater: %w", err)
	}
	return p, nil
}

// ProcessChanges stages every change and runs cycles until the channel is
// drained. Versions of one element must arrive in ascending order.
func (p *AppendProcessor) ProcessChanges(ctx context.Context, changes <-chan osc.Change) (*AppendStats, error) {
	log := logger.Get()
	stats := &AppendStats{}
	start := time.Now()

	log.Info("Processing changes", zap.Int("batch_size", p.cfg.BatchSize))

	for change := range changes {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := p.Stage(change, stats); err != nil {
			return nil, fmt.Errorf("failed to stage %s change: %w", change.Kind, err)
		}
		if p.pending >= p.cfg.BatchSize {
			if err := p.RunCycle(ctx, stats); err != nil {
				return nil, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.pending > 0 {
		if err := p.RunCycle(ctx, stats); err != nil {
			return nil, err
		}
	}

	stats.Duration = time.Since(start)
	log.Info("Append processing complete",
		zap.Int("cycles", stats.Cycles),
		zap.Int64("nodes", stats.NodesProcessed),
		zap.Int64("ways", stats.WaysProcessed),
		zap.Int64("relations", stats.RelationsProcessed),
		zap.Int("nodes_moved", stats.Nodes.Moved),
		zap.Int("ways_moved", stats.Ways.Moved),
		zap.Int("relations_moved", stats.Relations.Moved),
		zap.Int("anomalies", stats.Anomalies),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}

// Stage hands one change to the updater of its kind.
func (p *AppendProcessor) Stage(change osc.Change, stats *AppendStats) error {
	switch change.Kind {
	case element.Node:
		return p.stageNode(change, stats)
	case element.Way:
		return p.stageWay(change, stats)
	case element.Relation:
		return p.stageRelation(change, stats)
	}
	return fmt.Errorf("unknown element kind %d", change.Kind)
}

func (p *AppendProcessor) stageNode(change osc.Change, stats *AppendStats) error {
	n := change.Node
	if n == nil {
		return nil
	}
	if change.Action == osc.ActionDelete {
		p.nodes.SetDeleted(element.ID(n.ID), osc.NodeMeta(n))
	} else {
		if !p.BBox.Contains(n.Lat, n.Lon) {
			stats.OutsideBBox++
			return nil
		}
		tags, err := p.filter.Filter(element.Node, element.ID(n.ID), osc.Tags(n.Tags))
		if err != nil {
			return err
		}
		p.nodes.SetNode(osc.NodeSkeleton(n), tags, osc.NodeMeta(n))
	}
	stats.NodesProcessed++
	p.pending++
	return nil
}

func (p *AppendProcessor) stageWay(change osc.Change, stats *AppendStats) error {
	w := change.Way
	if w == nil {
		return nil
	}
	if change.Action == osc.ActionDelete {
		p.ways.SetDeleted(element.ID(w.ID), osc.WayMeta(w))
	} else {
		tags, err := p.filter.Filter(element.Way, element.ID(w.ID), osc.Tags(w.Tags))
		if err != nil {
			return err
		}
		p.ways.SetWay(osc.WaySkeleton(w), tags, osc.WayMeta(w))
	}
	stats.WaysProcessed++
	p.pending++
	return nil
}

func (p *AppendProcessor) stageRelation(change osc.Change, stats *AppendStats) error {
	r := change.Relation
	if r == nil {
		return nil
	}
	id := element.ID(r.ID)
	if change.Action == osc.ActionDelete {
		p.relations.SetDeleted(id, osc.RelationMeta(r))
	} else {
		members, err := osc.Members(r)
		if err != nil {
			return err
		}
		tags, err := p.filter.Filter(element.Relation, id, osc.Tags(r.Tags))
		if err != nil {
			return err
		}
		if err := p.relations.SetRelation(id, members, tags, osc.RelationMeta(r)); err != nil {
			return err
		}
	}
	stats.RelationsProcessed++
	p.pending++
	return nil
}

// RunCycle updates nodes, then ways against the node moves, then
// relations against both.
func (p *AppendProcessor) RunCycle(ctx context.Context, stats *AppendStats) error {
	log := logger.Get()
	p.cycleID = changelog.NewCycleID()
	p.pending = 0
	start := time.Now()

	nodes, err := p.nodes.Update(ctx)
	if err != nil {
		return fmt.Errorf("node update: %w", err)
	}
	ways, err := p.ways.Update(ctx, nodes.Moved)
	if err != nil {
		return fmt.Errorf("way update: %w", err)
	}
	relations, err := p.relations.Update(ctx, nodes.Moved, ways.Moved)
	if err != nil {
		return fmt.Errorf("relation update: %w", err)
	}

	stats.Cycles++
	stats.Anomalies += nodes.Report.Len() + ways.Report.Len() + relations.Report.Len()
	addStats(&stats.Nodes, nodes.Stats)
	addStats(&stats.Ways, ways.Stats)
	addStats(&stats.Relations, relations.Stats)

	log.Info("Cycle complete",
		zap.String("cycle", p.cycleID),
		zap.Int("nodes", nodes.Stats.Entries),
		zap.Int("ways", ways.Stats.Entries),
		zap.Int("relations", relations.Stats.Entries),
		zap.Int("implicit_ways", ways.Stats.Implicit),
		zap.Int("implicit_relations", relations.Stats.Implicit),
		zap.Duration("duration", time.Since(start)))
	return nil
}
