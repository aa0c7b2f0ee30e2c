package updater

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmindex-go/internal/changelog"
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/spatial"
	"github.com/wegman-software/osmindex-go/internal/store"
)

type metaMap = store.Buckets[spatial.Index, element.Meta]

// Cycle is the working state of one Update. It is created by the updater,
// filled step by step and dropped when the cycle ends.
type Cycle[S Skeleton[S]] struct {
	started time.Time
	ids     []element.ID
	prior   Positions

	dependents store.Buckets[spatial.Index, S]
	depUntil   map[element.ID]int64
	targets    Targets

	skeletons store.Buckets[spatial.Index, S]
	meta      metaMap
	local     localTags
	depMeta   metaMap
	depLocal  localTags

	skel        SkeletonDiff[S]
	metaAttic   metaMap
	metaNew     metaMap
	localAttic  localTags
	localNew    localTags
	globalAttic globalTags
	globalNew   globalTags
	history     History[S]
	moved       []Moved

	report *Report
	pulse  pulse
}

// engine runs the kind-independent steps of a cycle.
type engine[S Skeleton[S]] struct {
	kind   element.Kind
	tables *Tables[S]
	opts   Options
	data   DataByID[S]
	logger *UpdateLogger[S]
}

func newEngine[S Skeleton[S]](kind element.Kind, tables *Tables[S], opts Options) (*engine[S], error) {
	opts = opts.withDefaults()
	if err := tables.validate(opts.MetaMode); err != nil {
		return nil, fmt.Errorf("%s tables: %w", kind, err)
	}
	return &engine[S]{
		kind:   kind,
		tables: tables,
		opts:   opts,
		logger: NewUpdateLogger[S](kind),
	}, nil
}

func (e *engine[S]) stage(entry Entry[S]) {
	e.data.Add(entry)
}

func (e *engine[S]) begin() *Cycle[S] {
	e.data.Sort()
	return &Cycle[S]{
		started:    time.Now(),
		ids:        e.data.IDs(),
		prior:      make(Positions),
		dependents: make(store.Buckets[spatial.Index, S]),
		depUntil:   make(map[element.ID]int64),
		targets:    make(Targets),
		skeletons:  make(store.Buckets[spatial.Index, S]),
		meta:       make(metaMap),
		local:      make(localTags),
		depMeta:    make(metaMap),
		depLocal:   make(localTags),
		metaAttic:  make(metaMap),
		metaNew:    make(metaMap),
		report:     &Report{},
		pulse:      pulse{hb: e.opts.Heartbeat, every: e.opts.HeartbeatEvery},
	}
}

// lookupPrior reads the current index of every staged id.
func (e *engine[S]) lookupPrior(ctx context.Context, c *Cycle[S]) error {
	for _, id := range c.ids {
		idx, ok, err := e.tables.Directory.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("directory lookup of %s %d: %w", e.kind, id, err)
		}
		if ok {
			c.prior[id] = idx
		}
		c.pulse.tick("lookup")
	}
	return nil
}

func uniqueIndices(in []spatial.Index) []spatial.Index {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// findDependents collects current elements stored at one of candidates
// that match reports as referencing a moved member. Staged ids are skipped:
// their resubmitted version is placed explicitly.
func (e *engine[S]) findDependents(ctx context.Context, c *Cycle[S], candidates []spatial.Index, match func(S) (int64, bool)) error {
	keys := uniqueIndices(candidates)
	if len(keys) == 0 {
		return nil
	}
	staged := make(map[element.ID]struct{}, len(c.ids))
	for _, id := range c.ids {
		staged[id] = struct{}{}
	}
	return e.tables.Skeletons.DiscreteIterate(ctx, keys, func(k spatial.Index, s S) error {
		id := s.ElemID()
		if _, ok := staged[id]; ok {
			return nil
		}
		until, ok := match(s)
		if !ok {
			return nil
		}
		c.dependents.Add(k, s)
		c.depUntil[id] = until
		return nil
	})
}

// placeDependents recomputes the position of every dependent. Dependents
// that changed index become targets; ambiguous ones are reported and
// placed at the wide scan index.
func (e *engine[S]) placeDependents(c *Cycle[S], locate func(S) (spatial.Position, error)) error {
	for _, k := range c.dependents.Keys() {
		for _, s := range c.dependents.Get(k).Items() {
			pos, err := locate(s)
			if err != nil {
				return err
			}
			id := s.ElemID()
			if pos.IsAmbiguous() {
				c.report.add(AmbiguousPlacement, e.kind, id, "members moved apart, stored at %s", spatial.WideScan)
			}
			if to := pos.Stored(); to != k {
				c.targets[id] = Target{From: k, To: to, Until: c.depUntil[id]}
			}
			c.pulse.tick("dependents")
		}
	}
	return nil
}

// fetch reads the existing skeletons, meta and local tags of staged ids
// and the meta and tags of moving dependents, concurrently.
func (e *engine[S]) fetch(ctx context.Context, c *Cycle[S]) error {
	var priorKeys, depKeys []spatial.Index
	for _, idx := range c.prior {
		priorKeys = append(priorKeys, idx)
	}
	for _, t := range c.targets {
		depKeys = append(depKeys, t.From)
	}
	priorKeys = uniqueIndices(priorKeys)
	allKeys := uniqueIndices(append(slices.Clone(priorKeys), depKeys...))

	g, gctx := errgroup.WithContext(ctx)

	if len(priorKeys) > 0 {
		g.Go(func() error {
			return e.tables.Skeletons.DiscreteIterate(gctx, priorKeys, func(k spatial.Index, s S) error {
				if idx, ok := c.prior[s.ElemID()]; ok && idx == k {
					c.skeletons.Add(k, s)
				}
				return nil
			})
		})
	}

	if e.opts.MetaMode >= MetaKeep && len(allKeys) > 0 {
		g.Go(func() error {
			return e.tables.Meta.DiscreteIterate(gctx, allKeys, func(k spatial.Index, m element.Meta) error {
				if idx, ok := c.prior[m.Ref]; ok && idx == k {
					c.meta.Add(k, m)
				} else if t, ok := c.targets[m.Ref]; ok && t.From == k {
					c.depMeta.Add(k, m)
				}
				return nil
			})
		})
	}

	if len(allKeys) > 0 {
		g.Go(func() error {
			var blocks []spatial.Index
			for _, k := range allKeys {
				blocks = append(blocks, k.Block())
			}
			var ranges []store.Range[element.TagLocal]
			for _, b := range uniqueIndices(blocks) {
				begin, end := element.BlockRange(b)
				ranges = append(ranges, store.Range[element.TagLocal]{Begin: begin, End: end})
			}
			return e.tables.Local.RangeIterate(gctx, ranges, func(k element.TagLocal, id element.ID) error {
				if idx, ok := c.prior[id]; ok && idx.Block() == k.Block {
					c.local.Add(k, id)
				} else if t, ok := c.targets[id]; ok && t.From.Block() == k.Block {
					c.depLocal.Add(k, id)
				}
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("reading existing %s state: %w", e.kind, err)
	}
	return nil
}

// diff computes every table change of the cycle and feeds the logger.
func (e *engine[S]) diff(c *Cycle[S]) {
	c.skel = DiffSkeletons(&e.data, c.prior, c.skeletons, e.opts)
	for _, id := range c.skel.Gaps {
		c.report.add(IntegrityGap, e.kind, id, "no skeleton at %s, inserted fresh", c.prior[id])
	}
	c.moved = append(c.moved, c.skel.Moved...)

	c.localAttic, c.localNew = DiffLocalTags(&e.data, c.local)
	if e.opts.MetaMode >= MetaKeep {
		c.metaAttic, c.metaNew = DiffMeta(&e.data, c.meta)
	}

	if len(c.targets) > 0 {
		sa, sn := ImplicitSkeletons(c.dependents, c.targets)
		c.skel.Attic.Merge(sa)
		c.skel.New.Merge(sn)

		la, ln := ImplicitLocalTags(c.depLocal, c.targets)
		c.localAttic.Merge(la)
		c.localNew.Merge(ln)

		if e.opts.MetaMode >= MetaKeep {
			ma, mn := ImplicitMeta(c.depMeta, c.targets)
			c.metaAttic.Merge(ma)
			c.metaNew.Merge(mn)
		}

		for id, t := range c.targets {
			c.moved = append(c.moved, Moved{ID: id, From: t.From, To: t.To, Timestamp: t.Until})
		}
	}
	slices.SortFunc(c.moved, func(a, b Moved) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	c.globalAttic = DeriveGlobalTags(c.localAttic)
	c.globalNew = DeriveGlobalTags(c.localNew)

	if e.opts.MetaMode == MetaAttic {
		c.history = e.buildHistory(c)
	}
	e.record(c)
}

func latestMeta(b metaMap) map[element.ID]element.Meta {
	out := make(map[element.ID]element.Meta)
	for _, s := range b {
		for _, m := range s.Items() {
			if cur, ok := out[m.Ref]; !ok || cur.Version < m.Version {
				out[m.Ref] = m
			}
		}
	}
	return out
}

// record classifies every touched id in the update logger.
func (e *engine[S]) record(c *Cycle[S]) {
	oldTags := tagsByID(c.local)
	oldMeta := latestMeta(c.meta)
	kept := make(map[element.ID]bool, len(c.skel.Kept))
	for _, id := range c.skel.Kept {
		kept[id] = true
	}

	for _, en := range e.data.Last() {
		var before Snapshot[S]
		if idx, ok := c.prior[en.ID]; ok {
			before.Index = idx
			if old, found := c.skeletons.Get(idx).Find(en.Elem); found {
				before.Elem = old
			}
			before.Tags = oldTags[en.ID]
			before.Meta = oldMeta[en.ID]
		}
		if en.Pos.IsDeleted() {
			if before.Present() {
				e.logger.Erase(en.ID, before)
			}
			continue
		}
		after := Snapshot[S]{Index: en.Pos.Stored(), Elem: en.Elem, Tags: en.Tags, Meta: en.Meta}
		if kept[en.ID] {
			e.logger.Keep(en.ID, before, after)
		} else {
			e.logger.Insert(en.ID, before, after)
		}
	}

	depTags := tagsByID(c.depLocal)
	depMeta := latestMeta(c.depMeta)
	c.dependents.Each(func(k spatial.Index, s S) {
		t, ok := c.targets[s.ElemID()]
		if !ok {
			return
		}
		before := Snapshot[S]{Index: k, Elem: s, Tags: depTags[s.ElemID()], Meta: depMeta[s.ElemID()]}
		after := before
		after.Index = t.To
		e.logger.Keep(s.ElemID(), before, after)
	})
}

// apply writes the cycle's changes: skeletons, meta, local tags, global
// tags, history tables and finally the directory. guard runs before the
// first write and may veto the whole cycle.
func (e *engine[S]) apply(ctx context.Context, c *Cycle[S], guard func(context.Context) error) error {
	if guard != nil {
		if err := guard(ctx); err != nil {
			return err
		}
	}

	t := e.tables
	steps := []struct {
		name string
		fn   func() error
	}{
		{"skeletons", func() error { return replace(ctx, t.Skeletons, c.skel.Attic, c.skel.New) }},
		{"meta", func() error {
			if e.opts.MetaMode < MetaKeep {
				return nil
			}
			return replace(ctx, t.Meta, c.metaAttic, c.metaNew)
		}},
		{"local tags", func() error { return replace(ctx, t.Local, c.localAttic, c.localNew) }},
		{"global tags", func() error { return replace(ctx, t.Global, c.globalAttic, c.globalNew) }},
		{"history", func() error {
			if e.opts.MetaMode != MetaAttic {
				return nil
			}
			return e.applyHistory(ctx, c.history)
		}},
		{"directory", func() error { return e.applyDirectory(ctx, c) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("apply %s %s: %w", e.kind, s.name, err)
		}
	}
	return nil
}

func (e *engine[S]) applyDirectory(ctx context.Context, c *Cycle[S]) error {
	dir := e.tables.Directory
	for _, en := range e.data.Last() {
		if _, had := c.prior[en.ID]; !had && en.Pos.IsDeleted() {
			continue
		}
		if err := dir.Put(ctx, en.ID, en.Pos.Stored()); err != nil {
			return err
		}
		c.pulse.tick("directory")
	}
	for id, t := range c.targets {
		if err := dir.Put(ctx, id, t.To); err != nil {
			return err
		}
		c.pulse.tick("directory")
	}
	return nil
}

// finish flushes the change log, resets the staged data and builds the
// result.
func (e *engine[S]) finish(ctx context.Context, c *Cycle[S]) (*Result, error) {
	res := &Result{
		Moved:  c.moved,
		Report: c.report,
		Stats: Stats{
			Entries:  e.data.Len(),
			Touched:  len(c.ids) + len(c.targets),
			Inserted: e.logger.Count(changelog.Insert),
			Kept:     e.logger.Count(changelog.Keep),
			Erased:   e.logger.Count(changelog.Erase),
			Moved:    len(c.skel.Moved),
			Implicit: len(c.targets),
		},
	}
	e.data.Reset()

	if err := e.logger.Flush(ctx, e.opts.Sink); err != nil {
		return res, fmt.Errorf("writing %s change log: %w", e.kind, err)
	}

	log := logger.Named("updater")
	log.Info("Update cycle complete",
		zap.Stringer("kind", e.kind),
		zap.Int("entries", res.Stats.Entries),
		zap.Int("inserted", res.Stats.Inserted),
		zap.Int("kept", res.Stats.Kept),
		zap.Int("erased", res.Stats.Erased),
		zap.Int("moved", res.Stats.Moved),
		zap.Int("implicit", res.Stats.Implicit),
		zap.Duration("elapsed", time.Since(c.started)))
	c.report.Log(log)
	return res, nil
}

// abort drops the staged data and the logger state of a failed cycle.
func (e *engine[S]) abort() {
	e.data.Reset()
	e.logger.Reset()
}

// commit applies the cycle and finishes it.
func (e *engine[S]) commit(ctx context.Context, c *Cycle[S], guard func(context.Context) error) (*Result, error) {
	if err := e.apply(ctx, c, guard); err != nil {
		e.abort()
		return nil, err
	}
	return e.finish(ctx, c)
}

// prepare runs the steps shared by every kind once positions and
// dependents are known: prior lookup, reads and differencing.
func (e *engine[S]) prepare(ctx context.Context, c *Cycle[S]) error {
	if err := e.lookupPrior(ctx, c); err != nil {
		return err
	}
	if err := e.fetch(ctx, c); err != nil {
		return err
	}
	e.diff(c)
	return nil
}
