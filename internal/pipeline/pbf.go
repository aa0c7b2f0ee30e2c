package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/osc"
)

// ScanPBF streams every element of a PBF file as a create change. The
// error channel yields at most one error and is closed when scanning ends.
func ScanPBF(ctx context.Context, path string, workers int) (<-chan osc.Change, <-chan error) {
	changes := make(chan osc.Change, 1000)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errs)
		if err := scanPBF(ctx, path, workers, changes); err != nil {
			errs <- err
		}
	}()
	return changes, errs
}

func scanPBF(ctx context.Context, path string, workers int, out chan<- osc.Change) error {
	log := logger.Get()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open PBF file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat PBF file: %w", err)
	}

	scanner := osmpbf.New(ctx, f, workers)
	defer scanner.Close()

	var count atomic.Int64
	progress := NewProgressTracker(info.Size(), "pbf scan")

	tickerCtx, cancelTicker := context.WithCancel(ctx)
	defer cancelTicker()
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-tickerCtx.Done():
				return
			case <-ticker.C:
				bytesScanned := scanner.FullyScannedBytes()
				p := progress.Calculate(count.Load(), bytesScanned)
				log.Info("Import progress",
					zap.Int64("elements", count.Load()),
					zap.String("processed", FormatBytes(bytesScanned)),
					zap.String("total", FormatBytes(info.Size())),
					zap.String("percent", fmt.Sprintf("%.1f%%", p.Percentage)),
					zap.String("throughput", FormatThroughput(p.Throughput)),
					zap.String("eta", FormatETA(p.ETA)))
			}
		}
	}()

	for scanner.Scan() {
		var change osc.Change
		switch o := scanner.Object().(type) {
		case *osm.Node:
			change = osc.Change{Action: osc.ActionCreate, Kind: element.Node, Node: o}
		case *osm.Way:
			change = osc.Change{Action: osc.ActionCreate, Kind: element.Way, Way: o}
		case *osm.Relation:
			change = osc.Change{Action: osc.ActionCreate, Kind: element.Relation, Relation: o}
		default:
			continue
		}
		select {
		case out <- change:
			count.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("failed to scan PBF file: %w", err)
	}
	return nil
}
