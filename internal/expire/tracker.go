package expire

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"

	"github.com/wegman-software/osmindex-go/internal/changelog"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/spatial"
)

// MaxTilesPerZoom caps the tiles one bound may expire at a single zoom.
// Wide compound indices would otherwise expire whole continents at high
// zoom levels; those zooms are skipped and counted as truncated.
const MaxTilesPerZoom = 1 << 12

// Tracker collects the distinct tiles touched by changed elements. It is a
// changelog.Sink: inserted elements expire the tiles under their old and
// new index, erased elements the tiles under their old index. Kept
// elements did not change and expire nothing.
type Tracker struct {
	mu        sync.Mutex
	tiles     map[maptile.Tile]struct{}
	minZoom   maptile.Zoom
	maxZoom   maptile.Zoom
	truncated int
	output    string
}

// NewTracker creates a tracker for zoom levels minZoom through maxZoom.
// When output is set, Close appends the collected tiles to it.
func NewTracker(minZoom, maxZoom int, output string) (*Tracker, error) {
	if minZoom < 0 || maxZoom > 30 || minZoom > maxZoom {
		return nil, fmt.Errorf("invalid expire zoom range %d-%d", minZoom, maxZoom)
	}
	return &Tracker{
		tiles:   make(map[maptile.Tile]struct{}),
		minZoom: maptile.Zoom(minZoom),
		maxZoom: maptile.Zoom(maxZoom),
		output:  output,
	}, nil
}

// ExpireBound marks the tiles intersecting b.
func (t *Tracker) ExpireBound(b orb.Bound) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for z := t.minZoom; z <= t.maxZoom; z++ {
		r := BoundToTileRange(b, z)
		if r.Count() > MaxTilesPerZoom {
			// higher zooms only get wider
			t.truncated++
			return
		}
		for _, tile := range r.Tiles() {
			t.tiles[tile] = struct{}{}
		}
	}
}

// ExpireIndex marks the tiles under a stored index.
func (t *Tracker) ExpireIndex(idx spatial.Index) {
	if idx == spatial.DeletedValue || idx == spatial.AmbiguousValue {
		return
	}
	t.ExpireBound(idx.Bound())
}

func (t *Tracker) Write(_ context.Context, entries []changelog.Entry) error {
	for _, e := range entries {
		if e.Action == changelog.Keep {
			continue
		}
		if e.Before != nil {
			t.ExpireIndex(e.Before.Index)
		}
		if e.After != nil {
			t.ExpireIndex(e.After.Index)
		}
	}
	return nil
}

// Close appends the collected tiles to the output file, if any.
func (t *Tracker) Close() error {
	if t.output == "" {
		return nil
	}
	return t.AppendToFile(t.output)
}

// Count returns the number of distinct expired tiles.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tiles)
}

// Truncated returns how many bounds were too wide to expire in full.
func (t *Tracker) Truncated() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.truncated
}

// Tiles returns the expired tiles ordered by zoom, column and row.
func (t *Tracker) Tiles() []maptile.Tile {
	t.mu.Lock()
	tiles := make([]maptile.Tile, 0, len(t.tiles))
	for tile := range t.tiles {
		tiles = append(tiles, tile)
	}
	t.mu.Unlock()

	slices.SortFunc(tiles, func(a, b maptile.Tile) int {
		if c := cmp.Compare(a.Z, b.Z); c != 0 {
			return c
		}
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		return cmp.Compare(a.Y, b.Y)
	})
	return tiles
}

// Clear forgets every tracked tile.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.tiles)
	t.truncated = 0
}

// AppendToFile appends the expired tiles to filename in z/x/y form and
// clears the tracker.
func (t *Tracker) AppendToFile(filename string) error {
	tiles := t.Tiles()
	log := logger.Named("expire")
	if len(tiles) == 0 {
		log.Info("No tiles to expire")
		return nil
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open expire file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, tile := range tiles {
		fmt.Fprintln(w, FormatTile(tile))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write expire file: %w", err)
	}

	log.Info("Wrote expire tiles",
		zap.String("file", filename),
		zap.Int("total", len(tiles)),
		zap.Int("truncated", t.Truncated()))
	t.Clear()
	return nil
}
