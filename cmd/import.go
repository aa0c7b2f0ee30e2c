package cmd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmindex-go/internal/config"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/pipeline"
)

var (
	bboxStr      string
	dropExisting bool
	analyze      bool
)

var importCmd = &cobra.Command{
	Use:   "import <input.osm.pbf>",
	Short: "Load a PBF extract into the index",
	Long: `Load every element of a PBF extract into the index.

The extract is decoded by --workers parallel decoders and fed through the
same update cycles as change files, so an import into a non-empty index
behaves like a large change set. Use --drop-existing to start from an
empty index.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	importCmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "Drop existing tables and directory files before loading")
	importCmd.Flags().BoolVar(&analyze, "analyze", true, "Refresh planner statistics after loading")
}

func runImport(cmd *cobra.Command, args []string) {
	log := logger.Get()
	input := args[0]

	bbox, err := config.ParseBBox(bboxStr)
	if err != nil {
		exitWithError("invalid bbox", err)
	}
	if bbox.IsSet {
		log.Info("Using bounding box filter",
			zap.Float64("minlon", bbox.MinLon),
			zap.Float64("minlat", bbox.MinLat),
			zap.Float64("maxlon", bbox.MaxLon),
			zap.Float64("maxlat", bbox.MaxLat))
	}

	ctx, cancel := signalContext()
	defer cancel()

	if dropExisting {
		if err := pipeline.DropExisting(ctx, cfg); err != nil {
			exitWithError("failed to drop existing index", err)
		}
	}

	e, err := openEnv(ctx)
	if err != nil {
		exitWithError("failed to open index", err)
	}
	defer e.Close()
	e.processor.BBox = bbox

	log.Info("Starting import",
		zap.String("input", input),
		zap.String("backend", cfg.Backend),
		zap.String("directory_backend", cfg.DirectoryBackend),
		zap.Int("workers", cfg.Workers),
		zap.Int("batch_size", cfg.BatchSize))

	start := time.Now()
	changes, errs := pipeline.ScanPBF(ctx, input, cfg.Workers)
	stats, err := e.processor.ProcessChanges(ctx, changes)
	if err != nil {
		cancel()
		for range changes {
		}
		e.Close()
		exitWithError("import failed", err)
	}
	if err := <-errs; err != nil {
		e.Close()
		exitWithError("failed to read PBF", err)
	}

	if analyze && e.backend.Middle != nil {
		log.Info("Analyzing tables")
		if err := e.backend.Middle.Analyze(ctx); err != nil {
			log.Warn("Analyze failed", zap.Error(err))
		}
	}

	log.Info("Import complete",
		zap.String("summary", formatStats(stats)),
		zap.Int64("outside_bbox", stats.OutsideBBox),
		zap.Duration("total_time", time.Since(start).Round(time.Second)))
	fmt.Printf("Imported %s\n", formatStats(stats))
}
