package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmindex-go/internal/config"
	"github.com/wegman-software/osmindex-go/internal/element"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/pipeline"
)

var clearDirectory bool

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Maintain the id to index directories",
}

var directoryRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-derive every directory from the skeleton tables",
	Long: `Scan the node, way and relation skeleton tables and record the index of
every element in its directory. Use --clear to discard stale entries first.`,
	Args: cobra.NoArgs,
	Run:  runDirectoryRebuild,
}

func init() {
	rootCmd.AddCommand(directoryCmd)
	directoryCmd.AddCommand(directoryRebuildCmd)

	directoryRebuildCmd.Flags().BoolVar(&clearDirectory, "clear", false, "Discard existing directory entries before rebuilding")
}

func runDirectoryRebuild(cmd *cobra.Command, args []string) {
	log := logger.Get()
	if cfg.Backend == config.BackendMemory {
		exitWithError("directory rebuild needs durable tables", fmt.Errorf("backend is %q", cfg.Backend))
	}
	if cfg.DirectoryBackend == config.BackendMemory {
		exitWithError("memory directories are rebuilt on every start", nil)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if clearDirectory && cfg.DirectoryBackend == config.BackendMmap {
		for _, kind := range []element.Kind{element.Node, element.Way, element.Relation} {
			if err := os.Remove(pipeline.DirectoryPath(cfg, kind)); err != nil && !errors.Is(err, os.ErrNotExist) {
				exitWithError("failed to remove directory file", err)
			}
		}
	}

	backend, err := pipeline.OpenBackend(ctx, cfg)
	if err != nil {
		exitWithError("failed to open index", err)
	}
	defer backend.Close()

	if clearDirectory && cfg.DirectoryBackend == config.BackendPostgres {
		for _, kind := range []element.Kind{element.Node, element.Way, element.Relation} {
			if err := backend.Middle.Directory(kind).Clear(ctx); err != nil {
				backend.Close()
				exitWithError("failed to clear directory", err)
			}
		}
	}

	start := time.Now()
	counts, err := backend.RebuildDirectories(ctx)
	if err != nil {
		backend.Close()
		exitWithError("directory rebuild failed", err)
	}
	log.Info("Directory rebuild complete",
		zap.Int("entries", counts[element.Node]+counts[element.Way]+counts[element.Relation]),
		zap.Duration("total_time", time.Since(start).Round(time.Second)))
}
