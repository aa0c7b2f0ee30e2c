package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/osc"
	"github.com/wegman-software/osmindex-go/internal/pipeline"
)

var applyCmd = &cobra.Command{
	Use:   "apply <changes.osc[.gz]>...",
	Short: "Apply OSC change files",
	Long: `Apply one or more OSC change files in the given order.

Elements are staged in batches of --batch-size. Every batch runs one update
cycle over nodes, ways and relations, moving ways and relations whose
members moved. Anomalies are logged after each cycle.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) {
	log := logger.Get()
	ctx, cancel := signalContext()
	defer cancel()

	e, err := openEnv(ctx)
	if err != nil {
		exitWithError("failed to open index", err)
	}
	defer e.Close()

	start := time.Now()
	for _, path := range args {
		stats, err := applyFile(ctx, e.processor, path)
		if err != nil {
			e.Close()
			exitWithError("failed to apply changes", err)
		}
		log.Info("Applied change file",
			zap.String("file", path),
			zap.Int("cycles", stats.Cycles),
			zap.Int("anomalies", stats.Anomalies))
	}
	log.Info("Apply complete",
		zap.Int("files", len(args)),
		zap.Duration("total_time", time.Since(start).Round(time.Second)))
}

// applyFile streams one OSC file through the processor.
func applyFile(ctx context.Context, p *pipeline.AppendProcessor, path string) (*pipeline.AppendStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	parser := osc.NewParser()
	changes, errs := parser.ParseFile(ctx, path)
	stats, err := p.ProcessChanges(ctx, changes)
	if err != nil {
		// Unblock and drain the parser before reporting.
		cancel()
		for range changes {
		}
		if perr := <-errs; perr != nil {
			return nil, perr
		}
		return nil, err
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	ps := parser.Stats()
	logger.Get().Debug("Parsed change file",
		zap.String("file", path),
		zap.Int64("changes", ps.Total()),
		zap.Int64("nodes_deleted", ps.NodesDeleted),
		zap.Int64("ways_deleted", ps.WaysDeleted),
		zap.Int64("relations_deleted", ps.RelationsDeleted))
	return stats, nil
}

func formatStats(s *pipeline.AppendStats) string {
	return fmt.Sprintf("%d nodes, %d ways, %d relations in %d cycles (%d anomalies)",
		s.NodesProcessed, s.WaysProcessed, s.RelationsProcessed, s.Cycles, s.Anomalies)
}
