package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/replication"
)

var (
	replicationSource   string
	replicationSequence int64
	replicationInterval time.Duration
	maxUpdates          int
)

var replicationCmd = &cobra.Command{
	Use:   "replication",
	Short: "Keep the index in sync with a replication server",
	Long: `Keep the index in sync with an OSM replication server.

Replication sources include:
  - planet-minute, planet-hour, planet-day (OpenStreetMap planet)
  - geofabrik/<region> (e.g., geofabrik/monaco, geofabrik/germany)
  - Custom URL (https://your-server/replication)

Examples:
  # Start from the current state of Geofabrik Monaco
  osmindex-go replication init --source geofabrik/monaco

  # Check replication status
  osmindex-go replication status

  # Apply every published diff
  osmindex-go replication update

  # Poll for new diffs every five minutes
  osmindex-go replication start --interval 5m`,
}

var replicationInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Record the starting sequence",
	Long: `Record the sequence the index corresponds to. Without --sequence the
current state of the source is used.`,
	Args: cobra.NoArgs,
	Run:  runReplicationInit,
}

var replicationStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare the local sequence with the source",
	Args:  cobra.NoArgs,
	Run:   runReplicationStatus,
}

var replicationUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Apply published diffs until caught up",
	Long: `Download and apply published diffs in sequence order. Each diff runs at
least one full update cycle before the state file advances, so an
interrupted run resumes with the diff it was applying.`,
	Args: cobra.NoArgs,
	Run:  runReplicationUpdate,
}

var replicationStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Apply diffs continuously",
	Long: `Apply published diffs, then poll the source every --interval until
interrupted or --max-updates diffs were applied.`,
	Args: cobra.NoArgs,
	Run:  runReplicationStart,
}

var replicationListCmd = &cobra.Command{
	Use:   "list-sources",
	Short: "List available replication sources",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Available replication sources:")
		fmt.Println()
		for _, source := range replication.ListSources() {
			fmt.Println(source)
		}
	},
}

func init() {
	rootCmd.AddCommand(replicationCmd)

	replicationCmd.AddCommand(replicationInitCmd)
	replicationCmd.AddCommand(replicationStatusCmd)
	replicationCmd.AddCommand(replicationUpdateCmd)
	replicationCmd.AddCommand(replicationStartCmd)
	replicationCmd.AddCommand(replicationListCmd)

	replicationCmd.PersistentFlags().StringVar(&replicationSource, "source", "", "Replication source (default from config, e.g. geofabrik/monaco, planet-minute)")

	replicationInitCmd.Flags().Int64Var(&replicationSequence, "sequence", -1, "Starting sequence (default: current state of the source)")

	replicationUpdateCmd.Flags().IntVar(&maxUpdates, "max-updates", 0, "Maximum number of diffs to apply (0 = unlimited)")

	replicationStartCmd.Flags().DurationVar(&replicationInterval, "interval", time.Minute, "Interval between checks for new diffs")
	replicationStartCmd.Flags().IntVar(&maxUpdates, "max-updates", 0, "Maximum number of diffs to apply (0 = unlimited)")
}

func getReplicator() (*replication.Replicator, error) {
	name := replicationSource
	if name == "" {
		name = cfg.ReplicationSource
	}
	if name == "" {
		return nil, fmt.Errorf("--source is required")
	}

	source, err := replication.ParseSource(name)
	if err != nil {
		return nil, fmt.Errorf("invalid source %q: %w", name, err)
	}
	return replication.NewReplicator(cfg.DataDir, source)
}

// applyDiff returns the ApplyFunc feeding every diff into e.
func applyDiff(e *env) replication.ApplyFunc {
	return func(ctx context.Context, oscPath string, state *replication.State) error {
		stats, err := applyFile(ctx, e.processor, oscPath)
		if err != nil {
			return err
		}
		logger.Get().Debug("Diff applied",
			zap.Int64("sequence", state.SequenceNumber),
			zap.String("summary", formatStats(stats)))
		return nil
	}
}

func runReplicationInit(cmd *cobra.Command, args []string) {
	log := logger.Get()

	replicator, err := getReplicator()
	if err != nil {
		exitWithError("failed to create replicator", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := replicator.Init(ctx, replicationSequence); err != nil {
		exitWithError("failed to initialize replication", err)
	}

	state := replicator.State()
	log.Info("Replication initialized",
		zap.Int64("sequence", state.SequenceNumber),
		zap.Time("timestamp", state.Timestamp))

	fmt.Printf("Sequence: %d\n", state.SequenceNumber)
	fmt.Printf("Timestamp: %s\n", state.Timestamp.Format(time.RFC3339))
}

func runReplicationStatus(cmd *cobra.Command, args []string) {
	replicator, err := getReplicator()
	if err != nil {
		exitWithError("failed to create replicator", err)
	}

	status, err := replicator.GetStatus(context.Background())
	if err != nil {
		exitWithError("failed to get status", err)
	}
	logger.Get().Debug("Replication status",
		zap.Int64("local_sequence", status.LocalSequence),
		zap.Int64("remote_sequence", status.RemoteSequence),
		zap.Int64("behind", status.Behind),
		zap.Duration("lag", status.Lag))

	fmt.Print(status.String())
}

func runReplicationUpdate(cmd *cobra.Command, args []string) {
	log := logger.Get()

	replicator, err := getReplicator()
	if err != nil {
		exitWithError("failed to create replicator", err)
	}
	if err := replicator.LoadState(); err != nil {
		exitWithError("failed to load state", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	e, err := openEnv(ctx)
	if err != nil {
		exitWithError("failed to open index", err)
	}
	defer e.Close()

	n, err := replicator.Update(ctx, applyDiff(e), maxUpdates)
	if err != nil {
		e.Close()
		exitWithError("replication update failed", err)
	}
	if n == 0 {
		log.Info("Already up to date")
		return
	}
	log.Info("Replication update complete",
		zap.Int("diffs_applied", n),
		zap.Int64("sequence", replicator.State().SequenceNumber))
}

func runReplicationStart(cmd *cobra.Command, args []string) {
	log := logger.Get()

	replicator, err := getReplicator()
	if err != nil {
		exitWithError("failed to create replicator", err)
	}
	if err := replicator.LoadState(); err != nil {
		exitWithError("failed to load state", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	e, err := openEnv(ctx)
	if err != nil {
		exitWithError("failed to open index", err)
	}
	defer e.Close()

	log.Info("Starting continuous replication",
		zap.Duration("interval", replicationInterval),
		zap.Int("max_updates", maxUpdates))

	apply := applyDiff(e)
	total := 0
	ticker := time.NewTicker(replicationInterval)
	defer ticker.Stop()
	for {
		limit := 0
		if maxUpdates > 0 {
			limit = maxUpdates - total
		}
		n, err := replicator.Update(ctx, apply, limit)
		total += n
		switch {
		case ctx.Err() != nil:
			log.Info("Replication stopped", zap.Int("diffs_applied", total))
			return
		case err != nil:
			// Retried on the next tick from the last written state.
			log.Error("Replication update failed", zap.Error(err))
		case maxUpdates > 0 && total >= maxUpdates:
			log.Info("Reached max updates limit", zap.Int("diffs_applied", total))
			return
		}

		select {
		case <-ctx.Done():
			log.Info("Replication stopped", zap.Int("diffs_applied", total))
			return
		case <-ticker.C:
		}
	}
}
