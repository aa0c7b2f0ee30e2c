package replication

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmindex-go/internal/logger"
)

// ApplyFunc applies one downloaded diff. state is the position reached
// once the diff is applied.
type ApplyFunc func(ctx context.Context, oscPath string, state *State) error

// Replicator keeps a local state file in step with a source.
type Replicator struct {
	source    *Source
	fetcher   *Fetcher
	stateFile string
	state     *State
}

// NewReplicator keeps its state and diff cache below dataDir.
func NewReplicator(dataDir string, source *Source) (*Replicator, error) {
	cacheDir := filepath.Join(dataDir, "replication")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Replicator{
		source:    source,
		fetcher:   NewFetcher(source, cacheDir),
		stateFile: filepath.Join(dataDir, "replication.state"),
	}, nil
}

// Init writes the starting state. A negative seq starts from the newest
// state of the source.
func (r *Replicator) Init(ctx context.Context, seq int64) error {
	var state *State
	var err error
	if seq < 0 {
		state, err = r.fetcher.FetchCurrentState(ctx)
	} else {
		state, err = r.fetcher.FetchSequenceState(ctx, seq)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch state: %w", err)
	}
	if err := WriteStateFile(r.stateFile, state); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	r.state = state

	logger.Named("replication").Info("Replication initialized",
		zap.String("source", r.source.Name),
		zap.Int64("sequence", state.SequenceNumber),
		zap.Time("timestamp", state.Timestamp))
	return nil
}

// LoadState reads the local state file.
func (r *Replicator) LoadState() error {
	state, err := ParseStateFile(r.stateFile)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replication not initialized - run 'replication init' first")
	}
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	r.state = state
	return nil
}

// State returns the local state, nil before Init or LoadState.
func (r *Replicator) State() *State {
	return r.state
}

// Update applies published diffs in sequence order until the source has
// no newer one or limit diffs were applied (limit <= 0 means no limit). The
// state file advances after each applied diff.
func (r *Replicator) Update(ctx context.Context, apply ApplyFunc, limit int) (int, error) {
	log := logger.Named("replication")
	if r.state == nil {
		if err := r.LoadState(); err != nil {
			return 0, err
		}
	}

	applied := 0
	for limit <= 0 || applied < limit {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		next := r.state.SequenceNumber + 1

		path, err := r.fetcher.FetchSequenceData(ctx, next)
		if errors.Is(err, ErrNotPublished) {
			break
		}
		if err != nil {
			return applied, err
		}
		nextState, err := r.fetcher.FetchSequenceState(ctx, next)
		if errors.Is(err, ErrNotPublished) {
			nextState = &State{SequenceNumber: next, Timestamp: time.Now().UTC()}
		} else if err != nil {
			return applied, err
		}

		start := time.Now()
		if err := apply(ctx, path, nextState); err != nil {
			return applied, fmt.Errorf("sequence %d: %w", next, err)
		}
		if err := WriteStateFile(r.stateFile, nextState); err != nil {
			return applied, fmt.Errorf("failed to write state file: %w", err)
		}
		r.state = nextState
		applied++

		if n, err := r.fetcher.Prune(next); err != nil {
			log.Warn("Failed to prune diff cache", zap.Error(err))
		} else if n > 0 {
			log.Debug("Pruned diff cache", zap.Int("files", n))
		}
		log.Info("Applied replication diff",
			zap.Int64("sequence", next),
			zap.Time("timestamp", nextState.Timestamp),
			zap.Duration("duration", time.Since(start)))
	}
	return applied, nil
}

// Status is the local position compared with the source.
type Status struct {
	Source          string
	SourceURL       string
	LocalSequence   int64
	LocalTimestamp  time.Time
	RemoteSequence  int64
	RemoteTimestamp time.Time
	Behind          int64
	Lag             time.Duration
}

// GetStatus compares the local state with the source. Remote fields stay
// zero when the source cannot be reached.
func (r *Replicator) GetStatus(ctx context.Context) (*Status, error) {
	if r.state == nil {
		if err := r.LoadState(); err != nil {
			return nil, err
		}
	}
	status := &Status{
		Source:         r.source.Name,
		SourceURL:      r.source.BaseURL,
		LocalSequence:  r.state.SequenceNumber,
		LocalTimestamp: r.state.Timestamp,
	}
	remote, err := r.fetcher.FetchCurrentState(ctx)
	if err != nil {
		logger.Named("replication").Warn("Failed to fetch remote state", zap.Error(err))
		return status, nil
	}
	status.RemoteSequence = remote.SequenceNumber
	status.RemoteTimestamp = remote.Timestamp
	status.Behind = remote.SequenceNumber - r.state.SequenceNumber
	status.Lag = remote.Timestamp.Sub(r.state.Timestamp)
	return status, nil
}

func (s *Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", s.Source)
	fmt.Fprintf(&b, "URL: %s\n", s.SourceURL)
	fmt.Fprintf(&b, "Local sequence: %d\n", s.LocalSequence)
	fmt.Fprintf(&b, "Local timestamp: %s\n", s.LocalTimestamp.Format(time.RFC3339))
	if s.RemoteSequence > 0 {
		fmt.Fprintf(&b, "Remote sequence: %d\n", s.RemoteSequence)
		fmt.Fprintf(&b, "Remote timestamp: %s\n", s.RemoteTimestamp.Format(time.RFC3339))
		fmt.Fprintf(&b, "Behind: %d sequences\n", s.Behind)
		fmt.Fprintf(&b, "Lag: %s\n", s.Lag.Round(time.Second))
	}
	return b.String()
}
