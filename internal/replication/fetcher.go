package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmindex-go/internal/logger"
)

// ErrNotPublished is returned for sequences the source does not have yet.
var ErrNotPublished = errors.New("sequence not published yet")

// Fetcher downloads state files and diffs, caching diffs on disk.
type Fetcher struct {
	source     *Source
	client     *http.Client
	cacheDir   string
	maxRetries int
	retryDelay time.Duration
}

// NewFetcher creates a fetcher caching below cacheDir.
func NewFetcher(source *Source, cacheDir string) *Fetcher {
	return &Fetcher{
		source:     source,
		client:     &http.Client{Timeout: 60 * time.Second},
		cacheDir:   cacheDir,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
	}
}

// Source returns the replication source
func (f *Fetcher) Source() *Source {
	return f.source
}

// FetchCurrentState fetches the newest state of the source.
func (f *Fetcher) FetchCurrentState(ctx context.Context) (*State, error) {
	return f.fetchState(ctx, f.source.StateURL())
}

// FetchSequenceState fetches the state of seq.
func (f *Fetcher) FetchSequenceState(ctx context.Context, seq int64) (*State, error) {
	return f.fetchState(ctx, f.source.SequenceStateURL(seq))
}

func (f *Fetcher) fetchState(ctx context.Context, url string) (*State, error) {
	logger.Named("replication").Debug("Fetching state", zap.String("url", url))
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	state, err := ParseState(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse state %s: %w", url, err)
	}
	return state, nil
}

// FetchSequenceData returns the cached path of the diff of seq,
// downloading it first if needed.
func (f *Fetcher) FetchSequenceData(ctx context.Context, seq int64) (string, error) {
	log := logger.Named("replication")
	cacheFile := f.CachePath(seq)
	if _, err := os.Stat(cacheFile); err == nil {
		log.Debug("Using cached OSC file", zap.String("path", cacheFile))
		return cacheFile, nil
	}
	if err := os.MkdirAll(filepath.Dir(cacheFile), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	resp, err := f.get(ctx, f.source.SequenceDataURL(seq))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	tmpFile := cacheFile + ".tmp"
	out, err := os.Create(tmpFile)
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	_, err = io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpFile)
		return "", fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return "", fmt.Errorf("failed to rename cache file: %w", err)
	}

	log.Debug("Downloaded OSC data", zap.Int64("sequence", seq), zap.String("path", cacheFile))
	return cacheFile, nil
}

// get performs a GET, retrying transport and server errors. A 404 maps
// to ErrNotPublished; any other non-200 status is an error.
func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "osmindex-go/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("%s: %w", url, ErrNotPublished)
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		resp.Body.Close()
		return nil, fmt.Errorf("%s: unexpected status code %d", url, resp.StatusCode)
	}
	return nil, fmt.Errorf("max retries exceeded for %s: %w", url, lastErr)
}

// CachePath returns the path where the diff of seq is cached.
func (f *Fetcher) CachePath(seq int64) string {
	return filepath.Join(f.cacheDir, SequenceToPath(seq)+".osc.gz")
}

// Prune removes cached diffs with a sequence below keepFrom and returns
// how many were removed.
func (f *Fetcher) Prune(keepFrom int64) (int, error) {
	removed := 0
	err := filepath.WalkDir(f.cacheDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".osc.gz") {
			return nil
		}
		rel, err := filepath.Rel(f.cacheDir, path)
		if err != nil {
			return err
		}
		seq, err := PathToSequence(filepath.ToSlash(rel))
		if err != nil || seq >= keepFrom {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}
