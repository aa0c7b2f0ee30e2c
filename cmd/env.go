package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmindex-go/internal/changelog"
	"github.com/wegman-software/osmindex-go/internal/expire"
	"github.com/wegman-software/osmindex-go/internal/logger"
	"github.com/wegman-software/osmindex-go/internal/metrics"
	"github.com/wegman-software/osmindex-go/internal/pipeline"
	"github.com/wegman-software/osmindex-go/internal/tagfilter"
)

// env is everything an updating command needs.
type env struct {
	backend   *pipeline.Backend
	processor *pipeline.AppendProcessor
	sink      changelog.Sink
	filter    tagfilter.Filter
	lua       *tagfilter.LuaFilter
	stop      context.CancelFunc
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	log := logger.Get()
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func buildFilter() (tagfilter.Filter, *tagfilter.LuaFilter, error) {
	var chain tagfilter.Chain
	if cfg.TagFilter != "" {
		rules, err := tagfilter.LoadRules(cfg.TagFilter)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, rules)
	}
	var lua *tagfilter.LuaFilter
	if cfg.LuaFilter != "" {
		var err error
		if lua, err = tagfilter.LoadLua(cfg.LuaFilter); err != nil {
			return nil, nil, err
		}
		chain = append(chain, lua)
	}
	if len(chain) == 0 {
		return tagfilter.None, nil, nil
	}
	return chain, lua, nil
}

// openSink combines the change log file and the tile expiry list.
func openSink() (changelog.Sink, error) {
	var out changelog.Sink = changelog.Discard
	var err error
	switch {
	case cfg.ChangeLog == "":
	case cfg.ChangeLogFormat == "parquet":
		out, err = changelog.NewParquetSink(cfg.ChangeLog, cfg.BatchSize)
	default:
		out, err = changelog.NewJSONSink(cfg.ChangeLog)
	}
	if err != nil {
		return nil, err
	}
	if cfg.ExpireOutput == "" {
		return out, nil
	}
	tracker, err := expire.NewTracker(cfg.ExpireMinZoom, cfg.ExpireMaxZoom, cfg.ExpireOutput)
	if err != nil {
		return nil, errors.Join(err, out.Close())
	}
	return changelog.Tee(out, tracker), nil
}

// openEnv opens the backend and builds the processor. System metrics are
// sampled until the env is closed.
func openEnv(ctx context.Context) (*env, error) {
	e := &env{}
	var err error
	if e.filter, e.lua, err = buildFilter(); err != nil {
		return nil, fmt.Errorf("failed to load tag filter: %w", err)
	}
	if e.sink, err = openSink(); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to open change log: %w", err)
	}
	if e.backend, err = pipeline.OpenBackend(ctx, cfg); err != nil {
		e.Close()
		return nil, err
	}

	mctx, stop := context.WithCancel(ctx)
	e.stop = stop
	collector := metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics"))
	go collector.Start(mctx)
	hb := metrics.NewHeartbeat(logger.Named("progress"), collector, 10*time.Second)

	if e.processor, err = pipeline.NewAppendProcessor(ctx, cfg, e.backend, e.filter, e.sink, hb); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) Close() error {
	if e.stop != nil {
		e.stop()
	}
	var errs []error
	if e.sink != nil {
		errs = append(errs, e.sink.Close())
	}
	if e.backend != nil {
		errs = append(errs, e.backend.Close())
	}
	if e.lua != nil {
		e.lua.Close()
	}
	return errors.Join(errs...)
}
