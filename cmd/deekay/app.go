package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/deekay/candidates"
	"github.com/hazyhaar/deekay/config"
	"github.com/hazyhaar/deekay/dbopen"
	"github.com/hazyhaar/deekay/detect"
	"github.com/hazyhaar/deekay/finder"
	"github.com/hazyhaar/deekay/history"
	"github.com/hazyhaar/deekay/horosafe"
	"github.com/hazyhaar/deekay/notice"
	"github.com/hazyhaar/deekay/recovery"
	"github.com/hazyhaar/deekay/shardindex"
)

// application owns everything that needs closing.
type application struct {
	svc       *finder.Service
	history   *history.Log
	retention int
	closers   []func() error
	logger    *slog.Logger
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{logger: logger, retention: cfg.History.RetentionDays}

	var genOpts []candidates.Option
	if !cfg.UseSchemeVariants() {
		genOpts = append(genOpts, candidates.WithoutSchemeVariants())
	}
	gen, err := candidates.New(cfg.Rules, genOpts...)
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}

	locator, transport, closeTransport := newShardTransport(cfg.Index, logger)
	app.closers = append(app.closers, closeTransport)
	resolver := shardindex.New(locator, transport, logger)
	orch := recovery.New(gen, resolver, recovery.Config{ArchiveBase: cfg.Archive.Base}, recovery.WithLogger(logger))

	fcfg := finder.Config{
		Orchestrator: orch,
		Notice:       notice.New(notice.Config{Version: cfg.Report.Version, IssueBase: cfg.Report.IssueBase}),
		Coverage:     cfg.Coverage,
		Logger:       logger,
	}

	if cfg.History.Path != "" {
		db, err := dbopen.Open(cfg.History.Path, dbopen.WithMkdirAll())
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		if app.history, err = history.New(db); err != nil {
			app.Close()
			return nil, err
		}
		fcfg.History = app.history
	}

	if cfg.Browser.Enabled {
		bi := detect.NewBrowserInspector(detect.BrowserConfig{
			RemoteURL:        cfg.Browser.Remote,
			Stealth:          cfg.Browser.Stealth,
			NavTimeout:       cfg.Browser.NavTimeout,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Logger:           logger,
		})
		if err := bi.Start(ctx); err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, bi.Close)
		fcfg.Inspector = bi
	} else {
		fcfg.Inspector = detect.NewHTTPInspector(detect.WithLogger(logger))
	}

	if app.svc, err = finder.New(fcfg); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// newShardTransport picks the transport for cfg.Base and wraps it with
// logging and the per-fetch timeout.
func newShardTransport(cfg config.IndexConfig, logger *slog.Logger) (*shardindex.BaseLocator, shardindex.Transport, func() error) {
	locator := shardindex.NewBaseLocator(cfg.Base)
	closer := func() error { return nil }
	var transport shardindex.Transport
	if locator.IsRemote() {
		hcfg := shardindex.HTTPConfig{
			Timeout:   cfg.Timeout,
			MaxBytes:  cfg.MaxBytes,
			UserAgent: cfg.UserAgent,
		}
		if cfg.AllowPrivate {
			hcfg.URLValidator = horosafe.AllowAll
		}
		ht := shardindex.NewHTTPTransport(hcfg)
		closer = func() error { ht.Close(); return nil }
		transport = ht
	} else {
		transport = shardindex.DirTransport{MaxBytes: cfg.MaxBytes}
	}
	transport = shardindex.Chain(transport,
		shardindex.WithCallLogging(logger),
		shardindex.WithTimeout(cfg.Timeout),
	)
	return locator, transport, closer
}

// startCleanup prunes old passes once a day while ctx is alive.
func (a *application) startCleanup(ctx context.Context) {
	if a.history == nil || a.retention <= 0 {
		return
	}
	prune := func() {
		n, err := a.history.Cleanup(ctx, a.retention)
		if err != nil {
			a.logger.Warn("deekay: prune passes", "error", err)
			return
		}
		a.logger.Debug("deekay: pruned passes", "deleted", n)
	}
	go func() {
		prune()
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				prune()
			}
		}
	}()
}

// Close releases resources in reverse order.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("deekay: close", "error", err)
		}
	}
	a.closers = nil
}
