// Command deekay finds archived copies of lost magic.wizards.com articles.
//
// Usage:
//
//	deekay -url https://magic.wizards.com/en/news/...      # resolve a known 404
//	deekay -check https://magic.wizards.com/en/news/...    # inspect the page first
//	deekay -check <url> -browser                           # inspect in headless Chrome
//	deekay -serve                                          # HTTP API
//	deekay -mcp                                            # MCP over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/deekay/config"
	"github.com/hazyhaar/deekay/shield"
)

var version = "dev"

// errUsage means no mode was selected.
var errUsage = errors.New("no mode selected")

const usage = "usage: deekay [-config file] -url <url> | -check <url> [-browser] | -serve | -mcp"

func main() {
	configPath := flag.String("config", "", "path to deekay.yaml config file")
	resolveURL := flag.String("url", "", "resolve a page already known to be a 404")
	checkURL := flag.String("check", "", "inspect a live page and resolve it if it is a 404")
	useBrowser := flag.Bool("browser", false, "inspect pages in headless Chrome instead of a plain GET")
	serve := flag.Bool("serve", false, "serve the HTTP API")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools over stdio")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "deekay:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *useBrowser {
		cfg.Browser.Enabled = true
	}
	if cfg.Report.Version == "" {
		cfg.Report.Version = version
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, logger, cfg, *resolveURL, *checkURL, *serve, *serveMCP)
	stop()
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	case err != nil:
		logger.Error("deekay: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, resolveURL, checkURL string, serve, serveMCP bool) error {
	if resolveURL == "" && checkURL == "" && !serve && !serveMCP {
		return errUsage
	}

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	switch {
	case resolveURL != "":
		out, err := app.svc.Resolve(ctx, resolveURL)
		if err != nil {
			return err
		}
		return printJSON(out)
	case checkURL != "":
		out, err := app.svc.Check(ctx, checkURL)
		if err != nil {
			return err
		}
		return printJSON(out)
	case serveMCP:
		srv := mcp.NewServer(&mcp.Implementation{Name: "deekay", Version: cfg.Report.Version}, nil)
		app.svc.RegisterMCP(srv)
		logger.Info("deekay: MCP server on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	default:
		return runHTTP(ctx, logger, cfg.Server, app)
	}
}

func runHTTP(ctx context.Context, logger *slog.Logger, sc config.ServerConfig, app *application) error {
	stack, limiter := shield.Stack(shield.Config{RateLimit: sc.RateLimit, Exclude: []string{"/health"}})
	if limiter != nil {
		go limiter.Run(ctx)
	}

	addr := sc.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.svc.Router(stack...),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("deekay: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	app.startCleanup(ctx)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("deekay: shutdown", "error", err)
	}
	logger.Info("deekay: server stopped")
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
