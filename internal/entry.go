// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/cardsync/internal/api"
	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardservice"
	"github.com/starford/cardsync/internal/cardsync"
	"github.com/starford/cardsync/internal/deck"
	"github.com/starford/cardsync/internal/markdown"
	"github.com/starford/cardsync/internal/mcpserver"
	"github.com/starford/cardsync/internal/render"
	"github.com/starford/cardsync/internal/sse"
	"github.com/starford/cardsync/internal/storage"
)

// runtime is the wiring shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	vault  *storage.FS
	store  deck.Store
	orch   *cardsync.Orchestrator
	svc    *cardservice.Service
	closer []io.Closer
}

func (rt *runtime) Close() {
	for i := len(rt.closer) - 1; i >= 0; i-- {
		if err := rt.closer[i].Close(); err != nil {
			rt.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{
		logOutput: os.Stdout,
		output:    os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger. When a log file is configured, records
// go to both the log output and a rotated file.
func newLogger(cfg *Config, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer
	if lf := cfg.App.LogFile; lf.Path != "" {
		rotated := &lumberjack.Logger{
			Filename:   lf.Path,
			MaxSize:    lf.MaxSizeMB,
			MaxBackups: lf.MaxBackups,
			MaxAge:     lf.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotated)
		closer = rotated
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	return logger, closer
}

func openStore(ctx context.Context, cfg StoreConfig) (deck.Store, error) {
	if cfg.Backend == BackendCouchDB {
		couch, err := deck.OpenCouch(ctx, cfg.CouchDB.URL, cfg.CouchDB.Database)
		if err != nil {
			return nil, err
		}
		return couch, nil
	}
	db, err := deck.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func setup(ctx context.Context, app *application) (*runtime, error) {
	cfg := app.config

	logger, logCloser := newLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	rt := &runtime{cfg: cfg, logger: logger}
	if logCloser != nil {
		rt.closer = append(rt.closer, logCloser)
	}

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("deck_mode", cfg.Deck.Mode),
		slog.Bool("keep_sync", cfg.Vault.KeepSync),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		rt.Close()
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	vault, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	rt.vault = vault

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init card store: %w", err)
	}
	rt.store = store
	rt.closer = append(rt.closer, store)

	compiler := markdown.NewCompiler(render.NewGoldmark(cfg.Render.Options()))
	rt.orch = cardsync.New(compiler, store, cfg.Deck.Sync(), logger)
	rt.svc = cardservice.NewService(vault, rt.orch)
	return rt, nil
}

// Run starts the HTTP server and, in keep-sync mode, the vault watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.store.Documents(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"store unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Vault.KeepSync {
		g.Go(func() error {
			res, err := rt.orch.SyncVault(gCtx, rt.vault, false)
			if err != nil {
				logger.Warn("initial sync failed", slog.String("error", err.Error()))
			} else {
				logger.Info("initial sync", slog.String("summary", res.Aggregate.String()))
			}
			return rt.orch.Watch(gCtx, rt.vault, rt.vault.Root(), func(ev cardsync.Event) {
				switch ev.Kind {
				case cardsync.EventSent:
					broker.PublishSent(ev.Diff)
				case cardsync.EventRemoved:
					broker.PublishRemoved(ev.Diff)
				case cardsync.EventFailed:
					broker.PublishFailed(ev.DocumentID, ev.Err)
				}
			})
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stop the watcher too.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunSend sends the given vault documents, or the whole vault when paths is
// empty, and prints one line per document plus a summary.
func RunSend(ctx context.Context, paths []string, force bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	var res cardsync.BatchResult
	if len(paths) == 0 {
		res, err = rt.svc.SyncVault(ctx, force)
		if err != nil {
			return err
		}
	} else {
		res = rt.svc.SendPaths(ctx, paths, force)
	}

	if err := WriteReport(app.output, res); err != nil {
		return err
	}
	if n := len(res.Failures); n > 0 {
		return fmt.Errorf("%d of %d documents failed", n, n+len(res.Diffs))
	}
	return nil
}

// WriteReport prints a batch result the way the send command shows it.
func WriteReport(w io.Writer, res cardsync.BatchResult) error {
	for _, d := range res.Diffs {
		if _, err := fmt.Fprintln(w, d.String()); err != nil {
			return err
		}
	}
	for _, f := range res.Failures {
		line := fmt.Sprintf("FAILED %s", f.Error())
		switch {
		case apperr.IsStructural(f.Err):
			line += "\n  " + apperr.StructuralHint
		case apperr.IsConnection(f.Err):
			line += "\n  check that the card store is reachable"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if res.Skipped > 0 {
		if _, err := fmt.Fprintf(w, "%d documents already up to date\n", res.Skipped); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, res.Aggregate.String())
	return err
}

// RunMCP serves the MCP tools on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}
