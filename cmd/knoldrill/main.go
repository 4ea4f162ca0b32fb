package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/knoldrill/internal/config"
	"github.com/conorfennell/knoldrill/internal/grading"
	"github.com/conorfennell/knoldrill/internal/logging"
	"github.com/conorfennell/knoldrill/internal/outbox"
	"github.com/conorfennell/knoldrill/internal/reviewdue"
	"github.com/conorfennell/knoldrill/internal/session"
	"github.com/conorfennell/knoldrill/internal/storage"
	"github.com/conorfennell/knoldrill/internal/sync"
	"github.com/conorfennell/knoldrill/internal/web"
)

// Ended sessions are kept this long for GET /sessions/{id}.
const sessionRetention = time.Hour

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("knoldrill failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("knoldrill", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	addSource := fs.String("add-source", "", "Add a new source (local path or git URL)")
	doSync := fs.Bool("sync", false, "Sync all sources")
	serve := fs.Bool("serve", false, "Start the HTTP server")
	study := fs.String("study", "", "Study interactively: mastery, confidence or due")
	progress := fs.String("progress", "", "Progress id to resume (the deck id for due)")
	name := fs.String("name", "", "Name for a new confidence progress")
	tags := fs.StringSlice("tag", nil, "Only study items with one of these tags")
	containers := fs.Int64Slice("source", nil, "Only study items from these source ids")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Info("Database opened successfully", "path", cfg.Storage.Path)

	sink, closeSink, err := buildSink(cfg.Outbox, db, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	box := outbox.New(sink,
		outbox.WithLogger(logger),
		outbox.WithRetry(cfg.Outbox.Retries, cfg.Outbox.Backoff),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Outbox.CloseTimeout)
		defer cancel()
		if err := box.Close(closeCtx); err != nil {
			logger.Error("Outbox did not drain", "error", err)
		}
	}()

	syncer := &sync.Syncer{Store: db, ReposDir: cfg.ReposDir, GitProgress: os.Stderr}

	intervals, err := cfg.Confidence.IntervalConfig()
	if err != nil {
		return err
	}
	mgr := session.NewManager(db, box, session.Config{
		ReinsertDistance: cfg.Mastery.ReinsertDistance,
		Intervals:        intervals,
		NewWordCount:     cfg.Confidence.NewWordLimit(),
		Review:           cfg.Review,
	},
		session.WithGrader(func(c reviewdue.Config) reviewdue.Grader { return grading.New(c) }),
		session.WithLogger(logger),
	)

	if *addSource != "" {
		if _, err := syncer.AddSource(ctx, *addSource); err != nil {
			return fmt.Errorf("failed to add source: %w", err)
		}
	}
	if *doSync {
		reports, err := syncer.RunSync(ctx)
		if err != nil {
			return err
		}
		for _, r := range reports {
			fmt.Printf("%s: %d items, %d deleted, %d errors\n", r.Path, r.Parsed, r.Deleted, len(r.Errors))
		}
	}

	switch {
	case *study != "":
		mode, err := session.ParseMode(*study)
		if err != nil {
			return err
		}
		return studyLoop(ctx, mgr, session.StartRequest{
			Mode:       mode,
			ProgressID: *progress,
			Name:       *name,
			Containers: *containers,
			Tags:       *tags,
		}, os.Stdin, os.Stdout)
	case *serve:
		return serveHTTP(ctx, cfg.Server, web.NewServer(mgr, syncer, db, logger), mgr, logger)
	case *addSource == "" && !*doSync:
		fmt.Fprintln(os.Stderr, "Usage: knoldrill [--add-source PATH] [--sync] [--serve | --study MODE] [flags]")
		fs.PrintDefaults()
	}
	return nil
}

// buildSink selects the outbox sink. The returned close function releases
// the broker connection, if any.
func buildSink(cfg config.OutboxConfig, db *storage.DB, logger *slog.Logger) (outbox.Sink, func(), error) {
	if cfg.Sink == "sqlite" {
		return db, func() {}, nil
	}
	amqpSink, err := outbox.NewAMQPSink(cfg.AMQPURL, cfg.Exchange, logger)
	if err != nil {
		return nil, nil, err
	}
	closeSink := func() {
		if err := amqpSink.Close(); err != nil {
			logger.Warn("Failed to close AMQP sink", "error", err)
		}
	}
	if cfg.Sink == "amqp" {
		return amqpSink, closeSink, nil
	}
	return outbox.Fanout{db, amqpSink}, closeSink, nil
}

func serveHTTP(ctx context.Context, cfg config.ServerConfig, handler http.Handler, mgr *session.Manager, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := mgr.Forget(sessionRetention); n > 0 {
					logger.Debug("Forgot ended sessions", "count", n)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
