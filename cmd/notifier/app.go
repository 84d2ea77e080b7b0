package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ylqcxwl/youtube-notifier/internal/config"
	"github.com/ylqcxwl/youtube-notifier/internal/cursor"
	"github.com/ylqcxwl/youtube-notifier/internal/event"
	"github.com/ylqcxwl/youtube-notifier/internal/fetcher"
	"github.com/ylqcxwl/youtube-notifier/internal/metrics"
	"github.com/ylqcxwl/youtube-notifier/internal/notifier"
	"github.com/ylqcxwl/youtube-notifier/internal/registry"
	"github.com/ylqcxwl/youtube-notifier/internal/scheduler"
	"github.com/ylqcxwl/youtube-notifier/internal/storage"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "youtube-notifier",
		Usage: "Post new YouTube uploads to a Telegram chat",
		Description: `Polls the feeds of the channels listed in the channels file and
		sends a Telegram message for every upload not seen before.

		Without arguments a single pass is made, suitable for cron. With
		--interval the process keeps running and polls on every tick.

		Settings come from environment variables, e.g.:

		TELEGRAM_TOKEN, TELEGRAM_CHAT_ID, CHANNELS_FILE, STATE_FILE
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "optional TOML configuration file",
				EnvVars: []string{"NOTIFIER_CONFIG"},
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "poll continuously with this interval instead of a single pass",
				EnvVars: []string{"CHECK_INTERVAL"},
			},
		},
		Commands: []*cli.Command{
			checkCmd(),
		},
		Action: pollAction,
	}
}

func pollAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.LogLevel)

	backend, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	client := &http.Client{Timeout: cfg.HTTPTimeout.Duration}
	n := notifier.New(cfg, client, log)
	if !n.Enabled() {
		log.Warn("telegram credentials missing", "policy", cfg.OnMissingCredentials)
	}

	collector := metrics.New()
	sched := scheduler.New(
		registry.New(cfg.ChannelsFile, log),
		cursor.New(backend, log),
		newFetcher(cfg, client),
		n,
		event.Multi{event.NewLogSink(log), collector},
		log,
	)
	sched.SetOrderingGuard(cfg.OrderingGuard)
	if cfg.MetricsFile != "" {
		sched.OnRunFinished(func(scheduler.Summary) {
			if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
				log.Warn("export metrics", "path", cfg.MetricsFile, "error", err)
			}
		})
	}

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	interval := c.Duration("interval")
	if interval <= 0 {
		sched.RunOnce(ctx)
		return nil
	}

	log.Info("starting poll loop", "interval", interval)
	sched.SetTickInterval(interval)
	sched.Run(ctx)
	log.Info("poll loop stopped")
	return nil
}

func checkCmd() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Check that a channel feed is reachable",
		ArgsUsage: "<channel-id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return cli.Exit("usage: youtube-notifier check <channel-id>", 2)
			}
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := newLogger(cfg.LogLevel)

			client := &http.Client{Timeout: cfg.HTTPTimeout.Duration}
			if err := newFetcher(cfg, client).Check(context.Background(), id); err != nil {
				log.Debug("feed check failed", "source", id, "error", err)
				_, _ = fmt.Fprintln(c.App.Writer, "invalid")
				return cli.Exit("", 1)
			}
			_, _ = fmt.Fprintln(c.App.Writer, "valid")
			return nil
		},
	}
}

func newFetcher(cfg *config.Config, client *http.Client) *fetcher.Fetcher {
	return fetcher.New(client, fetcher.Options{
		Timeout:         cfg.HTTPTimeout.Duration,
		ShortsMode:      cfg.ShortsMode,
		ShortsThreshold: cfg.ShortsThreshold.Duration,
	})
}

func openBackend(cfg *config.Config, log *slog.Logger) (storage.Backend, error) {
	if cfg.StateBackend != config.BackendSQLite {
		return storage.NewFile(cfg.StateFile), nil
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	store, aside, err := storage.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	if aside != "" {
		log.Warn("cursor database unreadable, starting fresh",
			"path", cfg.DatabasePath,
			"moved_to", aside,
		)
	}
	return store, nil
}
