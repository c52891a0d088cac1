package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"notify_relay/internal/bot/discord"
	"notify_relay/internal/bot/telegram"
	"notify_relay/internal/config"
	"notify_relay/internal/liveness"
	"notify_relay/internal/publisher"
	"notify_relay/internal/scheduler"
	"notify_relay/internal/server"
	"notify_relay/internal/service"
	"notify_relay/internal/source/youtube"
	"notify_relay/internal/storage/file"
	"notify_relay/internal/storage/postgres"
	"notify_relay/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	// Nothing touches the network before this point.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	telemetry.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize state stores
	var (
		checkpoints   service.CheckpointStore
		history       service.AnnouncementLog
		txManager     service.TransactionManager
		announcements *postgres.AnnouncementStore
	)
	switch cfg.State.Driver {
	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")

		checkpoints = postgres.NewCheckpointStore(db, cfg.YouTube.FeedURL, logger)
		announcements = postgres.NewAnnouncementStore(db)
		history = announcements
		txManager = postgres.NewTransactionManager(db)
	default:
		checkpoints = file.NewCheckpointStore(cfg.State.Path, logger)
	}

	feed := youtube.New(youtube.Config{
		FeedURL:   cfg.YouTube.FeedURL,
		UserAgent: cfg.YouTube.UserAgent,
		Timeout:   cfg.YouTube.Timeout,
	}, logger)

	var prober liveness.Prober
	switch cfg.Twitch.ProbeDriver {
	case "helix":
		prober = liveness.NewHelix(liveness.HelixConfig{
			ClientID:     cfg.Twitch.ClientID,
			ClientSecret: cfg.Twitch.ClientSecret,
		}, logger)
	default:
		prober = liveness.NewStreamlink(cfg.Twitch.Streamlink, logger)
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Error("failed to create discord session", "error", err)
		os.Exit(1)
	}

	var pub service.Publisher = publisher.NewDiscord(session, publisher.DiscordConfig{
		VideoChannelID:  cfg.Discord.VideoChannelID,
		StreamChannelID: cfg.Discord.StreamChannelID,
		RatePerSec:      cfg.Discord.RatePerSec,
	}, logger)

	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
			Source:     "notify_relay",
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()

		pub = publisher.NewFanout(pub, logger, rabbitMQ)
	}

	// Only the compose bot stages preview files.
	var stagingDir string
	if cfg.Telegram.Enabled {
		stagingDir = cfg.Telegram.StagingDir
	}

	notifier := service.NewNotifier(
		feed,
		youtube.NewResolver(cfg.YouTube.ShortsMarker),
		liveness.NewPool(prober, cfg.Twitch.Workers),
		checkpoints,
		history,
		txManager,
		pub,
		logger,
		service.NotifierConfig{
			Username:      cfg.Twitch.Username,
			StreamURL:     liveness.ChannelURL(cfg.Twitch.Username),
			Cooldown:      cfg.Notify.Cooldown,
			RetryAttempts: cfg.YouTube.Retry.MaxAttempts,
			RetryBackoff:  cfg.YouTube.Retry.Backoff,
			ProbeTimeout:  cfg.Twitch.ProbeTimeout,
			StagingDir:    stagingDir,
		},
	)
	notifier.SetImageChecker(publisher.NewImageChecker())
	notifier.Restore(ctx)

	sched := scheduler.NewScheduler(notifier, cfg.Notify.Interval, cfg.Notify.TickTimeout, logger)

	commands := discord.NewCommands(sched, notifier, cfg.Discord.OwnerID, cfg.Discord.CommandPrefix, logger)
	if announcements != nil {
		commands.SetHistory(announcements)
	}
	discordBot := discord.NewBot(session, commands, logger)

	httpServer := server.New(notifier, server.Config{
		Addr:             cfg.HTTP.Addr,
		AllowRemoteRelay: cfg.HTTP.AllowRemoteRelay,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return httpServer.Start(gctx) })
	g.Go(func() error { return discordBot.Run(gctx) })
	g.Go(func() error { return sched.Start(gctx) })

	if cfg.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(telegram.Config{
			Token:       cfg.Telegram.Token,
			OwnerID:     cfg.Telegram.OwnerID,
			StagingDir:  cfg.Telegram.StagingDir,
			PollTimeout: cfg.Telegram.PollTimeout,
		}, telegram.NewRelayClient(cfg.Telegram.RelayURL, 0), logger)
		if err != nil {
			logger.Error("failed to start telegram bot", "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return telegramBot.Run(gctx) })
	}

	logger.Info("starting notify relay",
		"feed_url", cfg.YouTube.FeedURL,
		"twitch_user", cfg.Twitch.Username,
		"probe_driver", cfg.Twitch.ProbeDriver,
		"state_driver", cfg.State.Driver,
		"interval", cfg.Notify.Interval,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
