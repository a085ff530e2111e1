// ABOUTME: This file is the command entrypoint for media-archiver
// ABOUTME: Dispatches sync:run, sync:daemon, auth:telegram, health:check and cookies:check

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"media-archiver/config"
	"media-archiver/driver"
	"media-archiver/repository"
	"media-archiver/service"
	"media-archiver/service/scheduler"
)

func main() {
	// Setup structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	command := defaultCommand()
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	var err error
	switch command {
	case "sync:run":
		err = runOnce(logger)
	case "sync:daemon":
		err = runDaemon(logger)
	case "auth:telegram":
		printTelegramAuthGuide()
	case "health:check":
		err = runHealthCheck(logger)
	case "cookies:check":
		err = runCookiesCheck(logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		fmt.Fprintln(os.Stderr, "usage: media-archiver [sync:run|sync:daemon|auth:telegram|health:check|cookies:check]")
		os.Exit(1)
	}

	if err != nil {
		logger.Error("Command failed", "command", command, "error", err)
		hintOnAuthError(logger, err)
		os.Exit(1)
	}
}

// defaultCommand honors APP_MODE for container launchers with no args.
func defaultCommand() string {
	if os.Getenv("APP_MODE") == "daemon" {
		return "sync:daemon"
	}
	return "sync:run"
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// buildEngine wires the full pipeline from configuration. The returned cleanup
// closes the state store and the sink connection.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*service.SyncEngine, func(), error) {
	state, err := repository.NewSQLiteStateStore(cfg.State.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state store: %w", err)
	}

	twitterClient, err := driver.NewTwitterClient(&cfg.Source.Cookies, cfg.Source.BearerToken, logger)
	if err != nil {
		state.Close()
		return nil, nil, fmt.Errorf("failed to build source client: %w", err)
	}

	telegramClient, err := driver.NewTelegramClient(cfg.Sink.APIID, cfg.Sink.APIHash, cfg.Sink.StringSession, logger)
	if err != nil {
		state.Close()
		return nil, nil, fmt.Errorf("failed to build sink client: %w", err)
	}

	engine := service.NewSyncEngine(
		state,
		service.NewTimelineService(twitterClient, logger),
		telegramClient,
		service.NewMediaDownloader(logger),
		service.EngineConfig{
			Accounts:            cfg.Source.Users,
			DownloadDir:         cfg.Sync.DownloadTmpDir,
			LockTTL:             cfg.Sync.JobLockTTL,
			BackfillPagesPerRun: cfg.Sync.BackfillPagesPerRun,
			MaxMediaPerRun:      cfg.Sync.MaxMediaPerRun,
			MaxUploadVideoBytes: cfg.Sync.MaxUploadVideoBytes,
			Cooldown:            cfg.Source.Cooldown,
		},
		logger,
	)

	cleanup := func() {
		if err := telegramClient.Disconnect(); err != nil {
			logger.Warn("Failed to disconnect sink", "error", err)
		}
		if err := state.Close(); err != nil {
			logger.Warn("Failed to close state store", "error", err)
		}
	}

	return engine, cleanup, nil
}

func runOnce(logger *slog.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	engine, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("Sync run completed",
		"run_id", summary.RunID,
		"skipped_by_lock", summary.SkippedByLock,
		"total_uploaded", summary.TotalUploaded())
	return nil
}

func runDaemon(logger *slog.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	engine, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sched, err := scheduler.NewDailyScheduler(engine, scheduler.Config{
		Timezone:     cfg.Scheduler.Timezone,
		DailyAt:      cfg.Scheduler.DailyAt,
		TickInterval: cfg.Scheduler.TickInterval,
		RunOnStart:   cfg.Scheduler.RunOnStart,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runCookiesCheck(logger *slog.Logger) error {
	raw := os.Getenv("SOURCE_COOKIES_JSON")
	if raw == "" {
		return fmt.Errorf("SOURCE_COOKIES_JSON is not set")
	}

	bundle, rewritten, err := config.ParseCookies(raw)
	if err != nil {
		return err
	}

	pairs := bundle.AuthPairs()
	fmt.Printf("cookies: %d\n", len(bundle.Cookies))
	fmt.Printf("auth pairs: %d\n", len(pairs))
	fmt.Printf("domains rewritten to .twitter.com: %d\n", rewritten)
	fmt.Printf("guest token present: %t\n", bundle.GuestToken() != "")

	if len(pairs) == 0 {
		return fmt.Errorf("no usable (auth_token, ct0) pair found")
	}

	client, err := driver.NewTwitterClient(bundle, os.Getenv("SOURCE_WEB_BEARER_TOKEN"), logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	status, err := client.CheckSession(ctx)
	if err != nil {
		return fmt.Errorf("session check failed: %w", err)
	}
	fmt.Printf("session logged in: %t\n", status.LoggedIn)
	if status.Host != "" {
		fmt.Printf("working host: %s\n", status.Host)
	}
	if !status.LoggedIn {
		return fmt.Errorf("source session rejected: %s", status.Reason)
	}

	logger.Info("Cookie bundle usable", "pairs", len(pairs), "rewritten", rewritten)
	return nil
}

// printTelegramAuthGuide explains how to mint the string session this service
// consumes. Interactive login needs a phone-code prompt, which a headless
// daemon cannot do, so the session is created once elsewhere.
func printTelegramAuthGuide() {
	fmt.Println("media-archiver uses a Telethon-format string session for the sink.")
	fmt.Println()
	fmt.Println("Generate one on a machine with a terminal:")
	fmt.Println()
	fmt.Println("  pip install telethon")
	fmt.Println("  python -c \"from telethon.sync import TelegramClient; \\")
	fmt.Println("    from telethon.sessions import StringSession; \\")
	fmt.Println("    print(TelegramClient(StringSession(), API_ID, 'API_HASH').start().session.save())\"")
	fmt.Println()
	fmt.Println("Then set SINK_API_ID, SINK_API_HASH and SINK_STRING_SESSION.")
	fmt.Println("Verify with: media-archiver health:check")
}

// hintOnAuthError prints an operator hint when the failure looks like expired
// credentials.
func hintOnAuthError(logger *slog.Logger, err error) {
	msg := err.Error()
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "authentication invalid") {
		logger.Error("Credentials appear invalid or expired, refresh SOURCE_COOKIES_JSON from a logged-in browser session")
	}
}
