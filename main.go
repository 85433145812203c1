package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"racing-insights/internal/api"
	"racing-insights/internal/auth"
	"racing-insights/internal/chat"
	"racing-insights/internal/config"
	"racing-insights/internal/history"
	"racing-insights/internal/logging"
	"racing-insights/internal/session"
	"racing-insights/internal/storage"
	"racing-insights/internal/terminal"
	"racing-insights/internal/ui"
)

func main() {
	// Set the GetEnv function for config
	config.GetEnv = os.Getenv

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Parse command-line flags
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	kv, err := storage.New(cfg.Storage())
	if err != nil {
		logger.Error().Err(err).Str("storage", cfg.StorageType).Msg("failed to open storage")
		fmt.Fprintf(os.Stderr, "Storage error: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
		// The read loop is blocked on stdin; closing it unblocks ReadLine.
		os.Stdin.Close()
	}()

	a, err := newApp(cfg, kv, logger, terminal.NewInput(), os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup error: %v\n", err)
		os.Exit(1)
	}
	a.spinner = terminal.NewSpinner(os.Stdout)

	// Backend health check (non-fatal)
	if err := a.client.HealthCheck(ctx); err != nil {
		a.display.PrintWarning(fmt.Sprintf("Backend check failed: %v", err))
		a.display.PrintInfo("Requests will fail until the backend at " + cfg.APIURL + " is reachable.")
	}

	a.run(ctx)
}

// newApp wires the core components over kv
func newApp(cfg *config.Config, kv storage.Store, logger zerolog.Logger, input *terminal.Input, out io.Writer) (*app, error) {
	sess := session.NewStore(kv,
		session.WithLogger(logger.With().Str("component", "session").Logger()),
		session.WithTimeout(cfg.SessionTimeout),
	)
	client := api.NewClient(cfg.APIURL, cfg.APITimeout, sess,
		api.WithLogger(logger.With().Str("component", "api").Logger()),
	)
	reconciler := history.NewReconciler(
		history.WithLogger(logger.With().Str("component", "history").Logger()),
	)

	chatLogger := logger.With().Str("component", "chat").Logger()
	controller, err := chat.NewController(&chat.Config{
		Backend:    client,
		Session:    sess,
		Reconciler: reconciler,
		Logger:     &chatLogger,
	})
	if err != nil {
		return nil, err
	}

	width, _ := terminal.Size()
	return &app{
		cfg:        cfg,
		session:    sess,
		client:     client,
		guard:      auth.NewGuard(client, sess, logger.With().Str("component", "auth").Logger()),
		controller: controller,
		index:      chat.NewIndex(client, reconciler, cfg.HistoryLimit, chatLogger),
		display:    ui.NewDisplay(out, width, sess.Preferences().Theme),
		input:      input,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// parseFlags layers command-line flags over environment and defaults
func parseFlags() (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flag.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "Racing Insights API URL")
	flag.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "Maximum conversations shown in /history")
	flag.StringVar(&cfg.StorageType, "storage", cfg.StorageType, "Session storage backend: file, sqlite, redis or memory")
	flag.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "Session file for the file backend")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "Database file for the sqlite backend")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: trace, debug, info, warn, error")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file (empty logs to stderr)")

	timeoutSeconds := flag.Int("timeout", int(cfg.APITimeout/time.Second), "API request timeout in seconds")
	sessionMinutes := flag.Int("session-timeout", int(cfg.SessionTimeout/time.Minute), "Minutes before a login expires on this device")
	verbose := flag.Bool("verbose", false, "Enable debug logging")

	flag.Parse()

	// Apply timeouts
	cfg.APITimeout = time.Duration(*timeoutSeconds) * time.Second
	cfg.SessionTimeout = time.Duration(*sessionMinutes) * time.Minute

	if *verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
