package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"DocChat/internal/backend"
	"DocChat/internal/chatbot"
	"DocChat/internal/config"
	"DocChat/internal/telemetry"
	"DocChat/internal/web"
)

func main() {
	cfg, err := config.Load(os.Getenv("DOCCHAT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.BackendURL, "api-url", cfg.BackendURL, "Backend origin (scheme://host:port)")
	flag.BoolVar(&cfg.Serve, "serve", cfg.Serve, "Serve the web page instead of the terminal client")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Listen address for -serve")
	flag.BoolVar(&cfg.UseDocuments, "use-documents", cfg.UseDocuments, "Use uploaded documents when answering")
	flag.StringVar(&cfg.WatchDir, "watch", cfg.WatchDir, "Upload .pdf/.txt files dropped into this directory")
	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for logs, traces and metrics")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	mode := "terminal"
	if cfg.Serve {
		mode = "serve"
	}
	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, telemetry.Settings{
		LogDir:     cfg.LogDir,
		BackendURL: cfg.BackendURL,
		Mode:       mode,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	logger.Info("docchat starting", "backend", cfg.BackendURL, "serve", cfg.Serve, "use_documents", cfg.UseDocuments)

	if cfg.Serve {
		srv, err := web.NewServer(cfg.ListenAddr, cfg.BackendURL, logger, web.WithDebug(cfg.Debug))
		if err != nil {
			return fmt.Errorf("failed to create web server: %w", err)
		}
		fmt.Printf("Serving on %s (backend %s)\n", cfg.ListenAddr, cfg.BackendURL)
		return srv.Start(ctx)
	}

	client, err := backend.NewClient(cfg.BackendURL,
		backend.WithLogger(logger),
		backend.WithTracer(tracer),
		backend.WithMeter(meter),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	bot := chatbot.NewChatBot(cfg, client, logger, os.Stdin, os.Stdout)
	return bot.Run(ctx)
}
