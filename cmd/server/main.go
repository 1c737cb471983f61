package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rimnswebui "github.com/rimnsai/rimns-web-ui"
	"github.com/rimnsai/rimns-web-ui/internal/handlers"
	"github.com/rimnsai/rimns-web-ui/internal/services"
	"github.com/urfave/cli/v3"
)

func main() {
	// A missing .env is fine, the environment may already carry the keys.
	_ = godotenv.Load()

	cmd := newCommand()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("Server failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "rimns-web-ui",
		Usage: "Serve the Rimns AI chat in the browser",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   defaultConfigPath(),
				Sources: cli.EnvVars("RIMNS_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on, overrides the config file",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error), overrides the config file",
			},
		},
		Action: serve,
	}
}

func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cfgDir, "rimns", "config.yaml")
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.String("port")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	gen, err := cfg.LLM.generator(ctx, logger)
	if err != nil {
		return fmt.Errorf("error creating llm: %w", err)
	}

	// Image generation needs the Gemini image model, so it is only offered with that provider.
	var imager handlers.ImageGenerator
	if g, ok := gen.(services.Gemini); ok {
		imager = g
	}

	var archive handlers.Archive
	if cfg.ArchivePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.ArchivePath), 0o755); err != nil {
			return fmt.Errorf("error creating archive directory: %w", err)
		}
		boltArchive, err := services.NewBoltArchive(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer boltArchive.Close()
		archive = boltArchive
	}

	m, err := handlers.NewMain(gen, services.NewMarkdown(cfg.CodeStyle), archive, imager, cfg.handlersConfig(), logger)
	if err != nil {
		return err
	}

	staticFS, err := fs.Sub(rimnswebui.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("error opening static files: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           m.Router(staticFS),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sessions", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				return fmt.Errorf("forcing server close: %w", err)
			}
		}
	}

	return nil
}
