package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/xhad/neurodocs/internal/app"
	cfgPkg "github.com/xhad/neurodocs/pkg/config"
	"github.com/xhad/neurodocs/server"
)

func main() {
	var (
		configPath string
		addr       string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(configPath, addr, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, logger *slog.Logger) error {
	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.Session, a.Extractor, a.Fetcher, server.Config{
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Logger:         logger,
	})

	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
