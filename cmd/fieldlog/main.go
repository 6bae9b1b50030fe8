package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skywatch-ops/fieldlog/internal/analytics"
	"github.com/skywatch-ops/fieldlog/internal/api"
	"github.com/skywatch-ops/fieldlog/internal/config"
	"github.com/skywatch-ops/fieldlog/internal/exchange"
	"github.com/skywatch-ops/fieldlog/internal/ops"
	"github.com/skywatch-ops/fieldlog/internal/storage/sqlite"
	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

func main() {
	configPath := flag.String("config", "fieldlog.toml", "path to the TOML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fieldlog: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		// A missing config file is fine: defaults apply
		if errors.Is(err, fs.ErrNotExist) {
			cfg, err = config.Load("")
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolve timezone: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.New(db, log)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	tracker := ops.NewTracker(store, cfg.Station.Areas, loc, log)
	engine := analytics.NewEngine(loc, log)
	exporter := exchange.NewExporter(loc, log)
	importer := exchange.NewImporter(tracker, loc, log)

	router := api.NewRouter(tracker, engine, store, exporter, importer, cfg, log)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening",
			logger.String("addr", cfg.Server.Addr()),
			logger.String("db", cfg.Database.Path),
			logger.String("station", cfg.Station.Name),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		log.Info("Shutting down", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
