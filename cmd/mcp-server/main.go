// Package main runs the assessment MCP server over stdio on a local SQLite database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/catalog"
	"github.com/yuanqi-assessment-server/internal/config"
	"github.com/yuanqi-assessment-server/internal/database"
	"github.com/yuanqi-assessment-server/internal/mcp"
	"github.com/yuanqi-assessment-server/internal/repository"
	"github.com/yuanqi-assessment-server/internal/service"
	"github.com/yuanqi-assessment-server/internal/setup"
)

func main() {
	cfg := config.LoadLiteConfig()

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		cli := setup.NewCLI(os.Stdout, cfg.DataDir)
		if err := cli.Run(os.Args[2:]); err != nil {
			os.Stderr.WriteString("Setup failed: " + err.Error() + "\n")
			os.Exit(1)
		}
		return
	}

	// stdout carries the MCP protocol.
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("MCP server failed")
	}
	logger.Info("MCP server stopped")
}

func run(ctx context.Context, cfg *config.LiteConfig, logger *logrus.Logger) error {
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}
	logger.WithField("data_dir", cfg.DataDir).Info("Starting yuanqi assessment MCP server")

	db, err := database.OpenSQLite(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := catalog.NewSQLiteStore(db, logger)
	if err != nil {
		return err
	}
	repo, err := repository.NewSQLiteRepository(db, logger)
	if err != nil {
		return err
	}

	if cfg.CatalogFile != "" {
		if err := seedCatalog(ctx, store, cfg.CatalogFile, logger); err != nil {
			return err
		}
	}

	lookup := catalog.NewCachedLookup(store, logger, catalog.WithMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL))
	server := mcp.NewServer(
		service.NewAssessmentService(repo, lookup, logger),
		service.NewCatalogService(store, lookup),
		mcp.WithCatalogStore(store, cfg.ExportDir()),
		mcp.WithLogger(logger),
	)
	return server.RunStdio(ctx)
}

func seedCatalog(ctx context.Context, store catalog.Store, path string, logger *logrus.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	imported, skipped, err := store.ImportJSON(ctx, file)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"file":     path,
		"imported": imported,
		"skipped":  skipped,
	}).Info("Catalog seeded")
	return nil
}
