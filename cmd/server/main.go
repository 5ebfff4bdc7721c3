package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/api"
	"github.com/yuanqi-assessment-server/internal/catalog"
	"github.com/yuanqi-assessment-server/internal/config"
	"github.com/yuanqi-assessment-server/internal/database"
	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/internal/metrics"
	"github.com/yuanqi-assessment-server/internal/repository"
	"github.com/yuanqi-assessment-server/internal/service"
	"github.com/yuanqi-assessment-server/pkg/external"
)

var version = "dev"

const usage = `Usage:
  server [serve]               run the HTTP service
  server import-catalog <file> import a symptom catalog JSON document
  server migrate up|down       run postgres migrations
`

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := configManager.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(configManager.GetConfig().Logging, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, configManager, logger)
	case "import-catalog":
		if len(args) != 1 {
			err = errors.New("import-catalog needs exactly one file")
			break
		}
		err = importCatalog(ctx, configManager, logger, args[0])
	case "migrate":
		if len(args) != 1 {
			err = errors.New("migrate needs up or down")
			break
		}
		err = migrate(ctx, configManager, logger, args[0])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		logger.WithError(err).WithField("command", cmd).Fatal("Command failed")
	}
}

// storage bundles the assessment repository and catalog store of one backend.
type storage struct {
	repo  domain.AssessmentRepository
	store catalog.Store
}

func (s *storage) Close() {
	if s.store != nil {
		s.store.Close()
	}
	if s.repo != nil {
		s.repo.Close()
	}
}

func openStorage(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger) (*storage, error) {
	storageCfg := configManager.GetStorageConfig()

	switch storageCfg.Driver {
	case domain.DriverPostgres:
		dbCfg := configManager.GetDatabaseConfig()
		if dbCfg.MigrateOnStart {
			if err := runMigrations(ctx, configManager.GetDatabaseConnectionString(), logger, "up"); err != nil {
				return nil, err
			}
		}

		db, err := database.NewConnection(ctx, database.ConfigFromDomain(*dbCfg), logger)
		if err != nil {
			return nil, err
		}
		store, err := catalog.NewPostgresStoreFromURL(configManager.GetDatabaseConnectionString(), logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &storage{repo: repository.NewPostgresRepository(db.Pool, logger), store: store}, nil

	default:
		db, err := database.OpenSQLite(storageCfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store, err := catalog.NewSQLiteStore(db, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		repo, err := repository.NewSQLiteRepository(db, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.WithField("path", storageCfg.SQLitePath).Info("Using SQLite storage")
		return &storage{repo: repo, store: store}, nil
	}
}

// newLookup builds the cached catalog lookup from the cache and catalog sections.
// The redis tier is only enabled when a redis URL is configured and reachable.
func newLookup(cfg *domain.Config, store catalog.Store, logger *logrus.Logger) (*catalog.CachedLookup, func()) {
	breakerCfg := external.DefaultCircuitBreakerConfig("symptom-catalog")
	if cfg.Catalog.BreakerRequests > 0 {
		breakerCfg.MaxRequests = cfg.Catalog.BreakerRequests
	}
	if cfg.Catalog.BreakerInterval > 0 {
		breakerCfg.Interval = cfg.Catalog.BreakerInterval
	}
	if cfg.Catalog.BreakerTimeout > 0 {
		breakerCfg.Timeout = cfg.Catalog.BreakerTimeout
	}
	breakerCfg.IsSuccessful = func(err error) bool { return errors.Is(err, domain.ErrNotFound) }

	opts := []catalog.LookupOption{
		catalog.WithMemoryCache(cfg.Cache.MemorySize, 0),
		catalog.WithConcurrency(cfg.Catalog.LookupConcurrency),
		catalog.WithBreaker(external.NewCircuitBreaker(breakerCfg, logger)),
	}

	cleanup := func() {}
	if cfg.Cache.RedisURL != "" {
		cache, err := external.NewCacheClient(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, catalog lookups use the memory cache only")
		} else {
			opts = append(opts, catalog.WithRedisCache(cache, cfg.Cache.DefaultTTL))
			cleanup = func() { cache.Close() }
			logger.Info("Catalog redis cache enabled")
		}
	}

	return catalog.NewCachedLookup(store, logger, opts...), cleanup
}

func serve(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	st, err := openStorage(ctx, configManager, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.Close()

	if cfg.Catalog.ImportPath != "" {
		if err := importFile(ctx, st.store, cfg.Catalog.ImportPath, logger); err != nil {
			return err
		}
	}

	lookup, closeCache := newLookup(cfg, st.store, logger)
	defer closeCache()

	m := metrics.New()
	hub := api.NewEventHub(logger, m.SetSubscribers)

	assessments := service.NewAssessmentService(st.repo, lookup, logger,
		service.WithEventPublisher(hub),
		service.WithMetrics(m),
	)
	catalogSvc := service.NewCatalogService(st.store, lookup)

	server := api.NewServer(configManager, assessments, catalogSvc, logger,
		api.WithEventHub(hub),
		api.WithMetrics(m),
		api.WithVersion(version),
	)

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"driver":  cfg.Storage.Driver,
		"version": version,
	}).Info("Starting yuanqi assessment server")

	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func importCatalog(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger, path string) error {
	st, err := openStorage(ctx, configManager, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.Close()
	return importFile(ctx, st.store, path, logger)
}

func importFile(ctx context.Context, store catalog.Store, path string, logger *logrus.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening catalog file: %w", err)
	}
	defer file.Close()

	imported, skipped, err := store.ImportJSON(ctx, file)
	if err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}
	logger.WithFields(logrus.Fields{
		"file":     path,
		"imported": imported,
		"skipped":  skipped,
	}).Info("Catalog imported")
	return nil
}

func migrate(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger, direction string) error {
	if configManager.GetStorageConfig().Driver != domain.DriverPostgres {
		return errors.New("migrations apply to the postgres driver only; sqlite creates its schema on open")
	}
	return runMigrations(ctx, configManager.GetDatabaseConnectionString(), logger, direction)
}

func runMigrations(ctx context.Context, databaseURL string, logger *logrus.Logger, direction string) error {
	runner, err := database.NewMigrationRunner(databaseURL, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	switch direction {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
}
