package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/open-fpl/data/external/fpl"
	"github.com/open-fpl/data/external/supabase"
	"github.com/open-fpl/data/internal/config"
	"github.com/open-fpl/data/internal/domain/picks"
	"github.com/open-fpl/data/internal/infrastructure/repository/postgres"
	"github.com/open-fpl/data/internal/infrastructure/storage/disk"
	"github.com/open-fpl/data/internal/infrastructure/storage/hosted"
	"github.com/open-fpl/data/internal/interfaces/httpapi"
	"github.com/open-fpl/data/internal/platform/cache"
	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/open-fpl/data/internal/usecase"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
)

func NewHTTPServer(cfg config.Config, logger *logging.Logger) (*http.Server, error) {
	client, err := fpl.NewClient(fpl.ClientConfig{
		BaseURL:        cfg.FPLBaseURL,
		UserAgent:      cfg.FPLUserAgent,
		Timeout:        cfg.FPLTimeout,
		Logger:         logger,
		CircuitBreaker: cfg.FPLCircuitBreaker(),
	})
	if err != nil {
		return nil, fmt.Errorf("build fpl client: %w", err)
	}

	var lookups *cache.Store[usecase.PicksLookup]
	if cfg.CacheEnabled {
		lookups = cache.NewStore[usecase.PicksLookup](cfg.CacheTTL, cache.WithMaxEntries(cfg.CacheMaxEntries))
	}

	handler := httpapi.NewHandler(usecase.NewPicksService(client, lookups, logger), logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if server.Addr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	return server, nil
}

// Harvester bundles the harvest use case with the resources it holds open.
type Harvester struct {
	Service *usecase.HarvestService
	Storage config.StorageMode
	closers []func() error
}

func (h *Harvester) Close() error {
	var firstErr error
	for _, closeFn := range h.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewHarvester(cfg config.Config, logger *logging.Logger) (*Harvester, error) {
	// The harvester retries per entry itself, so a breaker would only turn
	// retries into instant failures.
	breaker := cfg.FPLCircuitBreaker()
	breaker.Enabled = false

	client, err := fpl.NewClient(fpl.ClientConfig{
		BaseURL:        cfg.FPLBaseURL,
		UserAgent:      cfg.FPLUserAgent,
		Timeout:        cfg.FPLTimeout,
		Logger:         logger,
		CircuitBreaker: breaker,
	})
	if err != nil {
		return nil, fmt.Errorf("build fpl client: %w", err)
	}

	store, closeStore, err := SelectStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	service, err := usecase.NewHarvestService(client, store, cfg.HarvestConfig(), logger)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("build harvest service: %w", err)
	}

	return &Harvester{
		Service: service,
		Storage: cfg.StorageMode(),
		closers: []func() error{closeStore},
	}, nil
}

// SelectStorage builds the checkpoint backend once, before the harvest loop
// starts. The returned close func releases any database pool it opened.
func SelectStorage(cfg config.Config, logger *logging.Logger) (picks.Store, func() error, error) {
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() error { return nil }

	mode := cfg.StorageMode()
	if mode == config.StorageDisk {
		logger.Info("picks storage selected", "mode", mode, "dir", cfg.PicksOutputDir)
		return disk.NewStore(cfg.PicksOutputDir, logger), noop, nil
	}

	client, err := supabase.NewClient(supabase.ClientConfig{
		BaseURL:   cfg.SupabaseURL,
		SecretKey: cfg.SupabaseSecretKey,
		Bucket:    cfg.SupabaseBucket,
		Table:     cfg.SupabasePicksTable,
		Timeout:   cfg.SupabaseTimeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build supabase client: %w", err)
	}

	var rows hosted.RowWriter = client
	closeFn := noop
	rowWriter := "rest"
	if dbURL := strings.TrimSpace(cfg.SupabaseDBURL); dbURL != "" {
		db, err := openDB(dbURL, cfg.ServiceName)
		if err != nil {
			return nil, nil, err
		}
		repo, err := postgres.NewPicksRepository(db, cfg.SupabasePicksTable)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("build picks repository: %w", err)
		}
		rows = repo
		closeFn = db.Close
		rowWriter = "postgres"
	}

	store, err := hosted.NewStore(rows, client, logger)
	if err != nil {
		_ = closeFn()
		return nil, nil, fmt.Errorf("build hosted store: %w", err)
	}

	logger.Info("picks storage selected",
		"mode", mode,
		"bucket", cfg.SupabaseBucket,
		"table", cfg.SupabasePicksTable,
		"row_writer", rowWriter,
	)
	return store, closeFn, nil
}

func openDB(dbURL, serviceName string) (*sqlx.DB, error) {
	dsn := normalizeDBURL(dbURL, serviceName)
	opts := []otelsql.Option{
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	}
	if name := dbNameFromURL(dsn); name != "" {
		opts = append(opts, otelsql.WithDBName(name))
	}

	db, err := otelsqlx.Open("postgres", dsn, opts...)
	if err != nil {
		return nil, fmt.Errorf("open picks db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	return db, nil
}
