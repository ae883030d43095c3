package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"tolatables/internal/api"
	"tolatables/internal/config"
	"tolatables/internal/dsl"
	"tolatables/internal/memstore"
	"tolatables/internal/metrics"
	"tolatables/internal/pg"
	"tolatables/internal/reference"
	"tolatables/internal/silo"
	"tolatables/internal/source"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func main() {
	cfg, err := config.Load("config.json", os.Args[1:])
	if err != nil {
		panic(err)
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// 1. Хранилище: Postgres или память
	var store silo.Store
	if cfg.DBURL != "" {
		db, err := pg.Open(cfg.DBURL)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		ps, err := pg.New(db, log)
		if err != nil {
			log.Fatal("Failed to init postgres store", zap.Error(err))
		}
		if cfg.AutoMigrate {
			if err := ps.Migrate(ctx); err != nil {
				log.Fatal("Failed to migrate schema", zap.Error(err))
			}
		}
		store = ps
	} else {
		log.Info("Using in-memory store")
		store = memstore.New()
	}

	// 2. Движок с метриками
	rec := metrics.New()
	eng := silo.NewEngine(store, silo.WithLogger(log), silo.WithObserver(rec))

	// 3. Декларации таблиц
	decls, err := dsl.LoadAllTables(cfg.TablesDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Failed to load table declarations", zap.String("dir", cfg.TablesDir), zap.Error(err))
	}
	created, err := dsl.Seed(ctx, eng, decls, cfg.Owner, log)
	if err != nil {
		log.Fatal("Failed to create declared tables", zap.Error(err))
	}
	log.Info("Table declarations loaded", zap.Int("declared", len(decls)), zap.Int("created", created))

	// 4. Источники
	sources, err := reference.LoadSources(cfg.SourcesDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Failed to load sources", zap.String("dir", cfg.SourcesDir), zap.Error(err))
	}
	log.Info("Sources loaded", zap.Int("count", len(sources)))

	fetcher := source.NewFetcher(source.FetchConfig{
		Timeout:     cfg.FetchTimeout,
		MaxRetries:  cfg.FetchRetries,
		Concurrency: cfg.FetchConcurrency,
	}, log)

	var blob api.BlobStore
	if cfg.UploadsDir != "" {
		blob = &api.LocalBlobStore{Root: cfg.UploadsDir}
	}

	// 5. REST API
	srv := api.NewServer(api.Options{
		Engine:     eng,
		Fetcher:    fetcher,
		Sources:    sources,
		Blob:       blob,
		Metrics:    rec.Handler(),
		Log:        log,
		Owner:      cfg.Owner,
		TablesDir:  cfg.TablesDir,
		SourcesDir: cfg.SourcesDir,
	})
	log.Info("Starting TolaTables server", zap.String("port", cfg.Port))
	if err := api.RunServer(":"+cfg.Port, srv); err != nil {
		log.Fatal("Server stopped", zap.Error(err))
	}
}
