package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/mamage/photo-similarity/internal/config"
	"github.com/mamage/photo-similarity/internal/database"
	_ "github.com/mamage/photo-similarity/internal/database/mariadb"
	_ "github.com/mamage/photo-similarity/internal/database/postgres"
	"github.com/mamage/photo-similarity/internal/extractor"
	"github.com/mamage/photo-similarity/internal/imagesource"
	"github.com/mamage/photo-similarity/internal/logger"
	"github.com/mamage/photo-similarity/internal/metrics"
	"go.uber.org/zap"
)

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    database.Store
	loader   *database.VectorLoader
	registry *extractor.Registry // nil for the remote backend

	mu         sync.Mutex
	extractors map[string]extractor.Extractor
}

// newApp loads configuration and opens the database.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l, err := logger.NewLogger(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	metrics.Register()

	store, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}

	loader, err := database.NewVectorLoader(store, cfg.Database.VectorCacheSize, l)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     l,
		store:      store,
		loader:     loader,
		extractors: make(map[string]extractor.Extractor),
	}
	if cfg.Embedding.Backend != config.BackendRemote {
		a.registry = extractor.NewRegistry(cfg.Embedding.ModelDir, cfg.Models.Models, extractor.ONNXLoader(cfg.Embedding.RuntimeLib))
	}

	l.Info("database ready",
		zap.String("driver", store.Backend()),
		zap.String("embedding_backend", cfg.Embedding.Backend),
	)
	return a, nil
}

// extractor returns the shared extractor for model, building it on first use.
func (a *app) extractor(model string) (extractor.Extractor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ext, ok := a.extractors[model]; ok {
		return ext, nil
	}
	ext, err := extractor.New(a.cfg, a.registry, model, a.logger)
	if err != nil {
		return nil, err
	}
	a.extractors[model] = ext
	return ext, nil
}

// resolver routes photo locations to local disk, HTTP or S3.
func (a *app) resolver(ctx context.Context) (*imagesource.Router, error) {
	st := a.cfg.Storage
	router := &imagesource.Router{
		Local:   imagesource.NewLocalResolver(st.UploadDir),
		HTTP:    imagesource.NewHTTPResolver(st.FetchTimeout, st.FetchRetryMax),
		BaseURL: st.UploadBaseURL,
	}
	if st.S3Bucket != "" || st.S3Endpoint != "" {
		s3, err := imagesource.NewS3Resolver(ctx, imagesource.S3Config{
			Region:         st.S3Region,
			Endpoint:       st.S3Endpoint,
			Bucket:         st.S3Bucket,
			ForcePathStyle: st.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		router.S3 = s3
	}
	return router, nil
}

func (a *app) Close() {
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			a.logger.Warn("failed to release model sessions", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
