package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/antoniostano/prefview/internal/annotations"
	"github.com/antoniostano/prefview/internal/config"
	"github.com/antoniostano/prefview/internal/dataset"
	"github.com/antoniostano/prefview/internal/httpapi"
	"github.com/antoniostano/prefview/internal/observability"
	"github.com/antoniostano/prefview/internal/textdiff"
	"github.com/antoniostano/prefview/internal/viewer"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Viewer     *viewer.Service
	Dataset    *dataset.Dataset
	Repository annotations.Repository
	Metrics    *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB pool).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.MetricsNamespace, registry)

	data, err := dataset.Open(ctx, dataset.Source{
		Path:     cfg.DatasetPath,
		URL:      cfg.DatasetURL,
		CacheDir: cfg.DatasetCacheDir,
		Fetch: dataset.FetchOptions{
			Timeout: cfg.DatasetFetchTimeout,
			Retries: cfg.DatasetFetchRetries,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("dataset load failed: %w", err)
	}
	metrics.DatasetRecords.Set(float64(data.Len()))
	logger.Info().Int("records", data.Len()).Int("sources", len(data.Sources())).Msg("dataset loaded")

	repo, err := annotations.NewRepository(ctx, annotations.Options{
		Backend:     cfg.AnnotationBackend,
		Path:        cfg.AnnotationPath,
		DatabaseURL: cfg.DatabaseURL,
		Document:    cfg.AnnotationDocument,
	})
	if err != nil {
		return nil, fmt.Errorf("annotation store init failed: %w", err)
	}
	logger.Info().Str("backend", repo.Mode()).Msg("annotation store ready")

	// Surface a corrupt store at startup; requests still fail until it is fixed.
	if _, err := repo.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("annotation store is not readable")
	}

	diff, err := textdiff.NewHighlighter(cfg.DiffCacheSize, metrics.ObserveDiffCache)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("diff cache init failed: %w", err)
	}

	svc := viewer.New(data, repo, diff, viewer.Options{
		DefaultUsername: cfg.DefaultUsername,
		ContextLines:    cfg.DiffContextLines,
		Metrics:         metrics,
		Logger:          logger.With().Str("component", "viewer").Logger(),
	})
	api := httpapi.New(cfg, svc, metrics, logger.With().Str("component", "http").Logger())

	cleanup := func() error {
		var errs []string
		if err := repo.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Viewer:     svc,
		Dataset:    data,
		Repository: repo,
		Metrics:    metrics,
		Cleanup:    cleanup,
	}, nil
}
