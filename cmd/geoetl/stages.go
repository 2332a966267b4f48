package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"geoetl/internal/config"
	"geoetl/internal/metrics"
	"geoetl/internal/metrics/prompush"
	"geoetl/internal/pipeline"
	"geoetl/internal/storage"
	"geoetl/internal/storage/postgres"
	"geoetl/internal/storage/sqlite"
)

// runStages executes the enabled stages of both dataset families. The
// families run sequentially; parallelism lives inside the stages, where
// independent files are transformed concurrently.
func runStages(ctx context.Context, cfg config.Config, sw config.Switchers, repo storage.Repository, log *slog.Logger) error {
	if err := runCensus(ctx, cfg, sw["census"], repo, log); err != nil {
		return err
	}
	return runElections(ctx, cfg, sw["elections"], repo, log)
}

func runCensus(ctx context.Context, cfg config.Config, sw config.StageSwitch, repo storage.Repository, log *slog.Logger) error {
	if !sw.Raw && !sw.Interim && !sw.Processed {
		log.Info("all stages disabled; skipping", "dataset", cfg.Census.Dataset)
		return nil
	}

	tree := pipeline.Tree{
		Root:   cfg.Global.RootPath,
		Region: cfg.Global.Region,
		Org:    cfg.Census.Org,
		Year:   cfg.Census.Year,
	}
	p := pipeline.CensusParams{
		Dataset:         cfg.Census.Dataset,
		Levels:          cfg.Census.Levels,
		NAThreshold:     cfg.Census.NAThreshold,
		GlobalThreshold: cfg.Census.GlobalThreshold,
		Workers:         cfg.Runtime.Workers,
		Logger:          log,
	}

	if sw.Raw {
		rp := pipeline.RawParams{
			Dataset: cfg.Census.Dataset,
			URL:     cfg.Census.URL,
			Workers: cfg.Runtime.Workers,
			Logger:  log,
		}
		if err := pipeline.Raw(ctx, tree, rp); err != nil {
			return err
		}
	}
	if sw.Interim {
		if err := pipeline.CensusInterim(ctx, tree, p); err != nil {
			return err
		}
	}
	if sw.Processed {
		for _, level := range cfg.Census.Levels {
			if err := pipeline.CensusProcessed(ctx, tree, p, level); err != nil {
				return err
			}
		}
		if repo != nil {
			if err := pipeline.ExportCensus(ctx, tree, repo, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func runElections(ctx context.Context, cfg config.Config, sw config.StageSwitch, repo storage.Repository, log *slog.Logger) error {
	if !sw.Raw && !sw.Interim && !sw.Processed {
		log.Info("all stages disabled; skipping", "dataset", cfg.Elections.Dataset)
		return nil
	}

	tree := pipeline.Tree{
		Root:   cfg.Global.RootPath,
		Region: cfg.Global.Region,
		Org:    cfg.Elections.Org,
		Year:   cfg.Elections.Year,
	}
	p := pipeline.ElectionParams{
		Dataset:      cfg.Elections.Dataset,
		Candidacy:    cfg.Elections.Candidacy,
		Position:     cfg.Elections.Position,
		Candidates:   cfg.Elections.Candidates,
		Levels:       cfg.Elections.Levels,
		GeocodingAPI: cfg.Elections.GeocodingAPI,
		Workers:      cfg.Runtime.Workers,
		Logger:       log,
	}

	if sw.Raw {
		rp := pipeline.RawParams{
			Dataset: cfg.Elections.Dataset,
			URL:     cfg.Elections.URL,
			Workers: cfg.Runtime.Workers,
			Logger:  log,
		}
		if err := pipeline.Raw(ctx, tree, rp); err != nil {
			return err
		}
	}
	if sw.Interim {
		if err := pipeline.ElectionInterim(ctx, tree, p); err != nil {
			return err
		}
	}
	if sw.Processed {
		for _, level := range cfg.Elections.Levels {
			if err := pipeline.ElectionProcessed(ctx, tree, p, level); err != nil {
				return err
			}
		}
		if repo != nil {
			if err := pipeline.ExportElections(ctx, tree, repo, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// openRepository constructs the configured export sink. Kind "none"
// returns a nil repository, which skips the export step entirely.
func openRepository(ctx context.Context, exp config.Export) (storage.Repository, error) {
	switch exp.Kind {
	case "", "none":
		return nil, nil
	case "sqlite":
		return sqlite.New(ctx, sqlite.Config{
			Path:     exp.Options.String("path", ""),
			Truncate: exp.Options.Bool("truncate", false),
		})
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:      exp.Options.String("dsn", ""),
			Truncate: exp.Options.Bool("truncate", false),
		})
	default:
		return nil, fmt.Errorf("unsupported export.kind=%s", exp.Kind)
	}
}

// setupMetrics installs the configured metrics backend and returns the
// flush to run once the stages finish. An unavailable backend degrades
// to the no-op default rather than failing the run.
func setupMetrics(m config.Metrics, log *slog.Logger) func() {
	switch m.Kind {
	case "", "none":
		return func() {}
	case "prompush":
		b, err := prompush.New(prompush.Config{
			Gateway: m.Options.String("push_gateway", ""),
			Job:     m.Options.String("job", ""),
			Timeout: time.Duration(m.Options.Int("timeout_seconds", 0)) * time.Second,
		})
		if err != nil {
			log.Warn("metrics backend unavailable; continuing without metrics", "error", err)
			return func() {}
		}
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics flush failed", "error", err)
			}
		}
	default:
		log.Warn("unknown metrics kind; metrics disabled", "kind", m.Kind)
		return func() {}
	}
}
