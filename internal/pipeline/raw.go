package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"geoetl/internal/fetch"
	"geoetl/internal/metrics"
)

// RawParams configures the raw stage of one dataset family. The flow
// is the same for every family: the publisher's index page advertises
// zip archives, each archive carries tabular files.
type RawParams struct {
	// Dataset is the folder name under the raw stage directory.
	Dataset string
	// URL is the index page scraped for archive links.
	URL string
	// Client performs the downloads. Nil falls back to a default
	// client.
	Client *fetch.Client
	// Workers bounds the parallel downloads. Zero means one at a time.
	Workers int
	// Logger receives stage progress. Nil falls back to slog.Default.
	Logger *slog.Logger
}

func (p RawParams) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p RawParams) client() *fetch.Client {
	if p.Client != nil {
		return p.Client
	}
	return fetch.NewClient(fetch.Config{MaxRetries: 3})
}

// Raw populates the raw stage directory of one dataset: it scrapes the
// index page for zip links, downloads the archives in parallel, then
// extracts their tabular members flat into the stage directory and
// removes the archives. A non-empty stage directory is left untouched,
// so a finished or hand-curated download is never clobbered; clear the
// directory to force a refresh.
func Raw(ctx context.Context, tree Tree, p RawParams) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStage(p.Dataset, StageRaw, err, time.Since(start)) }()
	log := p.logger()

	dir := tree.StageDir(StageRaw, p.Dataset)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("raw %s: %w", p.Dataset, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("raw %s: %w", p.Dataset, err)
	}
	if len(entries) > 0 {
		log.Warn("raw directory not empty; skipping download",
			"dataset", p.Dataset, "dir", dir, "entries", len(entries))
		return nil
	}

	client := p.client()
	links, err := client.ZipLinks(ctx, p.URL)
	if err != nil {
		return fmt.Errorf("raw %s: %w", p.Dataset, err)
	}
	if len(links) == 0 {
		return fmt.Errorf("raw %s: no zip links at %s; check the url parameter", p.Dataset, p.URL)
	}

	// Distinct links can share an archive name on sharded mirrors;
	// keep the first so concurrent downloads never race on one path.
	seen := make(map[string]bool, len(links))
	var archives []string
	for _, link := range links {
		name := fetch.ArchiveName(link)
		if seen[name] {
			log.Warn("duplicate archive name; keeping first link", "archive", name, "url", link)
			continue
		}
		seen[name] = true
		archives = append(archives, link)
	}

	log.Info("downloading raw archives", "dataset", p.Dataset, "count", len(archives), "dir", dir)

	zips := make([]string, len(archives))
	g, gctx := errgroup.WithContext(ctx)
	if p.Workers > 1 {
		g.SetLimit(p.Workers)
	} else {
		g.SetLimit(1)
	}
	for i, link := range archives {
		i, link := i, link
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			dest := filepath.Join(dir, fetch.ArchiveName(link))
			n, err := client.Download(gctx, link, dest)
			if err != nil {
				return fmt.Errorf("raw %s: %w", p.Dataset, err)
			}
			log.Debug("downloaded archive", "archive", filepath.Base(dest), "bytes", n)
			zips[i] = dest
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	// Extraction is sequential: archives may repeat member names, and
	// the last writer must be deterministic.
	for _, zipPath := range zips {
		names, err := fetch.UnzipCSVs(zipPath, dir)
		if err != nil {
			return fmt.Errorf("raw %s: %w", p.Dataset, err)
		}
		if err := os.Remove(zipPath); err != nil {
			return fmt.Errorf("raw %s: %w", p.Dataset, err)
		}
		metrics.RecordFiles(p.Dataset, StageRaw, int64(len(names)))
		log.Info("extracted archive", "archive", filepath.Base(zipPath), "files", len(names))
	}
	return nil
}
