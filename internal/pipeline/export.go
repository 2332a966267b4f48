package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"geoetl/internal/metrics"
	"geoetl/internal/schema"
	"geoetl/internal/storage"
)

// Census processed variants, by artifact file stem.
var censusVariants = []string{"with_global", "no_global"}

// ExportCensus copies the processed census artifacts of every level
// into the sink. Each artifact lands in its own table named after
// dataset, level, and variant.
func ExportCensus(ctx context.Context, tree Tree, repo storage.Repository, p CensusParams) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStage(p.Dataset, "export", err, time.Since(start)) }()
	log := p.logger()

	for _, name := range p.Levels {
		level, err := CensusLevel(name)
		if err != nil {
			return err
		}
		dir := tree.LevelDir(StageProcessed, p.Dataset, level.Name)
		for _, variant := range censusVariants {
			path := filepath.Join(dir, "data_"+variant+".csv")
			if err := exportArtifact(ctx, repo, path, schema.FamilyCensus,
				storage.TableName(p.Dataset, level.Name, variant), p.Dataset, log); err != nil {
				return fmt.Errorf("export census: %w", err)
			}
		}
	}
	return nil
}

// ExportElections copies the processed election artifact of every
// level into the sink. The candidacy and geocoding api are part of the
// table name for the same reason they are part of the folder layout:
// runs for different races must not overwrite each other.
func ExportElections(ctx context.Context, tree Tree, repo storage.Repository, p ElectionParams) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStage(p.Dataset, "export", err, time.Since(start)) }()
	log := p.logger()

	for _, name := range p.Levels {
		level, err := ElectionLevel(name)
		if err != nil {
			return err
		}
		path := filepath.Join(p.candidacyDir(tree, StageProcessed, level.Name), "data_"+p.GeocodingAPI+".csv")
		if err := exportArtifact(ctx, repo, path, schema.FamilyElection,
			storage.TableName(p.Dataset, level.Name, p.Candidacy, p.GeocodingAPI), p.Dataset, log); err != nil {
			return fmt.Errorf("export elections: %w", err)
		}
	}
	return nil
}

// exportArtifact reads one processed artifact and bulk-inserts it.
func exportArtifact(ctx context.Context, repo storage.Repository, path string, family schema.Family, tableName, dataset string, log *slog.Logger) error {
	t, err := ReadStage(path, family)
	if err != nil {
		return err
	}
	if err := repo.EnsureTable(ctx, tableName, t); err != nil {
		return err
	}
	n, err := repo.InsertTable(ctx, tableName, t)
	if err != nil {
		return err
	}
	metrics.RecordRows(dataset, "exported", n)
	log.Info("exported artifact", "table", tableName, "rows", n, "source", filepath.Base(path))
	return nil
}
