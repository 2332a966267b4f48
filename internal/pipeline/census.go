package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"geoetl/internal/metrics"
	"geoetl/internal/reader"
	"geoetl/internal/schema"
	"geoetl/internal/table"
	"geoetl/internal/transform"
)

// CensusParams configures the census stages.
type CensusParams struct {
	// Dataset is the folder name under each stage directory.
	Dataset string
	// Levels are the aggregation levels materialized at interim.
	Levels []string
	// NAThreshold is the percentage of present cells a row or column
	// must keep to survive the processed-stage sparsity drop.
	NAThreshold float64
	// GlobalThreshold is the saturation cutoff applied to the no-global
	// variant after ratio normalization.
	GlobalThreshold float64
	// Workers bounds the parallel raw-file normalizations. Zero means
	// one file at a time.
	Workers int
	// Logger receives stage progress. Nil falls back to slog.Default.
	Logger *slog.Logger
}

func (p CensusParams) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// censusRawSpec reads the statistics institute extracts: semicolons and
// legacy encodings are common, suppressed cells arrive as "X", and only
// the tract id is guaranteed.
func censusRawSpec() reader.SourceSpec {
	return reader.SourceSpec{
		Encodings:   []string{"utf8", "latin1", "cp1252"},
		Delimiters:  []rune{';', ','},
		KeyColumns:  []string{"Cod_setor"},
		NASentinels: []string{"X"},
	}
}

// CensusInterim normalizes every raw census file and writes one interim
// file per source file per aggregation level. Each measure table is
// joined with the basic table's geographic hierarchy on the tract id, so
// every interim file carries the key columns of every level. Files are
// independent and processed in parallel.
func CensusInterim(ctx context.Context, tree Tree, p CensusParams) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStage(p.Dataset, StageInterim, err, time.Since(start)) }()
	log := p.logger()

	// Resolve levels before touching any file.
	levels := make([]Level, len(p.Levels))
	for i, name := range p.Levels {
		if levels[i], err = CensusLevel(name); err != nil {
			return err
		}
	}

	files, err := listCSVs(tree.StageDir(StageRaw, p.Dataset))
	if err != nil {
		return fmt.Errorf("census interim: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("census interim: no raw files under %s", tree.StageDir(StageRaw, p.Dataset))
	}

	geo, err := censusGeoLookup(files, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.Workers > 1 {
		g.SetLimit(p.Workers)
	} else {
		g.SetLimit(1)
	}
	for _, file := range files {
		file := file
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return censusInterimFile(tree, p, file, geo, levels, log)
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}
	metrics.RecordFiles(p.Dataset, StageInterim, int64(len(files)*len(levels)))
	return nil
}

// censusGeoLookup loads the basic table and keeps its geographic
// columns as the hierarchy lookup for the measure tables. A dataset
// without a basic table can still aggregate at tract level, so its
// absence is only logged.
func censusGeoLookup(files []string, log *slog.Logger) (*table.Table, error) {
	for _, file := range files {
		if schema.SourceTag(file) != schema.SubsetBasic {
			continue
		}
		t, attempt, err := reader.Read(file, censusRawSpec())
		if err != nil {
			return nil, err
		}
		log.Debug("read basic table", "file", filepath.Base(file), "attempt", attempt.String())
		norm, err := schema.NormalizeCensus(t, filepath.Base(file))
		if err != nil {
			return nil, err
		}
		table.InferKinds(norm)
		var geoCols []string
		for i := 0; i < norm.NumCols(); i++ {
			if c := norm.ColAt(i); c.Meta.Tag == table.TagGeo {
				geoCols = append(geoCols, c.Name)
			}
		}
		return norm.Select(geoCols)
	}
	log.Warn("no basic table among raw census files; only tract-level keys available")
	return nil, nil
}

func censusInterimFile(tree Tree, p CensusParams, file string, geo *table.Table, levels []Level, log *slog.Logger) error {
	base := filepath.Base(file)
	t, attempt, err := reader.Read(file, censusRawSpec())
	if err != nil {
		return err
	}
	norm, err := schema.NormalizeCensus(t, base)
	if err != nil {
		return err
	}
	table.InferKinds(norm)
	if geo != nil && schema.SourceTag(base) != schema.SubsetBasic {
		if norm, err = transform.JoinLookup(norm, geo, []string{schema.ColCensusTract}); err != nil {
			return fmt.Errorf("%s: %w", base, err)
		}
	}
	// Repeated tract rows would double count after aggregation.
	if norm, err = (transform.Dedup{Keys: []string{schema.ColCensusTract}}).Apply(norm); err != nil {
		return fmt.Errorf("%s: %w", base, err)
	}
	log.Info("normalized census file",
		"file", base, "encoding", attempt.Encoding, "rows", norm.NumRows())

	for _, level := range levels {
		agg, err := (transform.Aggregate{Keys: level.Keys}).Apply(norm)
		if err != nil {
			return fmt.Errorf("%s at %s: %w", base, level.Name, err)
		}
		out := filepath.Join(tree.LevelDir(StageInterim, p.Dataset, level.Name), base)
		if err := WriteCSVAtomic(out, agg); err != nil {
			return err
		}
		metrics.RecordRows(p.Dataset, "aggregated", int64(agg.NumRows()))
	}
	return nil
}

// CensusProcessed merges one level's interim files into the final
// artifacts: an outer join across files, sparsity dropping, group ratio
// normalization, and then both output variants. The with-global variant
// min-max rescales the dataset-wide reference columns; the no-global
// variant drops them and additionally prunes saturated columns.
func CensusProcessed(ctx context.Context, tree Tree, p CensusParams, levelName string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStage(p.Dataset, StageProcessed, err, time.Since(start)) }()
	log := p.logger()

	level, err := CensusLevel(levelName)
	if err != nil {
		return err
	}
	dir := tree.LevelDir(StageInterim, p.Dataset, level.Name)
	files, err := listCSVs(dir)
	if err != nil {
		return fmt.Errorf("census processed: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("census processed: no interim files under %s", dir)
	}

	// 1) Merge in filename order so first-wins stays reproducible.
	tables := make([]*table.Table, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tables[i], err = ReadStage(file, schema.FamilyCensus); err != nil {
			return err
		}
	}
	merged, err := transform.Merge(tables, level.Keys)
	if err != nil {
		return fmt.Errorf("census processed: %w", err)
	}
	log.Info("merged interim files",
		"level", level.Name, "files", len(files), "rows", merged.NumRows(), "cols", merged.NumCols())
	metrics.RecordRows(p.Dataset, "merged", int64(merged.NumRows()))

	// 2) Sparsity drop, then group ratio normalization.
	merged, err = transform.DropSparse{Percent: p.NAThreshold}.Apply(merged)
	if err != nil {
		return err
	}
	for _, group := range schema.ClassifyCensus(merged) {
		if len(group.Cols) == 0 {
			continue
		}
		if merged, err = (transform.DivideBy{Cols: group.Cols, Total: group.Total}).Apply(merged); err != nil {
			return fmt.Errorf("census processed: group %s: %w", group.Name, err)
		}
	}

	// 3) Two variants from the same normalized table.
	globals := schema.GlobalCols(merged)

	withGlobal, err := transform.MinMax{Cols: globals}.Apply(merged)
	if err != nil {
		return err
	}
	if withGlobal, err = finishCensusVariant(withGlobal, level); err != nil {
		return err
	}
	if err = WriteCSVAtomic(filepath.Join(tree.LevelDir(StageProcessed, p.Dataset, level.Name), "data_with_global.csv"), withGlobal); err != nil {
		return err
	}

	noGlobal := merged.Clone()
	noGlobal.Drop(globals...)
	if noGlobal, err = (transform.PruneSaturated{Threshold: p.GlobalThreshold}).Apply(noGlobal); err != nil {
		return err
	}
	if noGlobal, err = finishCensusVariant(noGlobal, level); err != nil {
		return err
	}
	if err = WriteCSVAtomic(filepath.Join(tree.LevelDir(StageProcessed, p.Dataset, level.Name), "data_no_global.csv"), noGlobal); err != nil {
		return err
	}

	log.Info("wrote processed census data",
		"level", level.Name,
		"with_global_cols", withGlobal.NumCols(),
		"no_global_cols", noGlobal.NumCols())
	metrics.RecordFiles(p.Dataset, StageProcessed, 2)
	return nil
}

func finishCensusVariant(t *table.Table, level Level) (*table.Table, error) {
	out, err := transform.PruneDuplicateCols{}.Apply(t)
	if err != nil {
		return nil, err
	}
	return transform.DropFinerGeo{Rank: level.Rank}.Apply(out)
}
