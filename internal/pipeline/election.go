package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"geoetl/internal/metrics"
	"geoetl/internal/reader"
	"geoetl/internal/schema"
	"geoetl/internal/table"
	"geoetl/internal/transform"
)

// ElectionParams configures the election stages.
type ElectionParams struct {
	// Dataset is the folder name under each stage directory.
	Dataset string
	// Candidacy names the race ("president", "governor"). It selects
	// the candidacy position filter and, lowercased, the output
	// subdirectory, so runs for different races never overwrite each
	// other.
	Candidacy string
	// Position overrides the candidacy position code when nonzero.
	Position int
	// Candidates are the ballot numbers pivoted into columns.
	Candidates []int
	// Levels are the aggregation levels materialized at interim.
	Levels []string
	// GeocodingAPI selects which locations lookup decorates the
	// processed output (gmaps, osm, ibge) and names the final file.
	GeocodingAPI string
	// Workers bounds the parallel raw-file normalizations.
	Workers int
	// Logger receives stage progress. Nil falls back to slog.Default.
	Logger *slog.Logger
}

func (p ElectionParams) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// position resolves the candidacy position code to filter on.
func (p ElectionParams) position() (int, error) {
	if p.Position != 0 {
		return p.Position, nil
	}
	if pos, ok := schema.CandidacyPositions[p.Candidacy]; ok {
		return pos, nil
	}
	known := make([]string, 0, len(schema.CandidacyPositions))
	for name := range schema.CandidacyPositions {
		known = append(known, name)
	}
	sort.Strings(known)
	return 0, fmt.Errorf("unknown candidacy %q (have: %s)", p.Candidacy, strings.Join(known, ", "))
}

// candidacyDir is the race's directory under a stage's level directory.
func (p ElectionParams) candidacyDir(tree Tree, stage, level string) string {
	return filepath.Join(tree.LevelDir(stage, p.Dataset, level), strings.ToLower(p.Candidacy))
}

// electionRawSpec reads the electoral court's results exports:
// semicolon separated, latin1 in most regions, with one regional
// office's typo'd state column and a fixed set of null markers.
func electionRawSpec() reader.SourceSpec {
	return reader.SourceSpec{
		Encodings:   []string{"utf8", "latin1"},
		Delimiters:  []rune{';', ','},
		KeyColumns:  []string{"SG_UF", "NR_ZONA", "NR_SECAO"},
		TypoFixes:   map[string]string{"SG_ UF": "SG_UF"},
		NASentinels: []string{"#NULO#", "-1", "-3"},
	}
}

// ElectionInterim normalizes every raw results export and writes one
// interim file per source file per aggregation level. Normalization
// filters to the configured candidacy, pivots the long candidate rows
// into per-candidate columns and deduplicates the section key; the
// aggregation then collapses sections to the level's unit. Files are
// independent and processed in parallel.
func ElectionInterim(ctx context.Context, tree Tree, p ElectionParams) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStage(p.Dataset, StageInterim, err, time.Since(start)) }()
	log := p.logger()

	pos, err := p.position()
	if err != nil {
		return err
	}
	levels := make([]Level, len(p.Levels))
	for i, name := range p.Levels {
		if levels[i], err = ElectionLevel(name); err != nil {
			return err
		}
	}

	files, err := listCSVs(tree.StageDir(StageRaw, p.Dataset))
	if err != nil {
		return fmt.Errorf("election interim: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("election interim: no raw files under %s", tree.StageDir(StageRaw, p.Dataset))
	}

	opts := schema.ElectionOptions{Position: pos, Candidates: p.Candidates}
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
			return electionInterimFile(tree, p, file, opts, levels, log)
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}
	metrics.RecordFiles(p.Dataset, StageInterim, int64(len(files)*len(levels)))
	return nil
}

func electionInterimFile(tree Tree, p ElectionParams, file string, opts schema.ElectionOptions, levels []Level, log *slog.Logger) error {
	base := filepath.Base(file)
	t, attempt, err := reader.Read(file, electionRawSpec())
	if err != nil {
		return err
	}
	norm, err := schema.NormalizeResults(t, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", base, err)
	}
	log.Info("normalized results file",
		"file", base, "encoding", attempt.Encoding, "candidacy", p.Candidacy, "sections", norm.NumRows())
	metrics.RecordRows(p.Dataset, "normalized", int64(norm.NumRows()))

	for _, level := range levels {
		agg, err := (transform.Aggregate{Keys: level.Keys}).Apply(norm)
		if err != nil {
			return fmt.Errorf("%s at %s: %w", base, level.Name, err)
		}
		out := filepath.Join(p.candidacyDir(tree, StageInterim, level.Name), base)
		if err := WriteCSVAtomic(out, agg); err != nil {
			return err
		}
		metrics.RecordRows(p.Dataset, "aggregated", int64(agg.NumRows()))
	}
	return nil
}

// ElectionProcessed combines one level's interim files into the final
// artifact: row concatenation, one aggregation pass to collapse units
// split across source files, vote-share derivation, the geocoding
// lookup join, and the drop of geography finer than the level. The
// output is data_<api>.csv in the level's candidacy directory.
func ElectionProcessed(ctx context.Context, tree Tree, p ElectionParams, levelName string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStage(p.Dataset, StageProcessed, err, time.Since(start)) }()
	log := p.logger()

	if p.GeocodingAPI == "" {
		return fmt.Errorf("election processed: no geocoding api configured")
	}
	level, err := ElectionLevel(levelName)
	if err != nil {
		return err
	}
	dir := p.candidacyDir(tree, StageInterim, level.Name)
	files, err := listCSVs(dir)
	if err != nil {
		return fmt.Errorf("election processed: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("election processed: no interim files under %s", dir)
	}

	tables := make([]*table.Table, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tables[i], err = ReadStage(file, schema.FamilyElection); err != nil {
			return err
		}
	}
	data, err := transform.Concat(tables)
	if err != nil {
		return fmt.Errorf("election processed: %w", err)
	}
	if data, err = (transform.Aggregate{Keys: level.Keys}).Apply(data); err != nil {
		return fmt.Errorf("election processed: %w", err)
	}
	metrics.RecordRows(p.Dataset, "merged", int64(data.NumRows()))

	if data, err = (transform.DeriveShares{}).Apply(data); err != nil {
		return fmt.Errorf("election processed: %w", err)
	}

	lookupPath := filepath.Join(
		tree.LevelDir(StageProcessed, "locations", level.Name),
		"locations_"+p.GeocodingAPI+".csv")
	lookup, err := ReadStage(lookupPath, schema.FamilyElection)
	if err != nil {
		return fmt.Errorf("election processed: geocoding lookup: %w", err)
	}
	if data, err = transform.JoinLookup(data, lookup, level.Keys); err != nil {
		return fmt.Errorf("election processed: geocoding lookup: %w", err)
	}

	if data, err = (transform.DropFinerGeo{Rank: level.Rank}).Apply(data); err != nil {
		return fmt.Errorf("election processed: %w", err)
	}

	out := filepath.Join(p.candidacyDir(tree, StageProcessed, level.Name), "data_"+p.GeocodingAPI+".csv")
	if err = WriteCSVAtomic(out, data); err != nil {
		return err
	}
	log.Info("wrote processed election data",
		"level", level.Name, "candidacy", p.Candidacy,
		"rows", data.NumRows(), "cols", data.NumCols(), "file", filepath.Base(out))
	metrics.RecordFiles(p.Dataset, StageProcessed, 1)
	return nil
}
