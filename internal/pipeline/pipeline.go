// Package pipeline sequences the raw -> interim -> processed stages of
// the dataset folder tree. Each stage reads only the previous stage's
// materialized output: raw files are normalized and aggregated into one
// interim file per source file per level, and the processed stage merges
// the interim files of one level into the final artifacts. Stage
// functions are pure with respect to their inputs; the folder tree is
// the only shared resource, and every location is derived from an
// explicit Tree value rather than tracked in mutable state.
package pipeline

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Pipeline stages, in order.
const (
	StageRaw       = "raw"
	StageInterim   = "interim"
	StageProcessed = "processed"
)

// Tree locates a dataset inside the folder layout:
// <root>/<region>/<org>/<year>/<stage>/<dataset>/<level?>/<file>.
type Tree struct {
	Root   string
	Region string
	Org    string
	Year   string
}

// StageDir is the directory of one dataset at one stage.
func (t Tree) StageDir(stage, dataset string) string {
	return filepath.Join(t.Root, t.Region, t.Org, t.Year, stage, dataset)
}

// LevelDir is the per-aggregation-level directory under a stage.
func (t Tree) LevelDir(stage, dataset, level string) string {
	return filepath.Join(t.StageDir(stage, dataset), level)
}

// UnknownAggregationLevelError reports a requested level missing from a
// family's hierarchy. Raised before any file I/O so a typo in the
// configuration cannot waste a long run.
type UnknownAggregationLevelError struct {
	Family string
	Level  string
	Known  []string
}

func (e *UnknownAggregationLevelError) Error() string {
	known := append([]string(nil), e.Known...)
	sort.Strings(known)
	return fmt.Sprintf("unknown %s aggregation level %q (have: %s)",
		e.Family, e.Level, strings.Join(known, ", "))
}
