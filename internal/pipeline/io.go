package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"geoetl/internal/reader"
	"geoetl/internal/schema"
	"geoetl/internal/table"
)

// WriteCSVAtomic materializes a table at path via a temp file in the
// same directory and a rename, so an aborted run never leaves a partial
// artifact behind.
func WriteCSVAtomic(path string, t *table.Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	w := csv.NewWriter(f)
	if err := w.Write(t.Names()); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	row := make([]string, t.NumCols())
	for r := 0; r < t.NumRows(); r++ {
		for i := range row {
			row[i] = t.ColAt(i).Cell(r)
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// interimSpec reads back our own interim artifacts: always UTF-8 and
// comma separated, no key requirements.
func interimSpec() reader.SourceSpec {
	return reader.SourceSpec{
		Encodings:  []string{"utf8"},
		Delimiters: []rune{','},
	}
}

// ReadStage loads one previously materialized file and restores the
// column metadata its names encode.
func ReadStage(path string, family schema.Family) (*table.Table, error) {
	t, _, err := reader.Read(path, interimSpec())
	if err != nil {
		return nil, err
	}
	table.InferKinds(t)
	schema.AttachCanonical(t, family)
	return t, nil
}

// listCSVs returns the .csv files directly under dir, sorted by name.
// The processed stage's first-wins merge depends on this order being
// stable.
func listCSVs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
