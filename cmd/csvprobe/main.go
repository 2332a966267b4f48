// Command csvprobe inspects a raw source file before it is wired into a
// run: it reports which encoding and delimiter the reader settles on,
// the inferred column kinds, per-column missing counts, and a small row
// sample, so na thresholds and key columns can be chosen from evidence
// instead of guesswork. With --family it also previews the canonical
// rename, marking the columns normalization would drop.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"
	"github.com/zeebo/xxh3"

	"geoetl/internal/reader"
	"geoetl/internal/schema"
	"geoetl/internal/table"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	encodingsFlag := flag.StringSlice("encodings", []string{"utf8", "latin1", "cp1252"}, "candidate encodings, tried in order")
	delimitersFlag := flag.String("delimiters", ";,", "candidate field delimiters, tried in order")
	keysFlag := flag.StringSlice("key", nil, "column a successful parse must contain (repeatable)")
	naFlag := flag.StringSlice("na", nil, "cell value treated as missing (repeatable)")
	familyFlag := flag.String("family", "", "preview the canonical rename for a dataset family (census, election)")
	sampleFlag := flag.Int("sample", 3, "data rows to include in the report, 0 to omit")
	jsonFlag := flag.Bool("json", false, "emit the report as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		return fmt.Errorf("usage: csvprobe [flags] <file>")
	}

	spec := reader.SourceSpec{
		Encodings:   *encodingsFlag,
		Delimiters:  []rune(*delimitersFlag),
		KeyColumns:  *keysFlag,
		NASentinels: *naFlag,
	}

	rep, err := probeFile(flag.Arg(0), spec, *familyFlag, *sampleFlag)
	if err != nil {
		return err
	}

	if *jsonFlag {
		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	renderText(os.Stdout, rep)
	return nil
}

// report is the probe result for one file. Layout fingerprints the
// header set, so two archives sharing it will normalize identically.
type report struct {
	File      string     `json:"file"`
	Encoding  string     `json:"encoding"`
	Delimiter string     `json:"delimiter"`
	Family    string     `json:"family,omitempty"`
	Layout    string     `json:"layout"`
	Rows      int        `json:"rows"`
	Columns   []column   `json:"columns"`
	Sample    [][]string `json:"sample,omitempty"`
}

type column struct {
	Name      string `json:"name"`
	Canonical string `json:"canonical,omitempty"`
	Kind      string `json:"kind"`
	Missing   int    `json:"missing"`
}

// probeFile reads the file exactly the way a pipeline stage would and
// summarizes what the reader settled on.
func probeFile(path string, spec reader.SourceSpec, family string, sample int) (report, error) {
	t, attempt, err := reader.Read(path, spec)
	if err != nil {
		return report{}, err
	}
	table.InferKinds(t)

	canon, err := canonicalNames(path, t, family)
	if err != nil {
		return report{}, err
	}

	rep := report{
		File:      path,
		Encoding:  attempt.Encoding,
		Delimiter: string(attempt.Delimiter),
		Family:    family,
		Layout:    layoutFingerprint(t.Names()),
		Rows:      t.NumRows(),
		Columns:   make([]column, 0, t.NumCols()),
	}
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		missing := 0
		for row := 0; row < c.Len(); row++ {
			if c.Missing(row) {
				missing++
			}
		}
		rep.Columns = append(rep.Columns, column{
			Name:      c.Name,
			Canonical: canon[c.Name],
			Kind:      c.Kind.String(),
			Missing:   missing,
		})
	}
	for row := 0; row < t.NumRows() && row < sample; row++ {
		cells := make([]string, t.NumCols())
		for i := range cells {
			cells[i] = t.ColAt(i).Cell(row)
		}
		rep.Sample = append(rep.Sample, cells)
	}
	return rep, nil
}

func layoutFingerprint(names []string) string {
	h := xxh3.New()
	for _, n := range names {
		h.WriteString(n)
		h.Write([]byte{0x1f})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// canonicalNames maps each raw header to the canonical column the
// family's rename map would assign it. Headers absent from the result
// would be dropped by normalization. An empty family skips the preview.
func canonicalNames(path string, t *table.Table, family string) (map[string]string, error) {
	var m schema.Map
	switch family {
	case "":
		return nil, nil
	case "census":
		m = schema.CensusMap(schema.SourceTag(filepath.Base(path)), t.Names())
	case "election", "elections":
		m = schema.ElectionMap()
	default:
		return nil, fmt.Errorf("unknown family %q (census, election)", family)
	}
	out := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		out[e.From] = e.To
	}
	return out, nil
}

func renderText(w io.Writer, rep report) {
	fmt.Fprintf(w, "%s: read as %s/%q\n", rep.File, rep.Encoding, rep.Delimiter)
	fmt.Fprintf(w, "layout: %s  rows: %d  columns: %d\n\n", rep.Layout, rep.Rows, len(rep.Columns))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if rep.Family != "" {
		fmt.Fprintln(tw, "NAME\tCANONICAL\tKIND\tMISSING")
		for _, c := range rep.Columns {
			canonical := c.Canonical
			if canonical == "" {
				canonical = "(dropped)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.Name, canonical, c.Kind, c.Missing)
		}
	} else {
		fmt.Fprintln(tw, "NAME\tKIND\tMISSING")
		for _, c := range rep.Columns {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Name, c.Kind, c.Missing)
		}
	}
	tw.Flush()

	if len(rep.Sample) > 0 {
		fmt.Fprintf(w, "\nfirst %d rows:\n", len(rep.Sample))
		for _, cells := range rep.Sample {
			fmt.Fprintf(w, "  %s\n", strings.Join(cells, rep.Delimiter))
		}
	}
}
