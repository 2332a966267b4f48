// Package reader reads the raw delimited extracts. Regional offices publish
// the same dataset family with different character encodings and field
// delimiters, so the reader walks a fixed-priority list of (encoding,
// delimiter) candidates until one produces a table that passes a structural
// sanity check. A file no candidate can validate is a fatal condition for
// the run, not a skippable one.
package reader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"geoetl/internal/table"
)

// SourceSpec configures how a dataset family's raw files are tried. All
// lists are in priority order; the first validating pair wins.
type SourceSpec struct {
	// Encodings holds candidate encoding names: utf8, latin1, cp1252,
	// utf16, utf16le, utf16be.
	Encodings []string

	// Delimiters holds candidate field separators.
	Delimiters []rune

	// KeyColumns are the raw header names that must be present for an
	// attempt to validate. When empty, an attempt validates as soon as it
	// produces more than one column, which catches a wrong delimiter
	// collapsing the whole row into a single field.
	KeyColumns []string

	// TypoFixes maps known misspelled raw headers to their expected form
	// (one regional office ships "SG_ UF" for "SG_UF"). Applied before the
	// KeyColumns check.
	TypoFixes map[string]string

	// NASentinels are cell values rewritten to missing at read time
	// (e.g. "#NULO#", "-1", "-3").
	NASentinels []string
}

// Attempt identifies one (encoding, delimiter) candidate.
type Attempt struct {
	Encoding  string
	Delimiter rune
}

func (a Attempt) String() string {
	return fmt.Sprintf("%s/%q", a.Encoding, a.Delimiter)
}

// UnreadableSourceError reports that every candidate pair failed for a
// file. The pipeline must abort on it: silently skipping a source file
// would undercount whole regions downstream.
type UnreadableSourceError struct {
	Path     string
	Attempts []Attempt
}

func (e *UnreadableSourceError) Error() string {
	tried := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		tried[i] = a.String()
	}
	return fmt.Sprintf("no encoding/delimiter combination reads %s (tried %s)", e.Path, strings.Join(tried, ", "))
}

// Read loads path as a String-kind table using the first validating
// candidate pair, reporting which pair worked.
func Read(path string, spec SourceSpec) (*table.Table, Attempt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Attempt{}, fmt.Errorf("read %s: %w", path, err)
	}
	t, at, err := ReadBytes(data, spec)
	if err != nil {
		var u *UnreadableSourceError
		if errors.As(err, &u) {
			u.Path = path
			return nil, Attempt{}, u
		}
		return nil, Attempt{}, fmt.Errorf("read %s: %w", path, err)
	}
	return t, at, nil
}

// ReadBytes is Read over an in-memory file. The returned
// *UnreadableSourceError carries an empty Path for the caller to fill.
func ReadBytes(data []byte, spec SourceSpec) (*table.Table, Attempt, error) {
	if len(spec.Encodings) == 0 || len(spec.Delimiters) == 0 {
		return nil, Attempt{}, fmt.Errorf("source spec declares no encodings or delimiters")
	}
	var tried []Attempt
	for _, enc := range spec.Encodings {
		dec, err := decoderFor(enc)
		if err != nil {
			return nil, Attempt{}, err
		}
		if dec == nil && !utf8.Valid(data) {
			// encoding/csv passes invalid bytes through silently, so the
			// utf8 candidate must be rejected up front or the chain could
			// never fall back to the legacy encodings.
			for _, delim := range spec.Delimiters {
				tried = append(tried, Attempt{Encoding: enc, Delimiter: delim})
			}
			continue
		}
		for _, delim := range spec.Delimiters {
			at := Attempt{Encoding: enc, Delimiter: delim}
			t, err := parseAttempt(data, dec, delim)
			if err != nil {
				tried = append(tried, at)
				continue
			}
			applyTypoFixes(t, spec.TypoFixes)
			if !validates(t, spec) {
				tried = append(tried, at)
				continue
			}
			scrubSentinels(t, spec.NASentinels)
			return t, at, nil
		}
	}
	return nil, Attempt{}, &UnreadableSourceError{Attempts: tried}
}

// decoderFor resolves an encoding name. Unknown names are a configuration
// bug and fail hard instead of counting as a failed attempt. The nil
// transformer means "already UTF-8, validate only".
func decoderFor(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "utf8":
		return nil, nil
	case "latin1", "iso88591":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "cp1252", "windows1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	case "utf16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder(), nil
	case "utf16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder(), nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}

// parseAttempt decodes and parses one candidate pair into a String-kind
// table. Any decode or parse error fails the attempt.
func parseAttempt(data []byte, dec transform.Transformer, delim rune) (*table.Table, error) {
	var r io.Reader = bytes.NewReader(data)
	if dec != nil {
		r = transform.NewReader(r, dec)
	}
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	header = stripHeaderBOM(header)
	names := uniqueHeaders(header)

	cells := make([][]string, len(names))
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range names {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			cells[i] = append(cells[i], v)
		}
	}

	t := table.New()
	for i, name := range names {
		if err := t.Add(table.NewStr(name, cells[i])); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\ufeff"

func stripHeaderBOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	}
	return headers
}

// uniqueHeaders trims headers and disambiguates empty or repeated names so
// the table index stays well-defined. The schema normalizer drops anything
// it does not recognize, so the generated names never survive past it.
func uniqueHeaders(header []string) []string {
	used := make(map[string]bool, len(header))
	out := make([]string, len(header))
	for i, raw := range header {
		h := strings.TrimSpace(raw)
		if h == "" {
			h = fmt.Sprintf("UNNAMED_%d", i)
		}
		name := h
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", h, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func applyTypoFixes(t *table.Table, fixes map[string]string) {
	for from, to := range fixes {
		if t.Has(from) && !t.Has(to) {
			_ = t.Rename(from, to)
		}
	}
}

// validates runs the structural sanity check for one parsed attempt.
func validates(t *table.Table, spec SourceSpec) bool {
	if len(spec.KeyColumns) == 0 {
		return t.NumCols() > 1
	}
	for _, k := range spec.KeyColumns {
		if !t.Has(k) {
			return false
		}
	}
	return true
}

// scrubSentinels rewrites configured NA markers to missing cells.
func scrubSentinels(t *table.Table, sentinels []string) {
	if len(sentinels) == 0 {
		return
	}
	na := make(map[string]bool, len(sentinels))
	for _, s := range sentinels {
		na[s] = true
	}
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		for r, v := range c.Str {
			if na[strings.TrimSpace(v)] {
				c.Str[r] = ""
			}
		}
	}
}
