package reader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func electionSpec() SourceSpec {
	return SourceSpec{
		Encodings:   []string{"utf8", "latin1"},
		Delimiters:  []rune{';', ','},
		KeyColumns:  []string{"SG_UF", "NR_ZONA", "NR_SECAO"},
		TypoFixes:   map[string]string{"SG_ UF": "SG_UF"},
		NASentinels: []string{"#NULO#", "-1", "-3"},
	}
}

func TestReadLatin1Semicolon(t *testing.T) {
	// "São Paulo" with latin1-encoded ã (0xE3). Invalid as UTF-8, so the
	// utf8 attempts must fail and latin1 must win.
	data := []byte("SG_UF;NR_ZONA;NR_SECAO;NM_MUNICIPIO\nSP;1;10;S\xe3o Paulo\n")

	tab, at, err := ReadBytes(data, electionSpec())
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if at.Encoding != "latin1" || at.Delimiter != ';' {
		t.Fatalf("attempt = %v, want latin1/';'", at)
	}
	if got := tab.Col("NM_MUNICIPIO").Str[0]; got != "São Paulo" {
		t.Fatalf("city = %q, want São Paulo", got)
	}
}

func TestReadUTF8Wins(t *testing.T) {
	data := []byte("SG_UF;NR_ZONA;NR_SECAO\nSP;1;10\n")
	_, at, err := ReadBytes(data, electionSpec())
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if at.Encoding != "utf8" {
		t.Fatalf("ascii input should validate on the first encoding, got %v", at)
	}
}

func TestTypoFixAppliedBeforeValidation(t *testing.T) {
	data := []byte("SG_ UF;NR_ZONA;NR_SECAO\nBA;5;42\n")
	tab, _, err := ReadBytes(data, electionSpec())
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !tab.Has("SG_UF") || tab.Has("SG_ UF") {
		t.Fatalf("typo variant not corrected: cols %v", tab.Names())
	}
	if tab.Col("SG_UF").Str[0] != "BA" {
		t.Fatalf("corrected column lost its values")
	}
}

func TestSentinelsBecomeMissing(t *testing.T) {
	data := []byte("SG_UF;NR_ZONA;NR_SECAO;NR_VOTAVEL\nSP;1;10;#NULO#\nSP;1;11;-1\nSP;1;12;13\n")
	tab, _, err := ReadBytes(data, electionSpec())
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	c := tab.Col("NR_VOTAVEL")
	if !c.Missing(0) || !c.Missing(1) || c.Missing(2) {
		t.Fatalf("sentinel scrub wrong: %v", c.Str)
	}
}

func TestMultiColumnCheckWithoutKeys(t *testing.T) {
	spec := SourceSpec{
		Encodings:  []string{"utf8"},
		Delimiters: []rune{',', ';'},
	}
	// Comma parses this file into a single column; the semicolon attempt
	// must be the one that validates.
	data := []byte("a;b;c\n1;2;3\n")
	tab, at, err := ReadBytes(data, spec)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if at.Delimiter != ';' {
		t.Fatalf("delimiter = %q, want ';'", at.Delimiter)
	}
	if tab.NumCols() != 3 {
		t.Fatalf("NumCols = %d, want 3", tab.NumCols())
	}
}

func TestUnreadableSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.csv")
	if err := os.WriteFile(path, []byte("just_one_header\nvalue\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	spec := SourceSpec{
		Encodings:  []string{"utf8"},
		Delimiters: []rune{';', ','},
		KeyColumns: []string{"SG_UF"},
	}
	_, _, err := Read(path, spec)
	var u *UnreadableSourceError
	if !errors.As(err, &u) {
		t.Fatalf("want UnreadableSourceError, got %v", err)
	}
	if u.Path != path {
		t.Fatalf("error path = %q, want %q", u.Path, path)
	}
	if len(u.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(u.Attempts))
	}
}

func TestHeaderBOMAndDuplicates(t *testing.T) {
	data := []byte("\ufeffx,x,\n1,2,3\n")
	tab, _, err := ReadBytes(data, SourceSpec{
		Encodings:  []string{"utf8"},
		Delimiters: []rune{','},
	})
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !tab.Has("x") || !tab.Has("x_1") || !tab.Has("UNNAMED_2") {
		t.Fatalf("headers = %v", tab.Names())
	}
}
