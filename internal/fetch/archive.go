package fetch

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// UnzipCSVs extracts the tabular members of the archive at zipPath
// into destDir and returns their names. Members are flattened to their
// base name, so nested archive layouts and any "../" prefixes collapse
// into destDir. Only .csv and .txt members are extracted; census
// archives bundle layout PDFs and spreadsheets the pipeline never
// reads, and some publishers ship results as .txt.
func UnzipCSVs(zipPath, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		// Member paths are flattened to their base name below, so a
		// non-local member name cannot escape destDir.
		if zr == nil || !errors.Is(err, zip.ErrInsecurePath) {
			return nil, fmt.Errorf("fetch: open archive %s: %w", zipPath, err)
		}
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("fetch: extract %s: %w", zipPath, err)
	}

	var names []string
	for _, member := range zr.File {
		if member.FileInfo().IsDir() {
			continue
		}
		name := path.Base(strings.ReplaceAll(member.Name, `\`, "/"))
		if name == "" || name == "." || name == ".." {
			continue
		}
		ext := strings.ToLower(path.Ext(name))
		if ext != ".csv" && ext != ".txt" {
			continue
		}
		if err := extractMember(member, filepath.Join(destDir, name)); err != nil {
			return names, fmt.Errorf("fetch: extract %s from %s: %w", member.Name, zipPath, err)
		}
		names = append(names, name)
	}
	return names, nil
}

func extractMember(member *zip.File, dest string) error {
	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return err
}
