// Package logging builds the process logger. Stage banners log at
// Info, per-file detail at Debug; the verbose flag switches between
// the two.
package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// New returns a colored slog logger writing to stderr. verbose lowers
// the level to Debug.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:       level,
		TimeFormat:  "2006-01-02 15:04:05",
		ReplaceAttr: dropEmptyStrings,
	}))
}

// dropEmptyStrings removes attrs whose value is the empty string, so
// optional fields (candidacy, geocoding api) disappear from lines that
// do not set them.
func dropEmptyStrings(_ []string, a slog.Attr) slog.Attr {
	if s, ok := a.Value.Any().(string); ok && s == "" {
		return slog.Attr{}
	}
	return a
}
