package logging

import (
	"context"
	"log/slog"
	"testing"
)

// TestNew_VerboseControlsLevel verifies that the verbose flag is the
// only thing separating Info from Debug output.
func TestNew_VerboseControlsLevel(t *testing.T) {
	t.Parallel()

	quiet := New(false)
	if quiet.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("non-verbose logger enables Debug")
	}
	if !quiet.Handler().Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("non-verbose logger disables Info")
	}

	verbose := New(true)
	if !verbose.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("verbose logger disables Debug")
	}
}

// TestDropEmptyStrings verifies that empty string attrs vanish while
// everything else passes through.
func TestDropEmptyStrings(t *testing.T) {
	t.Parallel()

	if got := dropEmptyStrings(nil, slog.String("candidacy", "")); !got.Equal(slog.Attr{}) {
		t.Fatalf("empty string attr survived: %v", got)
	}
	kept := slog.String("candidacy", "president")
	if got := dropEmptyStrings(nil, kept); !got.Equal(kept) {
		t.Fatalf("non-empty attr changed: %v", got)
	}
	count := slog.Int("files", 0)
	if got := dropEmptyStrings(nil, count); !got.Equal(count) {
		t.Fatalf("non-string attr changed: %v", got)
	}
}
