package cache

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"media-cache/internal/pipeline"
)

var renditionName = regexp.MustCompile(`^clip__opt_[0-9a-f]{8}\.mov$`)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestComputeCachePathsLayout(t *testing.T) {
	root := t.TempDir()
	source := writeFixture(t, t.TempDir(), "clip.mp4", "media")

	output, tmp, key, err := computeCachePaths(root, source, pipeline.CodecProRes422)
	if err != nil {
		t.Fatalf("computeCachePaths() error = %v", err)
	}

	if dir := filepath.Dir(output); dir != filepath.Join(root, "prores422") {
		t.Errorf("output directory = %q, want under %q", dir, filepath.Join(root, "prores422"))
	}
	base := filepath.Base(output)
	if !renditionName.MatchString(base) {
		t.Errorf("output filename = %q, want clip__opt_<hash8>.mov", base)
	}
	if tmp != output+".tmp" {
		t.Errorf("tmp path = %q, want %q", tmp, output+".tmp")
	}
	if len(key) != 40 {
		t.Errorf("dedup key length = %d, want 40 hex chars", len(key))
	}
	if !strings.HasPrefix(base, "clip__opt_"+key[:8]) {
		t.Errorf("filename %q does not embed key prefix %q", base, key[:8])
	}
}

func TestComputeCachePathsDeterministic(t *testing.T) {
	root := t.TempDir()
	source := writeFixture(t, t.TempDir(), "clip.mp4", "media")

	out1, _, key1, err := computeCachePaths(root, source, pipeline.CodecProRes422)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	out2, _, key2, err := computeCachePaths(root, source, pipeline.CodecProRes422)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if out1 != out2 || key1 != key2 {
		t.Errorf("paths not deterministic: %q/%q vs %q/%q", out1, key1, out2, key2)
	}
}

func TestDedupKeyTracksFileIdentity(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	source := writeFixture(t, dir, "clip.mp4", "media")

	_, _, original, err := computeCachePaths(root, source, pipeline.CodecProRes422)
	if err != nil {
		t.Fatalf("computeCachePaths() error = %v", err)
	}

	t.Run("size change", func(t *testing.T) {
		writeFixture(t, dir, "clip.mp4", "media but longer now")
		_, _, key, err := computeCachePaths(root, source, pipeline.CodecProRes422)
		if err != nil {
			t.Fatalf("computeCachePaths() error = %v", err)
		}
		if key == original {
			t.Error("key unchanged after size change")
		}
	})

	t.Run("mtime change", func(t *testing.T) {
		writeFixture(t, dir, "clip.mp4", "media")
		when := time.Now().Add(-time.Hour)
		if err := os.Chtimes(source, when, when); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		_, _, key, err := computeCachePaths(root, source, pipeline.CodecProRes422)
		if err != nil {
			t.Fatalf("computeCachePaths() error = %v", err)
		}
		if key == original {
			t.Error("key unchanged after mtime change")
		}
	})

	t.Run("path change", func(t *testing.T) {
		other := writeFixture(t, t.TempDir(), "clip.mp4", "media")
		fi, err := os.Stat(source)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if err := os.Chtimes(other, fi.ModTime(), fi.ModTime()); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		_, _, key, err := computeCachePaths(root, other, pipeline.CodecProRes422)
		if err != nil {
			t.Fatalf("computeCachePaths() error = %v", err)
		}
		if key == original {
			t.Error("distinct paths produced the same key")
		}
	})
}

func TestComputeCachePathsStemFallback(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name     string
		file     string
		wantStem string
	}{
		{"normal", "movie.mkv", "movie"},
		{"dotfile", ".hidden", "media"},
		{"multi dot", "a.b.mov", "a.b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := writeFixture(t, t.TempDir(), tt.file, "media")
			output, _, _, err := computeCachePaths(root, source, pipeline.CodecProRes422)
			if err != nil {
				t.Fatalf("computeCachePaths() error = %v", err)
			}
			if !strings.HasPrefix(filepath.Base(output), tt.wantStem+"__opt_") {
				t.Errorf("output %q, want stem %q", filepath.Base(output), tt.wantStem)
			}
		})
	}
}

func TestCanonicalSourcePathResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := writeFixture(t, dir, "real.mp4", "media")
	link := filepath.Join(dir, "link.mp4")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	fromLink, err := canonicalSourcePath(link)
	if err != nil {
		t.Fatalf("canonicalSourcePath(link) error = %v", err)
	}
	fromTarget, err := canonicalSourcePath(target)
	if err != nil {
		t.Fatalf("canonicalSourcePath(target) error = %v", err)
	}
	if fromLink != fromTarget {
		t.Errorf("link resolved to %q, target to %q", fromLink, fromTarget)
	}
}

func TestCanonicalSourcePathMissingFile(t *testing.T) {
	if _, err := canonicalSourcePath(filepath.Join(t.TempDir(), "nope.mp4")); err == nil {
		t.Error("canonicalSourcePath accepted a missing file")
	}
}
