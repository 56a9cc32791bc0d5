package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-cache/internal/pipeline"
)

// canonicalSourcePath resolves path to an absolute, symlink-free form.
// It fails when the file does not exist, so missing sources are caught
// before any job state is allocated.
func canonicalSourcePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", path, err)
	}
	return resolved, nil
}

// computeCachePaths derives the deterministic output location and the
// dedup fingerprint for a canonical source. The fingerprint hashes
// path, length, and modify time; it is an identity key for coalescing,
// not a content check, so two distinct files sharing all three
// coalesce.
func computeCachePaths(root, sourcePath string, codec pipeline.Codec) (outputPath, tmpPath, dedupKey string, err error) {
	fi, err := os.Stat(sourcePath)
	if err != nil {
		return "", "", "", fmt.Errorf("stat %q: %w", sourcePath, err)
	}

	key := fmt.Sprintf("%s|%d|%d", sourcePath, fi.Size(), fi.ModTime().UnixNano())
	sum := sha1.Sum([]byte(key))
	dedupKey = hex.EncodeToString(sum[:])

	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	if stem == "" || stem == "." {
		stem = "media"
	}
	filename := fmt.Sprintf("%s__opt_%s.mov", stem, dedupKey[:8])

	outputPath = filepath.Join(root, codec.Dir(), filename)
	tmpPath = outputPath + ".tmp"
	return outputPath, tmpPath, dedupKey, nil
}
