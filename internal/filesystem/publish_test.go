package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	tmpPath := filepath.Join(dir, "clip.mov.tmp")
	finalPath := filepath.Join(dir, "clip.mov")

	if err := os.WriteFile(tmpPath, []byte("rendition"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Publish(tmpPath, finalPath, DefaultRetryConfig()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("tmp path should be gone after publish")
	}
	data, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("final path missing: %v", err)
	}
	if string(data) != "rendition" {
		t.Errorf("final content = %q", data)
	}
}

func TestPublishMissingTmp(t *testing.T) {
	dir := t.TempDir()

	err := Publish(filepath.Join(dir, "nope.tmp"), filepath.Join(dir, "nope.mov"), DefaultRetryConfig())
	if err == nil {
		t.Fatal("expected error when tmp file is missing")
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"ESTALE", &os.LinkError{Op: "rename", Err: syscall.ESTALE}, true},
		{"EBUSY", &os.LinkError{Op: "rename", Err: syscall.EBUSY}, true},
		{"ENOENT", &os.LinkError{Op: "rename", Err: syscall.ENOENT}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.tmp")

	// Missing file is fine.
	if err := RemoveIfExists(path); err != nil {
		t.Errorf("RemoveIfExists on missing file: %v", err)
	}

	if err := os.WriteFile(path, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Errorf("RemoveIfExists failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}
}
