package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/config"
)

// newTestStorage creates a LocalStorage backed by a temporary directory.
func newTestStorage(t *testing.T, baseURL string) *LocalStorage {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.LocalStorageConfig{BasePath: dir}
	s, err := New(cfg, baseURL)
	if err != nil {
		t.Fatal("New:", err)
	}
	return s
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()

	subDir := filepath.Join(dir, "a", "b", "c")
	cfg := &config.LocalStorageConfig{BasePath: subDir}
	_, err := New(cfg, "http://localhost")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(subDir); os.IsNotExist(err) {
		t.Error("New() did not create base directory")
	}
}

func TestUpload(t *testing.T) {
	s := newTestStorage(t, "http://localhost")
	ctx := context.Background()

	content := "hello, world"
	result, err := s.Upload(ctx, "rooms/room-1/nda.pdf", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if result.Path != "rooms/room-1/nda.pdf" {
		t.Errorf("Path = %q, want rooms/room-1/nda.pdf", result.Path)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", result.Size, len(content))
	}
	if len(result.Checksum) != 64 {
		t.Errorf("Checksum len = %d, want 64 (SHA256 hex)", len(result.Checksum))
	}
}

func TestUpload_CreatesSubdirectories(t *testing.T) {
	s := newTestStorage(t, "")
	ctx := context.Background()

	_, err := s.Upload(ctx, "deep/nested/path/file.bin", strings.NewReader("data"), 4)
	if err != nil {
		t.Fatalf("Upload() error for deep path: %v", err)
	}

	fullPath := filepath.Join(s.basePath, "deep", "nested", "path", "file.bin")
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		t.Error("Upload() did not create file at nested path")
	}
}

func TestDownload(t *testing.T) {
	s := newTestStorage(t, "")
	ctx := context.Background()

	want := "download me"
	if _, err := s.Upload(ctx, "dl.txt", strings.NewReader(want), int64(len(want))); err != nil {
		t.Fatal("Upload:", err)
	}

	rc, err := s.Download(ctx, "dl.txt")
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != want {
		t.Errorf("Download() content = %q, want %q", string(data), want)
	}
}

func TestDownload_NotFound(t *testing.T) {
	s := newTestStorage(t, "")

	_, err := s.Download(context.Background(), "nonexistent.txt")
	if err == nil {
		t.Error("Download() expected error for missing file, got nil")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStorage(t, "")
	ctx := context.Background()

	if _, err := s.Upload(ctx, "to-delete.txt", strings.NewReader("bye"), 3); err != nil {
		t.Fatal("Upload:", err)
	}

	if err := s.Delete(ctx, "to-delete.txt"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	exists, _ := s.Exists(ctx, "to-delete.txt")
	if exists {
		t.Error("Delete() file still exists after deletion")
	}
}

func TestDelete_NonExistentFile(t *testing.T) {
	s := newTestStorage(t, "")

	// Deleting a file that doesn't exist should be a no-op (no error).
	if err := s.Delete(context.Background(), "does-not-exist.txt"); err != nil {
		t.Errorf("Delete() error for non-existent file: %v (want nil)", err)
	}
}

func TestDelete_CleansUpEmptyParentDirs(t *testing.T) {
	s := newTestStorage(t, "")
	ctx := context.Background()

	if _, err := s.Upload(ctx, "sub/leaf.txt", strings.NewReader("x"), 1); err != nil {
		t.Fatal("Upload:", err)
	}

	if err := s.Delete(ctx, "sub/leaf.txt"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	subDir := filepath.Join(s.basePath, "sub")
	if _, err := os.Stat(subDir); !os.IsNotExist(err) {
		t.Error("Delete() should clean up empty parent directory 'sub'")
	}
}

func TestExists(t *testing.T) {
	s := newTestStorage(t, "")
	ctx := context.Background()

	ok, err := s.Exists(ctx, "no-such.txt")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if ok {
		t.Error("Exists() = true for non-existent file, want false")
	}

	if _, err := s.Upload(ctx, "yes.txt", strings.NewReader("data"), 4); err != nil {
		t.Fatal("Upload:", err)
	}

	ok, err = s.Exists(ctx, "yes.txt")
	if err != nil {
		t.Fatalf("Exists() error after upload: %v", err)
	}
	if !ok {
		t.Error("Exists() = false for existing file, want true")
	}
}

func TestGetURL_ServedThroughAPI(t *testing.T) {
	s := newTestStorage(t, "http://dataroom.example.com")
	ctx := context.Background()

	if _, err := s.Upload(ctx, "rooms/room-1/deck.pdf", strings.NewReader("data"), 4); err != nil {
		t.Fatal("Upload:", err)
	}

	url, err := s.GetURL(ctx, "rooms/room-1/deck.pdf", time.Hour)
	if err != nil {
		t.Fatalf("GetURL() error: %v", err)
	}
	want := "http://dataroom.example.com/v1/files/rooms/room-1/deck.pdf"
	if url != want {
		t.Errorf("GetURL() = %q, want %q", url, want)
	}
}

func TestGetURL_LocalFile(t *testing.T) {
	s := newTestStorage(t, "")
	ctx := context.Background()

	if _, err := s.Upload(ctx, "myfile.txt", strings.NewReader("x"), 1); err != nil {
		t.Fatal("Upload:", err)
	}

	url, err := s.GetURL(ctx, "myfile.txt", time.Hour)
	if err != nil {
		t.Fatalf("GetURL() error: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("GetURL() = %q, want to start with file://", url)
	}
	if !strings.Contains(url, "myfile.txt") {
		t.Errorf("GetURL() = %q, want to contain myfile.txt", url)
	}
}

func TestGetURL_NotFound(t *testing.T) {
	s := newTestStorage(t, "http://example.com")

	_, err := s.GetURL(context.Background(), "missing.txt", time.Hour)
	if err == nil {
		t.Error("GetURL() expected error for missing file, got nil")
	}
}

func TestGetMetadata(t *testing.T) {
	s := newTestStorage(t, "")
	ctx := context.Background()

	content := []byte("metadata test content")
	if _, err := s.Upload(ctx, "meta.txt", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatal("Upload:", err)
	}

	meta, err := s.GetMetadata(ctx, "meta.txt")
	if err != nil {
		t.Fatalf("GetMetadata() error: %v", err)
	}

	if meta.Path != "meta.txt" {
		t.Errorf("Path = %q, want meta.txt", meta.Path)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", meta.Size, len(content))
	}
	if len(meta.Checksum) != 64 {
		t.Errorf("Checksum len = %d, want 64", len(meta.Checksum))
	}
	if meta.LastModified.IsZero() {
		t.Error("LastModified should not be zero")
	}
}

func TestGetMetadata_ChecksumMatchesUpload(t *testing.T) {
	s := newTestStorage(t, "")
	ctx := context.Background()

	content := "checksum consistency check"
	uploadResult, err := s.Upload(ctx, "cksum.txt", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatal("Upload:", err)
	}

	meta, err := s.GetMetadata(ctx, "cksum.txt")
	if err != nil {
		t.Fatal("GetMetadata:", err)
	}

	if meta.Checksum != uploadResult.Checksum {
		t.Errorf("GetMetadata checksum %q != Upload checksum %q", meta.Checksum, uploadResult.Checksum)
	}
}
