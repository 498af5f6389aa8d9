// manager_test.go - Tests for the selection spool
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	tempDir := t.TempDir()
	spoolDir := filepath.Join(tempDir, "spool")

	if _, err := NewLocalStore(spoolDir); err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if _, err := os.Stat(spoolDir); os.IsNotExist(err) {
		t.Error("Expected spool directory to be created")
	}
}

func TestLocalStore_SaveAndOpen(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("scan.pdf", strings.NewReader("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}
	if info.ID == "" {
		t.Error("Expected ID to be set")
	}
	if info.Size != 8 {
		t.Errorf("Expected size 8, got %d", info.Size)
	}
	if info.Status != StatusSpooled {
		t.Errorf("Expected status %q, got %q", StatusSpooled, info.Status)
	}

	rc, opened, err := store.Open(info.ID)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "%PDF-1.7" {
		t.Errorf("Unexpected content %q", data)
	}
	if opened.Name != "scan.pdf" {
		t.Errorf("Expected name scan.pdf, got %s", opened.Name)
	}
}

func TestLocalStore_OpenUnknown(t *testing.T) {
	store := createTestStore(t)

	if _, _, err := store.Open("missing"); err == nil {
		t.Error("Expected error for unknown file")
	}
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("page.png", strings.NewReader("\x89PNG"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}
	path, _ := store.GetFilePath(info.ID)

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected file to be removed from disk")
	}
	if _, err := store.Get(info.ID); err == nil {
		t.Error("Expected metadata to be removed")
	}
	if err := store.Delete(info.ID); err == nil {
		t.Error("Expected error deleting twice")
	}
}

func TestLocalStore_CompleteChunkedUpload(t *testing.T) {
	t.Run("assembles chunks into spool file", func(t *testing.T) {
		store := createTestStore(t)

		transferID := "transfer-1"
		chunks := []string{"Hello ", "World", "!"}
		for i, content := range chunks {
			if err := store.SaveChunkBytes(transferID, i, []byte(content)); err != nil {
				t.Fatalf("Failed to save chunk %d: %v", i, err)
			}
		}

		info, err := store.CompleteChunkedUpload(transferID, "assembled.txt", len(chunks))
		if err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}
		if info.Size != 12 {
			t.Errorf("Expected size 12, got %d", info.Size)
		}

		data, err := os.ReadFile(filepath.Join(store.spoolDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read assembled file: %v", err)
		}
		if string(data) != "Hello World!" {
			t.Errorf("Expected 'Hello World!', got %q", data)
		}

		if _, err := os.Stat(store.chunkDir(transferID)); !os.IsNotExist(err) {
			t.Error("Chunk directory should be cleaned up")
		}
	})

	t.Run("returns error for missing chunks", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.SaveChunkBytes("transfer-2", 0, []byte("chunk0")); err != nil {
			t.Fatalf("Failed to save chunk: %v", err)
		}

		if _, err := store.CompleteChunkedUpload("transfer-2", "incomplete.txt", 3); err == nil {
			t.Error("Expected error when chunks are missing")
		}
		if n := spooledFiles(t, store); n != 0 {
			t.Errorf("Expected no spooled files, got %d", n)
		}
	})
}

func TestLocalStore_DiscardChunks(t *testing.T) {
	store := createTestStore(t)

	if err := store.SaveChunkBytes("transfer-3", 0, []byte("x")); err != nil {
		t.Fatalf("Failed to save chunk: %v", err)
	}
	if err := store.DiscardChunks("transfer-3"); err != nil {
		t.Fatalf("Failed to discard: %v", err)
	}
	if _, err := os.Stat(store.chunkDir("transfer-3")); !os.IsNotExist(err) {
		t.Error("Expected chunk directory to be gone")
	}
}

// failingReader fails on the first read.
type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestLocalStore_SaveReadError(t *testing.T) {
	store := createTestStore(t)

	if _, err := store.Save("broken.pdf", failingReader{}); err == nil {
		t.Error("Expected error when reader fails")
	}

	if n := spooledFiles(t, store); n != 0 {
		t.Errorf("Expected no spooled files, got %d", n)
	}
}

// spooledFiles counts the files in the spool directory, staged chunks aside.
func spooledFiles(t *testing.T, store *LocalStore) int {
	entries, err := os.ReadDir(store.spoolDir)
	if err != nil {
		t.Fatalf("Failed to read spool directory: %v", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}
