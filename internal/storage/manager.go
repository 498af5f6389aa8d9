// Package storage keeps selected files on local disk between the moment the
// browser finishes sending them and the moment they are submitted.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doc-analyzer/widget/internal/models"
	"github.com/google/uuid"
)

// Status values stored in models.FileInfo.Status.
const (
	StatusSpooled = "spooled"
)

// LocalStore keeps spooled files on the local filesystem.
type LocalStore struct {
	mu       sync.RWMutex
	spoolDir string
	files    map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore rooted at spoolDir.
func NewLocalStore(spoolDir string) (*LocalStore, error) {
	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	return &LocalStore{
		spoolDir: spoolDir,
		files:    make(map[string]*models.FileInfo),
	}, nil
}

// Save writes r to a new spool file.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.spoolDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		UploadedAt: time.Now(),
		Status:     StatusSpooled,
	}

	s.RegisterFile(info)
	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}

	return info, nil
}

// Open returns a reader over a spooled file. The caller closes it.
func (s *LocalStore) Open(id string) (io.ReadCloser, *models.FileInfo, error) {
	info, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.spoolDir, id))
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}

	return f, info, nil
}

// Delete removes a file from the spool.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("file not found: %s", id)
	}

	path := filepath.Join(s.spoolDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("file not found: %s", id)
	}

	return filepath.Join(s.spoolDir, id), nil
}

// RegisterFile adds or replaces file metadata.
func (s *LocalStore) RegisterFile(info *models.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[info.ID] = info
}

// SaveChunkBytes stages one chunk of a transfer.
func (s *LocalStore) SaveChunkBytes(transferID string, chunkIndex int, data []byte) error {
	chunkDir := s.chunkDir(transferID)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", chunkIndex))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}

	return nil
}

// CompleteChunkedUpload assembles all chunks of a transfer into a spool file.
func (s *LocalStore) CompleteChunkedUpload(transferID string, name string, totalChunks int) (*models.FileInfo, error) {
	chunkDir := s.chunkDir(transferID)

	readers := make([]io.Reader, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		f, err := os.Open(filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", i)))
		if err != nil {
			closeAll(readers)
			return nil, fmt.Errorf("opening chunk %d: %w", i, err)
		}
		readers = append(readers, f)
	}

	info, err := s.Save(name, io.MultiReader(readers...))
	closeAll(readers)
	if err != nil {
		return nil, fmt.Errorf("assembling chunks: %w", err)
	}

	os.RemoveAll(chunkDir)

	return info, nil
}

func closeAll(readers []io.Reader) {
	for _, r := range readers {
		r.(io.Closer).Close()
	}
}

// DiscardChunks drops the staged chunks of an abandoned transfer.
func (s *LocalStore) DiscardChunks(transferID string) error {
	if err := os.RemoveAll(s.chunkDir(transferID)); err != nil {
		return fmt.Errorf("removing chunks: %w", err)
	}
	return nil
}

func (s *LocalStore) chunkDir(transferID string) string {
	return filepath.Join(s.spoolDir, "chunks", transferID)
}
