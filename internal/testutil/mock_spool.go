// mock_spool.go - In-memory spool for widget tests
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/doc-analyzer/widget/internal/models"
)

// MockSpool keeps selected files in memory and records deletions.
type MockSpool struct {
	files    map[string]*models.FileInfo
	fileData map[string][]byte
	deleted  []string
	next     int
	mu       sync.RWMutex
}

// NewMockSpool creates an empty mock spool
func NewMockSpool() *MockSpool {
	return &MockSpool{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
	}
}

// Put stores content under a fresh ID and returns the ID
func (m *MockSpool) Put(name string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	id := fmt.Sprintf("file-%d", m.next)
	m.files[id] = &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
		Status:     "spooled",
	}
	m.fileData[id] = data
	return id
}

func (m *MockSpool) Open(id string) (io.ReadCloser, *models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, nil, fmt.Errorf("file not found: %s", id)
	}
	info := *m.files[id]
	return io.NopCloser(bytes.NewReader(data)), &info, nil
}

func (m *MockSpool) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[id]; !ok {
		return errors.New("file not found")
	}
	delete(m.files, id)
	delete(m.fileData, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// Deleted returns the IDs removed so far, in order
func (m *MockSpool) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

// GetFileCount returns the number of stored files
func (m *MockSpool) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
