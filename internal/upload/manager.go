// Package upload receives the bytes of a selected file from the browser in
// chunks and turns them into a spooled file ready for submission.
package upload

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/doc-analyzer/widget/internal/models"
)

// Status represents the state of a transfer.
type Status string

const (
	StatusReceiving     Status = "receiving"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// ErrTransferNotFound is returned for chunks addressed to an unknown transfer.
var ErrTransferNotFound = errors.New("transfer not found")

// ErrIncompleteTransfer is returned when chunks are missing at completion.
var ErrIncompleteTransfer = errors.New("incomplete transfer")

// ErrTransferStalled is reported to a transfer's owner when no completion
// arrived before cleanup.
var ErrTransferStalled = errors.New("transfer stalled")

// Transfer tracks the bytes of one selection on their way from the browser.
type Transfer struct {
	ID             string           `json:"id"`
	FileName       string           `json:"fileName"`
	ExpectedSize   int64            `json:"expectedSize"`
	ReceivedBytes  int64            `json:"receivedBytes"`
	ReceivedChunks map[int]bool     `json:"-"`
	Status         Status           `json:"status"`
	FileInfo       *models.FileInfo `json:"fileInfo,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`

	onStall func(error)
}

// Progress returns the received share of the expected size, 0-100.
func (t *Transfer) Progress() float64 {
	if t.Status == StatusComplete {
		return 100
	}
	if t.ExpectedSize <= 0 {
		return 0
	}
	p := float64(t.ReceivedBytes) / float64(t.ExpectedSize) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// Store defines the interface needed from the storage layer.
type Store interface {
	SaveChunkBytes(transferID string, chunkIndex int, data []byte) error
	CompleteChunkedUpload(transferID string, name string, totalChunks int) (*models.FileInfo, error)
	DiscardChunks(transferID string) error
	GetFilePath(id string) (string, error)
	RegisterFile(info *models.FileInfo)
	Delete(id string) error
}

// Manager handles in-flight transfers.
type Manager struct {
	transfers map[string]*Transfer
	mu        sync.RWMutex
	store     Store
}

// NewManager creates a new transfer manager.
func NewManager(store Store) *Manager {
	return &Manager{
		transfers: make(map[string]*Transfer),
		store:     store,
	}
}

// Begin registers a transfer the browser has been asked to send. onStall,
// if set, is called with ErrTransferStalled when cleanup gives up on it.
func (m *Manager) Begin(transferID, fileName string, expectedSize int64, onStall func(error)) *Transfer {
	t := &Transfer{
		ID:             transferID,
		FileName:       fileName,
		ExpectedSize:   expectedSize,
		ReceivedChunks: make(map[int]bool),
		Status:         StatusReceiving,
		CreatedAt:      time.Now(),
		onStall:        onStall,
	}

	m.mu.Lock()
	m.transfers[transferID] = t
	m.mu.Unlock()

	return t
}

// Get returns a copy of a transfer's current state.
func (m *Manager) Get(id string) (Transfer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transfers[id]
	if !ok {
		return Transfer{}, false
	}
	cp := *t
	cp.ReceivedChunks = make(map[int]bool, len(t.ReceivedChunks))
	for i := range t.ReceivedChunks {
		cp.ReceivedChunks[i] = true
	}
	cp.onStall = nil
	return cp, true
}

// WriteChunk stages one chunk.
func (m *Manager) WriteChunk(transferID string, chunkIndex int, data []byte) error {
	m.mu.Lock()
	t, ok := m.transfers[transferID]
	if !ok || t.Status != StatusReceiving {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTransferNotFound, transferID)
	}
	m.mu.Unlock()

	if chunkIndex < 0 {
		return fmt.Errorf("invalid chunk index %d", chunkIndex)
	}

	if err := m.store.SaveChunkBytes(transferID, chunkIndex, data); err != nil {
		return err
	}

	m.mu.Lock()
	if !t.ReceivedChunks[chunkIndex] {
		t.ReceivedChunks[chunkIndex] = true
		t.ReceivedBytes += int64(len(data))
	}
	m.mu.Unlock()

	return nil
}

// Complete assembles the transfer into a spool file. originalSize is the size
// before any client-side encoding and is checked after decompression.
func (m *Manager) Complete(transferID string, totalChunks int, originalSize int64, encoding string) (*models.FileInfo, error) {
	m.mu.Lock()
	t, ok := m.transfers[transferID]
	if !ok || t.Status != StatusReceiving {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, transferID)
	}
	received := len(t.ReceivedChunks)
	m.mu.Unlock()

	if received != totalChunks {
		err := fmt.Errorf("%w: got %d chunks, expected %d", ErrIncompleteTransfer, received, totalChunks)
		m.markError(t, err.Error())
		return nil, err
	}

	m.setStatus(t, StatusAssembling)

	info, err := m.store.CompleteChunkedUpload(transferID, t.FileName, totalChunks)
	if err != nil {
		m.markError(t, fmt.Sprintf("failed to assemble chunks: %v", err))
		return nil, fmt.Errorf("assembling transfer: %w", err)
	}

	if encoding == "gzip" {
		m.setStatus(t, StatusDecompressing)

		if err := m.decompressFile(info.ID, originalSize); err != nil {
			m.markError(t, fmt.Sprintf("failed to decompress: %v", err))
			if delErr := m.store.Delete(info.ID); delErr != nil {
				fmt.Printf("[Transfer %s] Warning: %v\n", shortID(transferID), delErr)
			}
			return nil, fmt.Errorf("decompressing transfer: %w", err)
		}

		info.Size = originalSize
		m.store.RegisterFile(info)
	}

	m.mu.Lock()
	t.FileInfo = info
	t.Status = StatusComplete
	now := time.Now()
	t.CompletedAt = &now
	m.mu.Unlock()

	return info, nil
}

// Discard abandons a transfer and drops its staged chunks.
func (m *Manager) Discard(transferID string) {
	m.mu.Lock()
	delete(m.transfers, transferID)
	m.mu.Unlock()

	if err := m.store.DiscardChunks(transferID); err != nil {
		fmt.Printf("[Transfer %s] Warning: %v\n", shortID(transferID), err)
	}
}

// decompressFile replaces a gzip spool file with its decompressed content.
func (m *Manager) decompressFile(fileID string, originalSize int64) error {
	path, err := m.store.GetFilePath(fileID)
	if err != nil {
		return err
	}

	compressedFile, err := os.Open(path)
	if err != nil {
		return err
	}
	defer compressedFile.Close()

	reader, err := gzip.NewReader(compressedFile)
	if err != nil {
		return err
	}
	defer reader.Close()

	tempPath := path + ".decompressing"
	outFile, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	written, err := io.Copy(outFile, reader)
	outFile.Close()
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("read error: %w", err)
	}

	if originalSize > 0 && written != originalSize {
		os.Remove(tempPath)
		return fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d bytes", written, originalSize)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}

	return nil
}

func (m *Manager) setStatus(t *Transfer, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Status = status
}

func (m *Manager) markError(t *Transfer, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.Status = StatusError
	t.Error = errMsg
	now := time.Now()
	t.CompletedAt = &now
	fmt.Printf("[Transfer %s] Error: %s\n", shortID(t.ID), errMsg)
}

// CleanupOldTransfers removes finished transfers, and receiving ones that
// stalled, older than maxAge. Owners of stalled transfers are told.
func (m *Manager) CleanupOldTransfers(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	var stalled []*Transfer

	m.mu.Lock()
	for id, t := range m.transfers {
		switch t.Status {
		case StatusComplete, StatusError:
			if t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
				delete(m.transfers, id)
			}
		case StatusReceiving:
			if t.CreatedAt.Before(cutoff) {
				delete(m.transfers, id)
				stalled = append(stalled, t)
			}
		}
	}
	m.mu.Unlock()

	for _, t := range stalled {
		fmt.Printf("[Transfer %s] Stalled, discarding\n", shortID(t.ID))
		m.store.DiscardChunks(t.ID)
		if t.onStall != nil {
			t.onStall(fmt.Errorf("%w: %s", ErrTransferStalled, t.ID))
		}
	}
	return len(stalled)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
