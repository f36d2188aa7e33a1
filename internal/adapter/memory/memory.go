// Package memory is an in-process storage adapter used in DEV_MODE and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/jun/driveuploader/internal/adapter"
)

const (
	maxDemoContentSize = 4 * 1024 * 1024
	maxDemoTitleLength = 255
	maxDemoItemCount   = 50
)

// StoredFile is a created file as recorded by the adapter.
type StoredFile struct {
	adapter.FileMetadata
	Content  []byte
	HasMedia bool
	Token    string
}

// MemoryAdapter implements adapter.StorageAdapter in memory.
type MemoryAdapter struct {
	mu    sync.RWMutex
	files map[string]*StoredFile
	order []string

	// Err, when set, fails every CreateFile call.
	Err error
}

// NewMemoryAdapter creates an empty adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{files: make(map[string]*StoredFile)}
}

// CreateFile implements adapter.StorageAdapter.
func (m *MemoryAdapter) CreateFile(ctx context.Context, f adapter.NewFile) (*adapter.FileMetadata, error) {
	return m.create(ctx, "", f)
}

func (m *MemoryAdapter) create(_ context.Context, token string, f adapter.NewFile) (*adapter.FileMetadata, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if len(f.Name) > maxDemoTitleLength {
		return nil, fmt.Errorf("%w: name too long (max %d characters)", adapter.ErrLimitExceeded, maxDemoTitleLength)
	}

	stored := &StoredFile{
		FileMetadata: adapter.FileMetadata{
			ID:       uuid.NewString(),
			Name:     f.Name,
			MIMEType: f.MIMEType,
		},
		HasMedia: !f.MetadataOnly(),
		Token:    token,
	}
	if f.FolderID != "" {
		stored.Parents = []string{f.FolderID}
	}

	if stored.HasMedia {
		content, err := io.ReadAll(io.LimitReader(f.Content, maxDemoContentSize+1))
		if err != nil {
			return nil, fmt.Errorf("read content: %w", err)
		}
		if len(content) > maxDemoContentSize {
			return nil, fmt.Errorf("%w: content too large (max %d bytes)", adapter.ErrLimitExceeded, maxDemoContentSize)
		}
		stored.Content = content
		stored.Size = int64(len(content))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.files) >= maxDemoItemCount {
		return nil, fmt.Errorf("%w: item limit reached (max %d)", adapter.ErrLimitExceeded, maxDemoItemCount)
	}
	m.files[stored.ID] = stored
	m.order = append(m.order, stored.ID)

	meta := stored.FileMetadata
	return &meta, nil
}

// Get returns a stored file by ID.
func (m *MemoryAdapter) Get(id string) (*StoredFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	return f, nil
}

// Files returns stored files in creation order.
func (m *MemoryAdapter) Files() []*StoredFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*StoredFile, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.files[id])
	}
	return out
}

// tokenAdapter binds an access token to the shared store.
type tokenAdapter struct {
	store *MemoryAdapter
	token string
}

func (t *tokenAdapter) CreateFile(ctx context.Context, f adapter.NewFile) (*adapter.FileMetadata, error) {
	return t.store.create(ctx, t.token, f)
}

// Provider implements adapter.StorageProvider over one shared MemoryAdapter.
type Provider struct {
	Store *MemoryAdapter
}

// NewProvider creates a provider with an empty store.
func NewProvider() *Provider {
	return &Provider{Store: NewMemoryAdapter()}
}

// GetAdapter returns an adapter that records accessToken on each created file.
func (p *Provider) GetAdapter(_ context.Context, accessToken string) (adapter.StorageAdapter, error) {
	return &tokenAdapter{store: p.Store, token: accessToken}, nil
}
