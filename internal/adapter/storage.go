package adapter

import (
	"context"
	"io"
)

// FileMetadata represents metadata about a file stored in the cloud storage.
type FileMetadata struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MIMEType string   `json:"mimeType"`
	Size     int64    `json:"size"`
	Parents  []string `json:"parents,omitempty"`
}

// NewFile describes a file to create. A nil Content creates the file from
// metadata alone, with no media attached.
type NewFile struct {
	Name     string
	MIMEType string
	Size     int64
	Content  io.Reader
	FolderID string
}

// MetadataOnly reports whether the create call carries no binary payload.
func (f NewFile) MetadataOnly() bool {
	return f.Content == nil
}

// StorageAdapter defines the interface for interacting with cloud storage services.
type StorageAdapter interface {
	// CreateFile creates a new file and returns the provider's record of it.
	CreateFile(ctx context.Context, f NewFile) (*FileMetadata, error)
}
