package googledrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jun/driveuploader/internal/adapter"
)

const (
	defaultName     = "untitled"
	defaultMIMEType = "application/octet-stream"
	createFields    = "id, name, mimeType, size, parents"
)

// DriveAdapter implements adapter.StorageAdapter for Google Drive.
type DriveAdapter struct {
	service  *drive.Service
	FolderID string
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client carrying the user's access token.
func NewDriveAdapter(ctx context.Context, client *http.Client, folderID string, opts ...option.ClientOption) (*DriveAdapter, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &DriveAdapter{service: srv, FolderID: folderID}, nil
}

// CreateFile creates a file. Zero-byte files are sent as metadata only,
// because the media upload path rejects an empty body.
func (d *DriveAdapter) CreateFile(ctx context.Context, f adapter.NewFile) (*adapter.FileMetadata, error) {
	name := f.Name
	if name == "" {
		name = defaultName
	}
	mimeType := f.MIMEType
	if mimeType == "" {
		mimeType = defaultMIMEType
	}

	file := &drive.File{
		Name:     name,
		MimeType: mimeType,
	}
	if parent := f.FolderID; parent != "" {
		file.Parents = []string{parent}
	} else if d.FolderID != "" {
		file.Parents = []string{d.FolderID}
	}

	call := d.service.Files.Create(file).
		SupportsAllDrives(true).
		Fields(createFields).
		Context(ctx)
	if !f.MetadataOnly() {
		call = call.Media(f.Content, googleapi.ContentType(mimeType))
	}

	res, err := call.Do()
	if err != nil {
		switch {
		case isStatus(err, http.StatusNotFound):
			return nil, fmt.Errorf("%w: %v", adapter.ErrNotFound, err)
		case isStatus(err, http.StatusUnauthorized):
			return nil, fmt.Errorf("%w: %v", adapter.ErrUnauthorized, err)
		case isStatus(err, http.StatusRequestEntityTooLarge):
			return nil, fmt.Errorf("%w: %v", adapter.ErrLimitExceeded, err)
		}
		return nil, fmt.Errorf("unable to create file: %w", err)
	}

	return &adapter.FileMetadata{
		ID:       res.Id,
		Name:     res.Name,
		MIMEType: res.MimeType,
		Size:     res.Size,
		Parents:  res.Parents,
	}, nil
}

func isStatus(err error, code int) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == code
	}
	return false
}
