package googledrive

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/jun/driveuploader/internal/adapter"
)

// Provider implements adapter.StorageProvider for Google Drive.
type Provider struct {
	folderID string
	opts     []option.ClientOption
}

// NewProvider creates a new Google Drive provider. Files are created in
// folderID, or the Drive root when empty.
func NewProvider(folderID string, opts ...option.ClientOption) *Provider {
	return &Provider{folderID: folderID, opts: opts}
}

// GetAdapter returns a DriveAdapter acting with accessToken. The token is used
// as-is; renewal happens in the session layer before this call.
func (p *Provider) GetAdapter(ctx context.Context, accessToken string) (adapter.StorageAdapter, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	client := oauth2.NewClient(ctx, src)

	storage, err := NewDriveAdapter(ctx, client, p.folderID, p.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}
	return storage, nil
}
