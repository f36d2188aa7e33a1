package adapter

import (
	"context"
)

// StorageProvider defines how to get a StorageAdapter acting for a user.
type StorageProvider interface {
	// GetAdapter returns a StorageAdapter authorized with the user's access token.
	GetAdapter(ctx context.Context, accessToken string) (StorageAdapter, error)
}
