package api

import (
	"context"

	"tessera-modules-api/domain"
)

// Storage abstracts persistence for handlers. The apply and release sides are
// defined next to the logic that consumes them; handlers need both.
type Storage interface {
	domain.ApplyStore
	domain.ReleaseStore
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents repeated application of the same request.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the apply fails so the
	// client may retry.
	Remove(ctx context.Context, userID, key string) error
}
