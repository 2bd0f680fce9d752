package ledger

import "context"

// Store persists transaction markers.
// Implementations must be safe for concurrent use.
type Store interface {
	// Exists reports whether a marker with the key was written
	Exists(ctx context.Context, key string) (bool, error)

	// Put writes a marker. Writing an existing key is not an error.
	Put(ctx context.Context, key string) error

	// Clear removes every marker
	Clear(ctx context.Context) error
}
