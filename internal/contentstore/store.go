package contentstore

import "context"

// Entry is one stored blob: path, content bytes and the revision token (the
// GitHub Contents API blob SHA) required to update or delete it.
type Entry struct {
	Path    string
	Content []byte
	SHA     string
}

// Store is a path-addressed blob store with optimistic concurrency. Writes to
// an existing path require its current revision token; a stale token is
// rejected by the backend and surfaced as a ConflictError.
type Store interface {
	// Get returns the entry at path, or ErrNotFound.
	Get(ctx context.Context, path string) (*Entry, error)

	// Put creates or overwrites the entry at path. The current revision token
	// is looked up internally, so a concurrent writer that lands in between
	// causes a ConflictError rather than a lost update.
	Put(ctx context.Context, path string, content []byte, message string) error

	// Delete removes the entry at path. Deleting a missing entry is a no-op.
	Delete(ctx context.Context, path string, message string) error

	// List returns the file names directly under dir, or an empty slice if
	// the directory does not exist.
	List(ctx context.Context, dir string) ([]string, error)

	// Exists reports whether an entry exists at path.
	Exists(ctx context.Context, path string) (bool, error)
}
