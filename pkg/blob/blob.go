package blob

import "context"

// Publisher is the remote object-storage client used by the submission
// workflow.
type Publisher interface {
	// Upload publishes a local file under the given remote key.
	Upload(ctx context.Context, localPath, key string) error

	// Delete removes a single remote object. Deleting a missing key is a
	// no-op, not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object under the given remote prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}
