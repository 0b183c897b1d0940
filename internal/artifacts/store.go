// Package artifacts implements the versioned artifact store contract:
// upload and download by (repository, version, filename), with immutable
// versions. A filesystem store backs the orchestrator's own artifact
// service; the HTTP store speaks the same contract to a remote repository.
package artifacts

import (
	"context"
)

// Store is the artifact contract. Uploading an existing (repository,
// version, filename) without overwrite fails with a conflict error;
// downloading a missing artifact fails with a not-found error.
type Store interface {
	Upload(ctx context.Context, repository, version, filename string, data []byte, overwrite bool) error
	Download(ctx context.Context, repository, version, filename string) ([]byte, error)
}
