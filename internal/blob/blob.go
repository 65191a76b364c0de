// Package blob stores task and profile images outside the database.
package blob

import "context"

// Store is the blob store used for uploaded images.
// Delete succeeds when the object is already absent.
type Store interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	DownloadURL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}
