package archive

import (
	"context"
	"io"
	"time"

	"github.com/OpenNSW/fito/internal/archive/drivers"
)

// ErrNotFound is returned when no object is stored under a key.
var ErrNotFound = drivers.ErrObjectNotFound

// StorageDriver defines how generated certificates are kept
type StorageDriver interface {
	// Save writes the content under key
	Save(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get returns a ReadCloser to stream the object back and its content type
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes the object
	Delete(ctx context.Context, key string) error

	// GenerateURL returns a public-facing URL
	GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
