// Package blobstore stores user-uploaded media in an S3-compatible object
// store.
package blobstore

import (
	"context"

	"github.com/dmitrijs2005/lostfound/internal/server/models"
)

// Store is the object store seen by the rest of the server.
// Delete is idempotent: removing a missing or empty id succeeds.
type Store interface {
	Put(ctx context.Context, upload models.Upload) (models.Blob, error)
	Delete(ctx context.Context, id string) error
}
