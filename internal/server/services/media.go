package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/lostfound/internal/logging"
	"github.com/dmitrijs2005/lostfound/internal/server/blobstore"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
)

const discardTimeout = 15 * time.Second

// WriteFunc persists a new owning record. blob is nil when the request
// carried no new file.
type WriteFunc func(ctx context.Context, blob *models.Blob) error

// ReplaceFunc persists an existing record and returns the blob id the stored
// row held before the write. The id must come from the row the write locked,
// not from an earlier read.
type ReplaceFunc func(ctx context.Context, blob *models.Blob) (replaced string, err error)

// MediaReconciler keeps the object store free of blobs no record points to.
// A new blob is deleted when the record write fails, and a replaced blob is
// deleted only after the record references its successor. Deletes are best
// effort: failures are logged and never change the returned error.
type MediaReconciler struct {
	store  blobstore.Store
	logger logging.Logger
}

func NewMediaReconciler(store blobstore.Store, logger logging.Logger) *MediaReconciler {
	return &MediaReconciler{store: store, logger: logger.With("module", "media")}
}

// Create uploads the file (if any) and then runs write.
func (m *MediaReconciler) Create(ctx context.Context, upload *models.Upload, write WriteFunc) error {
	return m.Replace(ctx, upload, func(ctx context.Context, blob *models.Blob) (string, error) {
		return "", write(ctx, blob)
	})
}

// Replace uploads the file (if any), runs write, and on success discards the
// blob write reports as replaced. On write failure the new blob is discarded
// and the stored one is untouched.
func (m *MediaReconciler) Replace(ctx context.Context, upload *models.Upload, write ReplaceFunc) error {
	if upload == nil {
		_, err := write(ctx, nil)
		return err
	}

	blob, err := m.store.Put(ctx, *upload)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	replaced, err := write(ctx, &blob)
	if err != nil {
		m.Discard(ctx, blob.ID, "compensate")
		return err
	}

	if replaced != "" && replaced != blob.ID {
		m.Discard(ctx, replaced, "replaced")
	}
	return nil
}

// Discard deletes id without failing the caller. It runs detached from the
// request's cancellation so a client hang-up does not leave an orphan.
func (m *MediaReconciler) Discard(ctx context.Context, id, reason string) {
	if id == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()

	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Warn(ctx, "blob delete failed", "blob_id", id, "reason", reason, "error", err)
		return
	}
	m.logger.Debug(ctx, "blob deleted", "blob_id", id, "reason", reason)
}
