package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/lostfound/internal/dbx"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/dmitrijs2005/lostfound/internal/server/repositories/repomanager"
)

// ProfileUpdate holds the optional profile changes of one request. Empty
// strings mean "unchanged"; address parts merge into the stored address.
type ProfileUpdate struct {
	DisplayName string
	Address     models.Address
	Photo       *models.Upload
}

// ProfileService edits the signed-in account's own profile.
type ProfileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	media       *MediaReconciler
}

func NewProfileService(db *sql.DB, m repomanager.RepositoryManager, media *MediaReconciler) *ProfileService {
	return &ProfileService{db: db, repomanager: m, media: media}
}

// Update applies in to the account. The stored row is locked while the patch
// is computed and written, so the address merge and the replaced photo both
// come from the row this write overwrote.
func (s *ProfileService) Update(ctx context.Context, accountID string, in ProfileUpdate) (*models.Account, error) {
	var updated *models.Account
	err := s.media.Replace(ctx, in.Photo, func(ctx context.Context, blob *models.Blob) (string, error) {
		var replaced string
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Accounts(tx)

			current, err := repo.FindByIDForUpdate(ctx, accountID)
			if err != nil {
				return fmt.Errorf("load account: %w", err)
			}

			var patch models.AccountPatch
			if name := strings.TrimSpace(in.DisplayName); name != "" {
				patch.DisplayName = &name
			}
			if !in.Address.IsZero() {
				merged := current.Address.Merge(in.Address)
				patch.Address = &merged
			}
			if blob != nil {
				patch.PhotoURL = &blob.URL
				patch.PhotoRef = &blob.ID
				replaced = current.PhotoRef
			}

			if patch.IsEmpty() {
				updated = current
				return nil
			}
			updated, err = repo.Update(ctx, accountID, patch)
			return err
		})
		return replaced, err
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}
