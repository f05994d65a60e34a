package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/dbx"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/dmitrijs2005/lostfound/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 1000
)

// ItemChanges describes a new item (all fields required) or an edit (nil
// fields unchanged). Image is an optional new picture.
type ItemChanges struct {
	Type            *models.ItemType
	Title           *string
	Description     *string
	Location        *string
	DateLostOrFound *time.Time
	Image           *models.Upload
}

// ItemService manages lost and found listings and their pictures.
type ItemService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	media       *MediaReconciler
}

func NewItemService(db *sql.DB, m repomanager.RepositoryManager, media *MediaReconciler) *ItemService {
	return &ItemService{db: db, repomanager: m, media: media}
}

func (s *ItemService) Create(ctx context.Context, ownerID string, in ItemChanges) (*models.Item, error) {
	if err := validateItem(in, true); err != nil {
		return nil, err
	}

	item := &models.Item{
		OwnerID:         ownerID,
		Type:            *in.Type,
		Title:           strings.TrimSpace(*in.Title),
		Description:     *in.Description,
		Location:        strings.TrimSpace(*in.Location),
		DateLostOrFound: *in.DateLostOrFound,
	}

	var created *models.Item
	err := s.media.Create(ctx, in.Image, func(ctx context.Context, blob *models.Blob) error {
		if blob != nil {
			item.ImageURL = blob.URL
			item.ImagePublicID = blob.ID
		}
		var err error
		created, err = s.repomanager.Items(s.db).Create(ctx, item)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return created, nil
}

// Get returns an item; malformed ids are reported as not found.
func (s *ItemService) Get(ctx context.Context, id string) (*models.Item, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Items(s.db).GetByID(ctx, id)
}

func (s *ItemService) List(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, common.NewValidationError("type", "Type must be 'lost' or 'found'")
	}
	return s.repomanager.Items(s.db).List(ctx, filter)
}

// Update edits an item owned by actorID. The row is locked for the write so
// the image it replaces is the one the stored row held.
func (s *ItemService) Update(ctx context.Context, actorID, id string, in ItemChanges) (*models.Item, error) {
	if _, err := s.owned(ctx, actorID, id); err != nil {
		return nil, err
	}
	if err := validateItem(in, false); err != nil {
		return nil, err
	}

	patch := models.ItemPatch{
		Type:            in.Type,
		Description:     in.Description,
		DateLostOrFound: in.DateLostOrFound,
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		patch.Title = &title
	}
	if in.Location != nil {
		loc := strings.TrimSpace(*in.Location)
		patch.Location = &loc
	}

	var updated *models.Item
	err := s.media.Replace(ctx, in.Image, func(ctx context.Context, blob *models.Blob) (string, error) {
		var replaced string
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Items(tx)

			current, err := repo.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if blob != nil {
				patch.ImageURL = &blob.URL
				patch.ImagePublicID = &blob.ID
				replaced = current.ImagePublicID
			}
			updated, err = repo.Update(ctx, id, patch)
			return err
		})
		return replaced, err
	})
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return updated, nil
}

// Delete removes an item owned by actorID, then the picture the deleted row
// referenced.
func (s *ItemService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.owned(ctx, actorID, id); err != nil {
		return err
	}

	var imageID string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Items(tx)

		current, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		imageID = current.ImagePublicID
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	s.media.Discard(ctx, imageID, "item deleted")
	return nil
}

func (s *ItemService) owned(ctx context.Context, actorID, id string) (*models.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load item: %w", err)
	}
	if item.OwnerID != actorID {
		return nil, common.ErrForbidden
	}
	return item, nil
}

// validateItem checks field rules; complete demands every required field.
func validateItem(in ItemChanges, complete bool) error {
	v := &common.ValidationError{}

	switch {
	case in.Type == nil:
		if complete {
			v.Add("type", "Please specify if the item is lost or found")
		}
	case !in.Type.Valid():
		v.Add("type", "Please specify if the item is lost or found")
	}

	checkText(v, in.Title, complete, "title", "Please add a title", maxTitleLength, "Title cannot be more than 100 characters")
	checkText(v, in.Description, complete, "description", "Please add a description", maxDescriptionLength, "Description cannot be more than 1000 characters")
	checkText(v, in.Location, complete, "location", "Please add a location", 0, "")

	if in.DateLostOrFound == nil && complete {
		v.Add("dateLostOrFound", "Please add the date the item was lost or found")
	}

	if v.Empty() {
		return nil
	}
	return v
}

func checkText(v *common.ValidationError, value *string, complete bool, field, missing string, max int, tooLong string) {
	if value == nil {
		if complete {
			v.Add(field, missing)
		}
		return
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		v.Add(field, missing)
		return
	}
	if max > 0 && utf8.RuneCountInString(trimmed) > max {
		v.Add(field, tooLong)
	}
}
