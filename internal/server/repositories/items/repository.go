package items

import (
	"context"

	"github.com/dmitrijs2005/lostfound/internal/server/models"
)

// Repository persists item listings. Missing rows are common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, item *models.Item) (*models.Item, error)
	GetByID(ctx context.Context, id string) (*models.Item, error)
	// GetByIDForUpdate is GetByID holding a row lock; call it inside a
	// transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Item, error)
	Update(ctx context.Context, id string, patch models.ItemPatch) (*models.Item, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error)
}
