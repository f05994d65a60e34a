package accounts

import (
	"context"

	"github.com/dmitrijs2005/lostfound/internal/server/models"
)

// Repository is the credential store. Lookups return common.ErrorNotFound
// when nothing matches; Create fails with *common.DuplicateIdentifierError
// when an identifier is already in use.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByPhone(ctx context.Context, phone string) (*models.Account, error)
	FindByFederatedID(ctx context.Context, federatedID string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	// FindByIDForUpdate is FindByID holding a row lock; call it inside a
	// transaction.
	FindByIDForUpdate(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	Update(ctx context.Context, id string, patch models.AccountPatch) (*models.Account, error)
	// LinkFederatedID sets the federated id only if the account has none or
	// already has the same one; otherwise *common.IdentifierTakenError.
	LinkFederatedID(ctx context.Context, id, federatedID string) (*models.Account, error)
}
