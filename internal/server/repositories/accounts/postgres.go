// Package accounts provides the PostgreSQL-backed credential store.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/dbx"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
)

const accountColumns = `id, display_name, email, phone_number, password_hash, federated_id,
	address_street, address_city, address_state, address_zip, address_country,
	photo_url, photo_ref, created_at`

// constraint name -> client-facing field name
var uniqueFields = map[string]string{
	"accounts_email_key":        "email",
	"accounts_phone_number_key": "phoneNumber",
	"accounts_federated_id_key": "federatedId",
}

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
// Uniqueness is enforced by the table constraints, so concurrent writers
// racing for the same identifier see a DuplicateIdentifierError.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, "email", email)
}

func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (*models.Account, error) {
	return r.findOne(ctx, "phone_number", phone)
}

func (r *PostgresRepository) FindByFederatedID(ctx context.Context, federatedID string) (*models.Account, error) {
	return r.findOne(ctx, "federated_id", federatedID)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, "id", id)
}

// FindByIDForUpdate reads the account and row-locks it until the surrounding
// transaction ends.
func (r *PostgresRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

// column is always one of the literals above, never user input
func (r *PostgresRepository) findOne(ctx context.Context, column, value string) (*models.Account, error) {
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+column+` = $1`, value)
}

func (r *PostgresRepository) queryOne(ctx context.Context, query, value string) (*models.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

// Create inserts account and fills in the generated id and creation time.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (display_name, email, phone_number, password_hash, federated_id,
			address_street, address_city, address_state, address_zip, address_country,
			photo_url, photo_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at`

	a := account.Address
	err := r.db.QueryRowContext(ctx, query,
		account.DisplayName, account.Email, account.PhoneNumber, account.PasswordHash, account.FederatedID,
		a.Street, a.City, a.State, a.Zip, a.Country,
		account.PhotoURL, account.PhotoRef,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return nil, classify(err, account.Email, account.PhoneNumber, account.FederatedID)
	}
	return account, nil
}

// Update applies the non-nil fields of patch and returns the stored account.
// An empty patch is a plain read.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch models.AccountPatch) (*models.Account, error) {
	if patch.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.DisplayName != nil {
		set("display_name", *patch.DisplayName)
	}
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.PhoneNumber != nil {
		set("phone_number", *patch.PhoneNumber)
	}
	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}
	if patch.FederatedID != nil {
		set("federated_id", *patch.FederatedID)
	}
	if patch.Address != nil {
		set("address_street", patch.Address.Street)
		set("address_city", patch.Address.City)
		set("address_state", patch.Address.State)
		set("address_zip", patch.Address.Zip)
		set("address_country", patch.Address.Country)
	}
	if patch.PhotoURL != nil {
		set("photo_url", *patch.PhotoURL)
	}
	if patch.PhotoRef != nil {
		set("photo_ref", *patch.PhotoRef)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE accounts SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), accountColumns)

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, classify(err, patch.Email, patch.PhoneNumber, patch.FederatedID)
	}
	return account, nil
}

// LinkFederatedID binds federatedID to the account unless the row is already
// bound to a different provider id. The check and the write are one statement,
// so of two racing links only the first succeeds; the loser gets
// *common.IdentifierTakenError.
func (r *PostgresRepository) LinkFederatedID(ctx context.Context, id, federatedID string) (*models.Account, error) {
	query := `UPDATE accounts SET federated_id = $1
		WHERE id = $2 AND (federated_id IS NULL OR federated_id = $1)
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, federatedID, id))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(err, nil, nil, &federatedID)
	}

	// no row matched: either the account is gone or it is linked elsewhere
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, &common.IdentifierTakenError{Kind: "email"}
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(
		&a.ID, &a.DisplayName, &a.Email, &a.PhoneNumber, &a.PasswordHash, &a.FederatedID,
		&a.Address.Street, &a.Address.City, &a.Address.State, &a.Address.Zip, &a.Address.Country,
		&a.PhotoURL, &a.PhotoRef, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// classify turns constraint violations into domain errors. The candidate
// values are used to echo the offending value back to the client.
func classify(err error, email, phone, federatedID *string) error {
	if constraint, ok := dbx.UniqueViolation(err); ok {
		field, known := uniqueFields[constraint]
		if !known {
			field = constraint
		}
		var value *string
		switch field {
		case "email":
			value = email
		case "phoneNumber":
			value = phone
		case "federatedId":
			value = federatedID
		}
		dup := &common.DuplicateIdentifierError{Field: field}
		// federated ids are not echoed back
		if value != nil && field != "federatedId" {
			dup.Value = *value
		}
		return dup
	}
	if dbx.IsIntegrityViolation(err) {
		return common.NewValidationError("identifier", "An account needs an email, a phone number or a federated login")
	}
	return fmt.Errorf("db error: %w", err)
}
