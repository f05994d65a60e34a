// Package items provides PostgreSQL-backed persistence for lost and found
// listings.
package items

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

const itemColumns = `id, owner_id, type, title, description, location, date_lost_or_found,
	image_url, image_public_id, created_at`

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresRepository implements item storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts item and fills in the generated id and creation time.
func (r *PostgresRepository) Create(ctx context.Context, item *models.Item) (*models.Item, error) {
	query := `
		INSERT INTO items (owner_id, type, title, description, location, date_lost_or_found, image_url, image_public_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		item.OwnerID, string(item.Type), item.Title, item.Description, item.Location,
		item.DateLostOrFound, item.ImageURL, item.ImagePublicID,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return item, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	return r.getOne(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
}

// GetByIDForUpdate reads the item and row-locks it until the surrounding
// transaction ends.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Item, error) {
	return r.getOne(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query, id string) (*models.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

// Update applies the non-nil fields of patch. An empty patch is a plain read.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch models.ItemPatch) (*models.Item, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Type != nil {
		set("type", string(*patch.Type))
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Location != nil {
		set("location", *patch.Location)
	}
	if patch.DateLostOrFound != nil {
		set("date_lost_or_found", *patch.DateLostOrFound)
	}
	if patch.ImageURL != nil {
		set("image_url", *patch.ImageURL)
	}
	if patch.ImagePublicID != nil {
		set("image_public_id", *patch.ImagePublicID)
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE items SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), itemColumns)

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, classify(err)
	}
	return item, nil
}

// Delete removes the item. Exactly one row must be affected.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// List returns the newest items matching filter. Query is a case-insensitive
// substring match on title or description.
func (r *PostgresRepository) List(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	result := []*models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.Item, error) {
	var (
		item     models.Item
		itemType string
	)
	if err := s.Scan(
		&item.ID, &item.OwnerID, &itemType, &item.Title, &item.Description, &item.Location,
		&item.DateLostOrFound, &item.ImageURL, &item.ImagePublicID, &item.CreatedAt,
	); err != nil {
		return nil, err
	}
	item.Type = models.ItemType(itemType)
	return &item, nil
}

func classify(err error) error {
	if dbx.IsIntegrityViolation(err) {
		return common.NewValidationError("item", "Item failed storage validation")
	}
	return fmt.Errorf("db error: %w", err)
}
