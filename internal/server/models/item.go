package models

import "time"

type ItemType string

const (
	ItemLost  ItemType = "lost"
	ItemFound ItemType = "found"
)

func (t ItemType) Valid() bool {
	return t == ItemLost || t == ItemFound
}

// Item is a lost or found listing owned by an account.
type Item struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"user"`
	Type            ItemType  `json:"type"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	DateLostOrFound time.Time `json:"dateLostOrFound"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	ImagePublicID   string    `json:"imagePublicId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ItemPatch is a partial update; nil fields are left untouched.
type ItemPatch struct {
	Type            *ItemType
	Title           *string
	Description     *string
	Location        *string
	DateLostOrFound *time.Time
	ImageURL        *string
	ImagePublicID   *string
}

// ItemFilter narrows a listing. Zero values match everything.
type ItemFilter struct {
	Type  ItemType
	Query string
	Limit int
}
