// Package models defines server-side data models persisted in the database.
package models

import "time"

// Address is a free-form postal address. All parts are optional.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// Merge returns a copy of a with every non-empty part of other applied.
func (a Address) Merge(other Address) Address {
	if other.Street != "" {
		a.Street = other.Street
	}
	if other.City != "" {
		a.City = other.City
	}
	if other.State != "" {
		a.State = other.State
	}
	if other.Zip != "" {
		a.Zip = other.Zip
	}
	if other.Country != "" {
		a.Country = other.Country
	}
	return a
}

func (a Address) IsZero() bool { return a == Address{} }

// Account is a person known to the system. Optional identifiers are nil when
// absent; at least one of Email, PhoneNumber and FederatedID is always set.
type Account struct {
	ID           string
	DisplayName  string
	Email        *string
	PhoneNumber  *string
	PasswordHash *string
	FederatedID  *string
	Address      Address
	PhotoURL     string
	// PhotoRef is the object-store id of PhotoURL when the server uploaded it.
	// Photos supplied by the federated provider have no ref.
	PhotoRef  string
	CreatedAt time.Time
}

// HasLocalCredential reports whether the account can log in with a password.
func (a *Account) HasLocalCredential() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// PublicAccount is the client-facing view of an Account. It never carries the
// password hash or the federated id.
type PublicAccount struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	Email       string    `json:"email,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Address     *Address  `json:"address,omitempty"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (a *Account) Public() PublicAccount {
	p := PublicAccount{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		PhotoURL:    a.PhotoURL,
		CreatedAt:   a.CreatedAt,
	}
	if a.Email != nil {
		p.Email = *a.Email
	}
	if a.PhoneNumber != nil {
		p.PhoneNumber = *a.PhoneNumber
	}
	if !a.Address.IsZero() {
		addr := a.Address
		p.Address = &addr
	}
	return p
}

// AccountPatch is a partial update. Nil fields are left untouched, so
// PasswordHash and FederatedID are only written when explicitly set.
type AccountPatch struct {
	DisplayName  *string
	Email        *string
	PhoneNumber  *string
	PasswordHash *string
	FederatedID  *string
	Address      *Address
	PhotoURL     *string
	PhotoRef     *string
}

func (p AccountPatch) IsEmpty() bool {
	return p == AccountPatch{}
}
