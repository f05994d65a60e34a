// Package identity models the contact points a person can sign in with.
package identity

import (
	"regexp"
	"strings"

	"github.com/dmitrijs2005/lostfound/internal/common"
)

// Kind tells which contact point an Identifier holds.
type Kind int

const (
	KindEmail Kind = iota + 1
	KindPhone
)

func (k Kind) String() string {
	switch k {
	case KindEmail:
		return "email"
	case KindPhone:
		return "phoneNumber"
	default:
		return "unknown"
	}
}

var emailPattern = regexp.MustCompile(`.+@.+\..+`)

// Identifier is exactly one of an email address or a phone number, already
// normalized. The zero value is invalid.
type Identifier struct {
	kind  Kind
	value string
}

// Email builds an email identifier. The address is trimmed and lower-cased.
func Email(v string) Identifier {
	return Identifier{kind: KindEmail, value: strings.ToLower(strings.TrimSpace(v))}
}

// Phone builds a phone identifier from a trimmed number.
func Phone(v string) Identifier {
	return Identifier{kind: KindPhone, value: strings.TrimSpace(v)}
}

func (id Identifier) Kind() Kind     { return id.kind }
func (id Identifier) Value() string  { return id.value }
func (id Identifier) IsZero() bool   { return id.kind == 0 || id.value == "" }
func (id Identifier) String() string { return id.kind.String() + ":" + id.value }

// Validate checks the format rules for the identifier kind.
func (id Identifier) Validate() error {
	if id.IsZero() {
		return common.NewValidationError(id.kind.String(), "Please provide email or phone number, and a password")
	}
	if id.kind == KindEmail && !emailPattern.MatchString(id.value) {
		return common.NewValidationError("email", "Please fill a valid email address")
	}
	return nil
}

// Resolve picks the identifier a login request refers to. Email wins when
// both are supplied; blank values count as absent.
func Resolve(email, phone string) (Identifier, bool) {
	if e := Email(email); !e.IsZero() {
		return e, true
	}
	if p := Phone(phone); !p.IsZero() {
		return p, true
	}
	return Identifier{}, false
}

// All returns every identifier supplied, in email, phone order.
func All(email, phone string) []Identifier {
	var ids []Identifier
	if e := Email(email); !e.IsZero() {
		ids = append(ids, e)
	}
	if p := Phone(phone); !p.IsZero() {
		ids = append(ids, p)
	}
	return ids
}

// LocalPart returns the part of an email identifier before "@", or "".
func (id Identifier) LocalPart() string {
	if id.kind != KindEmail {
		return ""
	}
	local, _, _ := strings.Cut(id.value, "@")
	return local
}
