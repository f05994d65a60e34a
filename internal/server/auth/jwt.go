// Package auth issues and verifies the signed tokens used by the server:
// short-lived session tokens that carry an account id, and single-purpose
// state tokens that protect the federated login round trip.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	purposeSession = "session"
	purposeState   = "federated_state"

	stateValidityDuration = 10 * time.Minute
)

// Claims carries the standard registered claims plus the token purpose, so a
// state token can never be presented as a session token.
type Claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// TokenService signs and verifies HS256 tokens. It is stateless and safe for
// concurrent use; there is no renewal and no revocation list.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService fails when the secret is empty or the ttl is not positive,
// which callers treat as a startup failure.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token secret is not configured")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token validity must be positive, got %s", ttl)
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a session token for subjectID valid for the configured ttl.
func (s *TokenService) Issue(subjectID string) (string, error) {
	return s.sign(subjectID, purposeSession, "", s.ttl)
}

// Verify returns the subject id of a valid session token.
// Errors are common.ErrTokenExpired or common.ErrTokenMalformed.
func (s *TokenService) Verify(token string) (string, error) {
	claims, err := s.parse(token, purposeSession)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", common.ErrTokenMalformed
	}
	return claims.Subject, nil
}

// IssueState returns an opaque value for the OAuth "state" parameter.
func (s *TokenService) IssueState() (string, error) {
	nonce, err := common.MakeRandHexString(16)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTokenSigningFailure, err)
	}
	return s.sign("", purposeState, nonce, stateValidityDuration)
}

// VerifyState checks a value previously produced by IssueState.
func (s *TokenService) VerifyState(state string) error {
	_, err := s.parse(state, purposeState)
	return err
}

func (s *TokenService) sign(subject, purpose, id string, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTokenSigningFailure, err)
	}
	return tokenString, nil
}

func (s *TokenService) parse(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrTokenMalformed
	}

	if !token.Valid || claims.Purpose != purpose {
		return nil, common.ErrTokenMalformed
	}
	return claims, nil
}
