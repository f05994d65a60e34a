// Package services contains server-side business logic. This file implements
// IdentityService, which decides whether a signup, login or federated
// callback matches, creates or links an account, and mints session tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/dbx"
	"github.com/dmitrijs2005/lostfound/internal/logging"
	"github.com/dmitrijs2005/lostfound/internal/server/identity"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/dmitrijs2005/lostfound/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/lostfound/internal/server/repositories/repomanager"
)

const defaultDisplayName = "User"

// PasswordHasher is satisfied by *cryptox.PasswordHasher.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	NeedsRehash(digest string) bool
}

// TokenIssuer is satisfied by *auth.TokenService.
type TokenIssuer interface {
	Issue(subjectID string) (string, error)
	Verify(token string) (string, error)
}

type SignupInput struct {
	DisplayName string
	Email       string
	PhoneNumber string
	Password    string
}

type LoginInput struct {
	Email       string
	PhoneNumber string
	Password    string
}

// IdentityService resolves identities against the credential store.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      PasswordHasher
	tokens      TokenIssuer
	logger      logging.Logger

	// compared against when the identifier is unknown, so both login
	// failure paths cost one hash verification
	dummyDigest string
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, hasher PasswordHasher, tokens TokenIssuer, logger logging.Logger) (*IdentityService, error) {
	seed, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(seed)
	if err != nil {
		return nil, fmt.Errorf("dummy digest: %w", err)
	}
	return &IdentityService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		tokens:      tokens,
		logger:      logger.With("module", "identity"),
		dummyDigest: dummy,
	}, nil
}

// Signup creates an account with a local password and returns a session
// token for it.
func (s *IdentityService) Signup(ctx context.Context, in SignupInput) (string, *models.Account, error) {
	ids := identity.All(in.Email, in.PhoneNumber)
	if len(ids) == 0 || in.Password == "" {
		return "", nil, common.NewValidationError("identifier", "Please provide email or phone number, and a password")
	}
	if len(in.Password) < common.MinPasswordLength {
		return "", nil, common.NewValidationError("password", fmt.Sprintf("Password must be at least %d characters", common.MinPasswordLength))
	}
	for _, id := range ids {
		if err := id.Validate(); err != nil {
			return "", nil, err
		}
	}

	repo := s.repomanager.Accounts(s.db)

	// pre-checks give friendly messages; the unique constraints decide races
	for _, id := range ids {
		_, err := findByIdentifier(ctx, repo, id)
		switch {
		case err == nil:
			return "", nil, &common.IdentifierTakenError{Kind: takenLabel(id.Kind())}
		case !errors.Is(err, common.ErrorNotFound):
			return "", nil, fmt.Errorf("lookup %s: %w", id.Kind(), err)
		}
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PasswordHash: &digest,
	}
	var first identity.Identifier
	for i, id := range ids {
		if i == 0 {
			first = id
		}
		v := id.Value()
		switch id.Kind() {
		case identity.KindEmail:
			account.Email = &v
		case identity.KindPhone:
			account.PhoneNumber = &v
		}
	}
	if account.DisplayName == "" {
		account.DisplayName = defaultName(first.LocalPart())
	}

	created, err := repo.Create(ctx, account)
	if err != nil {
		return "", nil, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info(ctx, "account created", "account_id", created.ID, "method", "local")

	token, err := s.issue(created.ID)
	if err != nil {
		return "", created, err
	}
	return token, created, nil
}

// Login checks a local password. Unknown identifiers and wrong passwords both
// return common.ErrInvalidCredentials; only the log tells them apart.
func (s *IdentityService) Login(ctx context.Context, in LoginInput) (string, error) {
	id, ok := identity.Resolve(in.Email, in.PhoneNumber)
	if !ok || in.Password == "" {
		return "", common.NewValidationError("identifier", "Please provide email or phone number, and password")
	}

	repo := s.repomanager.Accounts(s.db)

	account, err := findByIdentifier(ctx, repo, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(in.Password, s.dummyDigest)
			s.logger.Info(ctx, "login failed: unknown identifier", "kind", id.Kind().String())
			return "", common.ErrInvalidCredentials
		}
		return "", fmt.Errorf("lookup %s: %w", id.Kind(), err)
	}

	if !account.HasLocalCredential() {
		s.logger.Info(ctx, "login failed: no local credential", "account_id", account.ID)
		return "", common.ErrNoLocalCredential
	}

	if !s.hasher.Verify(in.Password, *account.PasswordHash) {
		s.logger.Info(ctx, "login failed: password mismatch", "account_id", account.ID)
		return "", common.ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(*account.PasswordHash) {
		s.upgradeDigest(ctx, repo, account.ID, in.Password)
	}

	return s.issue(account.ID)
}

// upgradeDigest re-hashes with the current cost. Failure only costs a log
// line; the old digest keeps working.
func (s *IdentityService) upgradeDigest(ctx context.Context, repo accounts.Repository, accountID, password string) {
	digest, err := s.hasher.Hash(password)
	if err == nil {
		_, err = repo.Update(ctx, accountID, models.AccountPatch{PasswordHash: &digest})
	}
	if err != nil {
		s.logger.Warn(ctx, "password digest upgrade failed", "account_id", accountID, "error", err)
	}
}

// FederatedCallback resolves a provider profile to exactly one account:
// the one already bound to the provider id, else the one owning the same
// email (which gets linked), else a new one. The account write commits before
// the token is signed, so a signing failure never undoes or repeats it.
func (s *IdentityService) FederatedCallback(ctx context.Context, profile models.FederatedProfile) (string, error) {
	if profile.ProviderID == "" {
		return "", common.NewValidationError("federatedId", "Federated profile without provider id")
	}

	var account *models.Account
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		account, err = s.resolveFederated(ctx, s.repomanager.Accounts(tx), profile)
		return err
	})
	if err != nil {
		return "", err
	}

	return s.issue(account.ID)
}

func (s *IdentityService) resolveFederated(ctx context.Context, repo accounts.Repository, p models.FederatedProfile) (*models.Account, error) {
	account, err := repo.FindByFederatedID(ctx, p.ProviderID)
	switch {
	case err == nil:
		return s.refreshFederated(ctx, repo, account, p)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("lookup federated id: %w", err)
	}

	var email identity.Identifier
	if p.Email != "" {
		email = identity.Email(p.Email)
		account, err = repo.FindByEmail(ctx, email.Value())
		switch {
		case err == nil:
			return s.linkFederated(ctx, repo, account, p)
		case !errors.Is(err, common.ErrorNotFound):
			return nil, fmt.Errorf("lookup email: %w", err)
		}
	}

	fid := p.ProviderID
	account = &models.Account{
		DisplayName: strings.TrimSpace(p.DisplayName),
		FederatedID: &fid,
		PhotoURL:    p.PhotoURL,
	}
	if !email.IsZero() {
		v := email.Value()
		account.Email = &v
	}
	if account.DisplayName == "" {
		account.DisplayName = defaultName(email.LocalPart())
	}

	created, err := repo.Create(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("create federated account: %w", err)
	}
	s.logger.Info(ctx, "account created", "account_id", created.ID, "method", "federated")
	return created, nil
}

// refreshFederated copies the provider's current name and photo. A photo the
// user uploaded themselves is kept.
func (s *IdentityService) refreshFederated(ctx context.Context, repo accounts.Repository, account *models.Account, p models.FederatedProfile) (*models.Account, error) {
	var patch models.AccountPatch
	if name := strings.TrimSpace(p.DisplayName); name != "" && name != account.DisplayName {
		patch.DisplayName = &name
	}
	if p.PhotoURL != "" && account.PhotoRef == "" && p.PhotoURL != account.PhotoURL {
		patch.PhotoURL = &p.PhotoURL
	}
	if patch.IsEmpty() {
		return account, nil
	}

	updated, err := repo.Update(ctx, account.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("refresh federated profile: %w", err)
	}
	return updated, nil
}

// linkFederated binds the provider id to an account found by email and fills
// only the profile fields that are still empty.
func (s *IdentityService) linkFederated(ctx context.Context, repo accounts.Repository, account *models.Account, p models.FederatedProfile) (*models.Account, error) {
	if account.FederatedID != nil && *account.FederatedID != p.ProviderID {
		s.logger.Warn(ctx, "federated link refused: account bound to another provider id", "account_id", account.ID)
		return nil, &common.IdentifierTakenError{Kind: "email"}
	}

	linked, err := repo.LinkFederatedID(ctx, account.ID, p.ProviderID)
	if err != nil {
		if errors.Is(err, common.ErrIdentifierTaken) {
			s.logger.Warn(ctx, "federated link refused: account linked concurrently", "account_id", account.ID)
		}
		return nil, fmt.Errorf("link federated id: %w", err)
	}
	s.logger.Info(ctx, "federated identity linked", "account_id", linked.ID)

	var patch models.AccountPatch
	if name := strings.TrimSpace(p.DisplayName); linked.DisplayName == "" && name != "" {
		patch.DisplayName = &name
	}
	if linked.PhotoURL == "" && p.PhotoURL != "" {
		patch.PhotoURL = &p.PhotoURL
	}
	if patch.IsEmpty() {
		return linked, nil
	}

	updated, err := repo.Update(ctx, linked.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("fill linked profile: %w", err)
	}
	return updated, nil
}

// Authenticate maps a bearer token to its account. Every failure wraps
// common.ErrUnauthenticated together with the specific cause.
func (s *IdentityService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, common.ErrUnauthenticated
	}

	subject, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthenticated, err)
	}

	account, err := s.repomanager.Accounts(s.db).FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: %w", common.ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("load subject: %w", err)
	}
	return account, nil
}

func (s *IdentityService) issue(accountID string) (string, error) {
	token, err := s.tokens.Issue(accountID)
	if err != nil {
		if errors.Is(err, common.ErrTokenSigningFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", common.ErrTokenSigningFailure, err)
	}
	return token, nil
}

func findByIdentifier(ctx context.Context, repo accounts.Repository, id identity.Identifier) (*models.Account, error) {
	switch id.Kind() {
	case identity.KindEmail:
		return repo.FindByEmail(ctx, id.Value())
	case identity.KindPhone:
		return repo.FindByPhone(ctx, id.Value())
	default:
		return nil, common.ErrorNotFound
	}
}

func takenLabel(k identity.Kind) string {
	if k == identity.KindPhone {
		return "phone number"
	}
	return "email"
}

func defaultName(localPart string) string {
	if localPart != "" {
		return localPart
	}
	return defaultDisplayName
}
