package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/dbx"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/dmitrijs2005/lostfound/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/lostfound/internal/server/repositories/items"
	_ "modernc.org/sqlite"
)

// --- accounts ---

type memAccounts struct {
	mu   sync.Mutex
	rows map[string]models.Account
	seq  int

	updateErr error

	// afterFindByEmail runs once, outside the lock, to interleave another
	// request between a lookup and the write that follows it.
	afterFindByEmail func()

	findByEmailCalls int
	updates          int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[string]models.Account{}}
}

var _ accounts.Repository = (*memAccounts)(nil)

func (m *memAccounts) find(match func(a models.Account) bool) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if match(a) {
			cp := a
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func eq(p *string, v string) bool { return p != nil && *p == v }

func (m *memAccounts) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	m.findByEmailCalls++
	hook := m.afterFindByEmail
	m.afterFindByEmail = nil
	m.mu.Unlock()

	a, err := m.find(func(a models.Account) bool { return eq(a.Email, email) })
	if hook != nil {
		hook()
	}
	return a, err
}

func (m *memAccounts) FindByPhone(ctx context.Context, phone string) (*models.Account, error) {
	return m.find(func(a models.Account) bool { return eq(a.PhoneNumber, phone) })
}

func (m *memAccounts) FindByFederatedID(ctx context.Context, id string) (*models.Account, error) {
	return m.find(func(a models.Account) bool { return eq(a.FederatedID, id) })
}

func (m *memAccounts) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return m.find(func(a models.Account) bool { return a.ID == id })
}

func (m *memAccounts) FindByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return m.FindByID(ctx, id)
}

// conflict mimics the unique constraints; nulls never collide.
func (m *memAccounts) conflict(self string, a models.Account) error {
	for _, other := range m.rows {
		if other.ID == self {
			continue
		}
		if a.Email != nil && eq(other.Email, *a.Email) {
			return &common.DuplicateIdentifierError{Field: "email", Value: *a.Email}
		}
		if a.PhoneNumber != nil && eq(other.PhoneNumber, *a.PhoneNumber) {
			return &common.DuplicateIdentifierError{Field: "phoneNumber", Value: *a.PhoneNumber}
		}
		if a.FederatedID != nil && eq(other.FederatedID, *a.FederatedID) {
			return &common.DuplicateIdentifierError{Field: "federatedId"}
		}
	}
	return nil
}

func (m *memAccounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Email == nil && a.PhoneNumber == nil && a.FederatedID == nil {
		return nil, common.NewValidationError("identifier", "no identifier")
	}
	if err := m.conflict("", *a); err != nil {
		return nil, err
	}
	m.seq++
	a.ID = fmt.Sprintf("acc-%d", m.seq)
	a.CreatedAt = time.Date(2025, 1, 1, 0, 0, m.seq, 0, time.UTC)
	m.rows[a.ID] = *a
	cp := *a
	return &cp, nil
}

func (m *memAccounts) Update(ctx context.Context, id string, p models.AccountPatch) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	a, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if p.DisplayName != nil {
		a.DisplayName = *p.DisplayName
	}
	if p.Email != nil {
		a.Email = p.Email
	}
	if p.PhoneNumber != nil {
		a.PhoneNumber = p.PhoneNumber
	}
	if p.PasswordHash != nil {
		a.PasswordHash = p.PasswordHash
	}
	if p.FederatedID != nil {
		a.FederatedID = p.FederatedID
	}
	if p.Address != nil {
		a.Address = *p.Address
	}
	if p.PhotoURL != nil {
		a.PhotoURL = *p.PhotoURL
	}
	if p.PhotoRef != nil {
		a.PhotoRef = *p.PhotoRef
	}
	if err := m.conflict(id, a); err != nil {
		return nil, err
	}
	m.updates++
	m.rows[id] = a
	cp := a
	return &cp, nil
}

// LinkFederatedID is conditional like the production statement.
func (m *memAccounts) LinkFederatedID(ctx context.Context, id, federatedID string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	a, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if a.FederatedID != nil && *a.FederatedID != federatedID {
		return nil, &common.IdentifierTakenError{Kind: "email"}
	}
	a.FederatedID = &federatedID
	if err := m.conflict(id, a); err != nil {
		return nil, err
	}
	m.updates++
	m.rows[id] = a
	cp := a
	return &cp, nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// --- items ---

type memItems struct {
	mu   sync.Mutex
	rows map[string]models.Item
	seq  int

	createErr error
	updateErr error

	lockedReads int
}

func newMemItems() *memItems {
	return &memItems{rows: map[string]models.Item{}}
}

var _ items.Repository = (*memItems)(nil)

// item ids must parse as UUIDs for ItemService.Get
func itemID(n int) string { return fmt.Sprintf("00000000-0000-0000-0000-%012d", n) }

func (m *memItems) Create(ctx context.Context, it *models.Item) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.seq++
	it.ID = itemID(m.seq)
	it.CreatedAt = time.Date(2025, 1, 1, 0, 0, m.seq, 0, time.UTC)
	m.rows[it.ID] = *it
	cp := *it
	return &cp, nil
}

func (m *memItems) GetByID(ctx context.Context, id string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &it, nil
}

func (m *memItems) GetByIDForUpdate(ctx context.Context, id string) (*models.Item, error) {
	m.mu.Lock()
	m.lockedReads++
	m.mu.Unlock()
	return m.GetByID(ctx, id)
}

func (m *memItems) Update(ctx context.Context, id string, p models.ItemPatch) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	it, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if p.Type != nil {
		it.Type = *p.Type
	}
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.Location != nil {
		it.Location = *p.Location
	}
	if p.DateLostOrFound != nil {
		it.DateLostOrFound = *p.DateLostOrFound
	}
	if p.ImageURL != nil {
		it.ImageURL = *p.ImageURL
	}
	if p.ImagePublicID != nil {
		it.ImagePublicID = *p.ImagePublicID
	}
	m.rows[id] = it
	return &it, nil
}

func (m *memItems) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memItems) List(ctx context.Context, f models.ItemFilter) ([]*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Item{}
	for _, it := range m.rows {
		if f.Type != "" && it.Type != f.Type {
			continue
		}
		cp := it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- repo manager ---

type fakeRepoManager struct {
	accounts *memAccounts
	items    *memItems
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{accounts: newMemAccounts(), items: newMemItems()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Ping(context.Context) error                   { return nil }
func (m *fakeRepoManager) Accounts(db dbx.DBTX) accounts.Repository     { return m.accounts }
func (m *fakeRepoManager) Items(db dbx.DBTX) items.Repository           { return m.items }

// --- blob store ---

type fakeStore struct {
	mu      sync.Mutex
	blobs   map[string]bool
	seq     int
	putErr  error
	delErr  error
	deleted []string

	// afterPut runs once, outside the lock, after a successful Put.
	afterPut func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: map[string]bool{}}
}

func (s *fakeStore) Put(ctx context.Context, u models.Upload) (models.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return models.Blob{}, s.putErr
	}
	s.seq++
	id := fmt.Sprintf("blob-%d", s.seq)
	s.blobs[id] = true
	hook := s.afterPut
	s.afterPut = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.mu.Lock()
	return models.Blob{ID: id, URL: "https://cdn.test/" + id}, nil
}

// Delete is idempotent like the real store.
func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	if s.delErr != nil {
		return s.delErr
	}
	delete(s.blobs, id)
	return nil
}

func (s *fakeStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[id]
}

func (s *fakeStore) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// --- tokens ---

type failingTokens struct{ TokenIssuer }

func (failingTokens) Issue(string) (string, error) { return "", errors.New("hsm unavailable") }

// --- db ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// newTxDB returns a real database whose transactions the in-memory
// repositories ignore.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open error: %v", err)
	}
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func image() *models.Upload {
	return &models.Upload{Filename: "p.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}
