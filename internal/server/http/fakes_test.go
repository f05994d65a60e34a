package http

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/logging"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/dmitrijs2005/lostfound/internal/server/services"
)

const validToken = "valid-token"

type fakeIdentity struct {
	signup       func(services.SignupInput) (string, *models.Account, error)
	login        func(services.LoginInput) (string, error)
	federated    func(models.FederatedProfile) (string, error)
	authenticate func(string) (*models.Account, error)
}

func (f *fakeIdentity) Signup(_ context.Context, in services.SignupInput) (string, *models.Account, error) {
	return f.signup(in)
}

func (f *fakeIdentity) Login(_ context.Context, in services.LoginInput) (string, error) {
	return f.login(in)
}

func (f *fakeIdentity) FederatedCallback(_ context.Context, p models.FederatedProfile) (string, error) {
	return f.federated(p)
}

func (f *fakeIdentity) Authenticate(_ context.Context, token string) (*models.Account, error) {
	if f.authenticate != nil {
		return f.authenticate(token)
	}
	if token != validToken {
		return nil, common.ErrUnauthenticated
	}
	return testAccount(), nil
}

func testAccount() *models.Account {
	email := "alice@example.com"
	hash := "$argon2id$secret"
	return &models.Account{ID: "acc-1", DisplayName: "alice", Email: &email, PasswordHash: &hash}
}

type fakeProfiles struct {
	got services.ProfileUpdate
	err error
}

func (f *fakeProfiles) Update(_ context.Context, accountID string, in services.ProfileUpdate) (*models.Account, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	acc := testAccount()
	acc.DisplayName = in.DisplayName
	acc.Address = in.Address
	return acc, nil
}

type fakeItems struct {
	created   *services.ItemChanges
	updated   *services.ItemChanges
	filter    models.ItemFilter
	deletedID string
	err       error
}

func (f *fakeItems) Create(_ context.Context, ownerID string, in services.ItemChanges) (*models.Item, error) {
	f.created = &in
	if f.err != nil {
		return nil, f.err
	}
	return &models.Item{ID: "item-1", OwnerID: ownerID, Type: *in.Type, Title: *in.Title}, nil
}

func (f *fakeItems) Get(_ context.Context, id string) (*models.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Item{ID: id, Title: "Wallet"}, nil
}

func (f *fakeItems) List(_ context.Context, filter models.ItemFilter) ([]*models.Item, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return []*models.Item{{ID: "item-1"}, {ID: "item-2"}}, nil
}

func (f *fakeItems) Update(_ context.Context, actorID, id string, in services.ItemChanges) (*models.Item, error) {
	f.updated = &in
	if f.err != nil {
		return nil, f.err
	}
	return &models.Item{ID: id, OwnerID: actorID}, nil
}

func (f *fakeItems) Delete(_ context.Context, actorID, id string) error {
	f.deletedID = id
	return f.err
}

type fakeProvider struct {
	profile  models.FederatedProfile
	err      error
	lastCode string
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.test/auth?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (models.FederatedProfile, error) {
	p.lastCode = code
	return p.profile, p.err
}

type fakeStates struct {
	state     string
	issueErr  error
	verifyErr error
}

func (s *fakeStates) IssueState() (string, error) { return s.state, s.issueErr }

func (s *fakeStates) VerifyState(state string) error {
	if s.verifyErr != nil {
		return s.verifyErr
	}
	if state != s.state {
		return common.ErrTokenMalformed
	}
	return nil
}

type testEnv struct {
	identity *fakeIdentity
	profiles *fakeProfiles
	items    *fakeItems
	provider *fakeProvider
	states   *fakeStates
	handler  *Handler
	router   http.Handler
}

func defaultOptions() Options {
	return Options{ClientURL: "http://client.test", MaxUploadBytes: 1 << 10}
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		identity: &fakeIdentity{},
		profiles: &fakeProfiles{},
		items:    &fakeItems{},
		provider: &fakeProvider{},
		states:   &fakeStates{state: "state-1"},
	}
	env.handler = NewHandler(env.identity, env.profiles, env.items, env.provider, env.states, logging.NewNopLogger(), opts)
	env.router = NewRouter(env.handler)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func pngBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 16)...)
}

// multipartBody builds a multipart request body with text fields and an
// optional file part.
func multipartBody(t *testing.T, fields map[string]string, fileField string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, "upload.bin")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}
