package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

const (
	adminToken    = "admin-token"
	managerToken  = "manager-token"
	viewerToken   = "viewer-token"
	inactiveToken = "inactive-token"
	brokenToken   = "broken-token"

	adminRoleID int64 = 1
)

func sampleAccount(id string) *models.Account {
	return &models.Account{
		ID:             id,
		Name:           "Ana",
		Email:          id + "@example.com",
		CredentialHash: "$2a$10$secret",
		RoleID:         2,
		Role:           models.NewRole(2, models.RoleNameManager, true),
		Active:         true,
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}
}

// fakeAccounts treats ids starting with "admin" as administrator accounts
// and refuses changes to them, or grants of adminRoleID, unless the actor in
// the context is an administrator.
type fakeAccounts struct {
	err error

	actor services.Actor

	created     services.NewAccount
	updated     services.UpdateAccount
	activeSet   *bool
	pwChangedID string
	byRole      int64
	search      string
	minFailed   int
}

func (f *fakeAccounts) authorize(ctx context.Context, id string, roleID int64) error {
	f.actor, _ = services.ActorFrom(ctx)
	if (strings.HasPrefix(id, "admin") || roleID == adminRoleID) && !f.actor.Can(models.CapAdministrator) {
		return common.ErrForbidden
	}
	return nil
}

func (f *fakeAccounts) Create(ctx context.Context, in services.NewAccount) (*models.Account, error) {
	f.created = in
	if err := f.authorize(ctx, "", in.RoleID); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return sampleAccount("new"), nil
}

func (f *fakeAccounts) Get(_ context.Context, id string) (*models.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return sampleAccount(id), nil
}

func (f *fakeAccounts) List(context.Context) ([]models.Account, error) {
	return []models.Account{*sampleAccount("a1"), *sampleAccount("a2")}, f.err
}

func (f *fakeAccounts) ListByRole(_ context.Context, roleID int64) ([]models.Account, error) {
	f.byRole = roleID
	return []models.Account{*sampleAccount("a1")}, f.err
}

func (f *fakeAccounts) SearchByName(_ context.Context, fragment string) ([]models.Account, error) {
	f.search = fragment
	return []models.Account{*sampleAccount("a1")}, f.err
}

func (f *fakeAccounts) ListLocked(context.Context) ([]models.Account, error) {
	return nil, f.err
}

func (f *fakeAccounts) ListWithFailedAttempts(_ context.Context, n int) ([]models.Account, error) {
	f.minFailed = n
	return nil, f.err
}

func (f *fakeAccounts) Stats(context.Context) (models.AccountStats, error) {
	return models.AccountStats{Total: 3, Active: 2, Inactive: 1, Locked: 1}, f.err
}

func (f *fakeAccounts) Update(ctx context.Context, id string, in services.UpdateAccount) (*models.Account, error) {
	if err := f.authorize(ctx, id, in.RoleID); err != nil {
		return nil, err
	}
	f.updated = in
	if f.err != nil {
		return nil, f.err
	}
	return sampleAccount(id), nil
}

func (f *fakeAccounts) SetActive(ctx context.Context, id string, active bool) error {
	if err := f.authorize(ctx, id, 0); err != nil {
		return err
	}
	f.activeSet = &active
	return f.err
}

func (f *fakeAccounts) ChangePassword(_ context.Context, id, _, _ string) error {
	f.pwChangedID = id
	return f.err
}

func (f *fakeAccounts) Unlock(_ context.Context, id string) (*models.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return sampleAccount(id), nil
}

type fakeAuth struct {
	loginErr error
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (*services.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.LoginResult{
		AccessToken: "jwt",
		ExpiresAt:   t0.Add(15 * time.Minute),
		Account:     sampleAccount("a1"),
	}, nil
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*services.Actor, error) {
	switch token {
	case adminToken:
		return &services.Actor{AccountID: "admin-r1", Role: models.NewRole(adminRoleID, models.RoleNameAdmin, true)}, nil
	case managerToken:
		return &services.Actor{AccountID: "m1", Role: models.NewRole(2, models.RoleNameManager, true)}, nil
	case viewerToken:
		return &services.Actor{AccountID: "v1", Role: models.NewRole(4, models.RoleNameViewer, true)}, nil
	case inactiveToken:
		return nil, common.ErrAccountInactive
	case brokenToken:
		return nil, errors.New("db down")
	default:
		return nil, common.ErrInvalidToken
	}
}

type fakeResets struct {
	err     error
	valid   bool
	email   string
	token   string
	checked string
}

func (f *fakeResets) RequestReset(_ context.Context, email string) error {
	f.email = email
	return f.err
}

func (f *fakeResets) ConfirmReset(_ context.Context, token, _ string) error {
	f.token = token
	return f.err
}

func (f *fakeResets) ValidateToken(_ context.Context, token string) (bool, error) {
	f.checked = token
	return f.valid, f.err
}

type fakeExporter struct {
	url string
	err error
}

func (f *fakeExporter) ExportAccounts(context.Context) (string, error) {
	return f.url, f.err
}

type harness struct {
	accounts *fakeAccounts
	auth     *fakeAuth
	resets   *fakeResets
	exporter *fakeExporter
	handler  http.Handler
}

func newHarness(t *testing.T, o Options) *harness {
	t.Helper()

	if o.LoginRateLimit == 0 {
		o.LoginRateLimit = 1000
		o.LoginRateBurst = 1000
	}
	if o.CORSOrigins == nil {
		o.CORSOrigins = []string{"http://localhost:3000"}
	}

	hs := &harness{
		accounts: &fakeAccounts{},
		auth:     &fakeAuth{},
		resets:   &fakeResets{},
		exporter: &fakeExporter{url: "https://s3.local/exports/x.csv?sig=1"},
	}
	h := NewHandler(hs.accounts, hs.auth, hs.resets, hs.exporter, logging.Nop{})
	h.now = func() time.Time { return t0 }
	hs.handler = NewRouter(h, o)
	return hs
}

func (hs *harness) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	hs.handler.ServeHTTP(rec, req)
	return rec
}

func (hs *harness) doRequest(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	hs.handler.ServeHTTP(rec, req)
	return rec
}
