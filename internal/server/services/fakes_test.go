package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/notify"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/roles"
	"github.com/dmitrijs2005/accountkeeper/internal/timex"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// --- store: in-memory repositories shared by the fakes ---

type store struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	roles    map[int64]models.Role
	tokens   map[string]models.ResetToken
	nextID   int
	failOn   map[string]error
}

func newStore() *store {
	st := &store{
		accounts: map[string]models.Account{},
		roles:    map[int64]models.Role{},
		tokens:   map[string]models.ResetToken{},
		failOn:   map[string]error{},
	}
	for i, name := range []string{models.RoleNameAdmin, models.RoleNameManager, "AGENT", models.RoleNameViewer} {
		r := models.NewRole(int64(i+1), name, true)
		st.roles[r.ID] = r
	}
	return st
}

const (
	roleAdmin   int64 = 1
	roleManager int64 = 2
	roleAgent   int64 = 3
)

func (st *store) fail(op string) error {
	return st.failOn[op]
}

func (st *store) put(acc models.Account) models.Account {
	st.mu.Lock()
	defer st.mu.Unlock()
	if acc.ID == "" {
		st.nextID++
		acc.ID = fmt.Sprintf("acc-%d", st.nextID)
	}
	acc.Role = st.roles[acc.RoleID]
	st.accounts[acc.ID] = acc
	return acc
}

func (st *store) get(id string) models.Account {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.accounts[id]
}

// --- accounts ---

type fakeAccounts struct{ st *store }

var _ accounts.Repository = fakeAccounts{}

func (f fakeAccounts) Create(ctx context.Context, acc *models.Account) (*models.Account, error) {
	if err := f.st.fail("Create"); err != nil {
		return nil, err
	}
	stored := f.st.put(*acc)
	return &stored, nil
}

func (f fakeAccounts) byID(id string) (*models.Account, error) {
	if err := f.st.fail("Get"); err != nil {
		return nil, err
	}
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	acc, ok := f.st.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &acc, nil
}

func (f fakeAccounts) byEmail(email string) (*models.Account, error) {
	if err := f.st.fail("Get"); err != nil {
		return nil, err
	}
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, acc := range f.st.accounts {
		if acc.Email == email {
			return &acc, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return f.byID(id)
}

func (f fakeAccounts) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return f.byEmail(email)
}

func (f fakeAccounts) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return f.byID(id)
}

func (f fakeAccounts) GetByEmailForUpdate(ctx context.Context, email string) (*models.Account, error) {
	return f.byEmail(email)
}

func (f fakeAccounts) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.byEmail(email)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f fakeAccounts) Update(ctx context.Context, acc *models.Account) error {
	if err := f.st.fail("Update"); err != nil {
		return err
	}
	cur, err := f.byID(acc.ID)
	if err != nil {
		return err
	}
	cur.Name, cur.Email, cur.RoleID, cur.Active = acc.Name, acc.Email, acc.RoleID, acc.Active
	f.st.put(*cur)
	return nil
}

func (f fakeAccounts) SaveSecurityState(ctx context.Context, acc *models.Account) error {
	if err := f.st.fail("SaveSecurityState"); err != nil {
		return err
	}
	cur, err := f.byID(acc.ID)
	if err != nil {
		return err
	}
	cur.FailedLoginCount, cur.LockedUntil, cur.LastAccessAt = acc.FailedLoginCount, acc.LockedUntil, acc.LastAccessAt
	f.st.put(*cur)
	return nil
}

func (f fakeAccounts) UpdateCredential(ctx context.Context, id string, hash string) error {
	if err := f.st.fail("UpdateCredential"); err != nil {
		return err
	}
	cur, err := f.byID(id)
	if err != nil {
		return err
	}
	cur.CredentialHash = hash
	f.st.put(*cur)
	return nil
}

func (f fakeAccounts) SetActive(ctx context.Context, id string, active bool) error {
	cur, err := f.byID(id)
	if err != nil {
		return err
	}
	cur.Active = active
	f.st.put(*cur)
	return nil
}

func (f fakeAccounts) filter(keep func(models.Account) bool) ([]models.Account, error) {
	if err := f.st.fail("List"); err != nil {
		return nil, err
	}
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	out := []models.Account{}
	for _, a := range f.st.accounts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeAccounts) List(ctx context.Context) ([]models.Account, error) {
	return f.filter(func(models.Account) bool { return true })
}

func (f fakeAccounts) ListByRole(ctx context.Context, roleID int64) ([]models.Account, error) {
	return f.filter(func(a models.Account) bool { return a.RoleID == roleID && a.Active })
}

func (f fakeAccounts) SearchByName(ctx context.Context, fragment string) ([]models.Account, error) {
	return f.filter(func(a models.Account) bool {
		return strings.Contains(strings.ToLower(a.Name), strings.ToLower(fragment))
	})
}

func (f fakeAccounts) ListLocked(ctx context.Context, now time.Time) ([]models.Account, error) {
	return f.filter(func(a models.Account) bool { return a.LockedUntil != nil && a.LockedUntil.After(now) })
}

func (f fakeAccounts) ListWithFailedAttempts(ctx context.Context, min int) ([]models.Account, error) {
	return f.filter(func(a models.Account) bool { return a.FailedLoginCount >= min })
}

func (f fakeAccounts) Stats(ctx context.Context, now time.Time) (models.AccountStats, error) {
	all, err := f.List(ctx)
	if err != nil {
		return models.AccountStats{}, err
	}
	var s models.AccountStats
	for _, a := range all {
		s.Total++
		if a.Active {
			s.Active++
		} else {
			s.Inactive++
		}
		if a.LockedUntil != nil && a.LockedUntil.After(now) {
			s.Locked++
		}
	}
	return s, nil
}

func (f fakeAccounts) CountOtherActiveAdmins(ctx context.Context, excludeID string) (int, error) {
	if err := f.st.fail("CountOtherActiveAdmins"); err != nil {
		return 0, err
	}
	list, _ := f.filter(func(a models.Account) bool { return a.Active && a.IsAdmin() && a.ID != excludeID })
	return len(list), nil
}

// --- roles ---

type fakeRoles struct{ st *store }

var _ roles.Repository = fakeRoles{}

func (f fakeRoles) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	r, ok := f.st.roles[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &r, nil
}

func (f fakeRoles) GetByName(ctx context.Context, name string) (*models.Role, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, r := range f.st.roles {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeRoles) List(ctx context.Context) ([]models.Role, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	out := make([]models.Role, 0, len(f.st.roles))
	for _, r := range f.st.roles {
		out = append(out, r)
	}
	return out, nil
}

// --- reset tokens ---

type fakeTokens struct{ st *store }

var _ resettokens.Repository = fakeTokens{}

func (f fakeTokens) Create(ctx context.Context, tok *models.ResetToken) (*models.ResetToken, error) {
	if err := f.st.fail("TokenCreate"); err != nil {
		return nil, err
	}
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	tok.ID = fmt.Sprintf("tok-%d", len(f.st.tokens)+1)
	stored := *tok
	stored.Token = ""
	f.st.tokens[tok.TokenHash] = stored
	return tok, nil
}

func (f fakeTokens) GetByHash(ctx context.Context, hash string) (*models.ResetToken, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	t, ok := f.st.tokens[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (f fakeTokens) GetByHashForUpdate(ctx context.Context, hash string) (*models.ResetToken, error) {
	return f.GetByHash(ctx, hash)
}

func (f fakeTokens) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	if err := f.st.fail("MarkUsed"); err != nil {
		return err
	}
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for h, t := range f.st.tokens {
		if t.ID == id {
			if t.Used {
				return common.ErrTokenAlreadyUsed
			}
			t.Used, t.UsedAt = true, &usedAt
			f.st.tokens[h] = t
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f fakeTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var n int64
	for h, t := range f.st.tokens {
		if t.ExpiresAt.Before(before) {
			delete(f.st.tokens, h)
			n++
		}
	}
	return n, nil
}

// --- manager ---

type fakeRepoManager struct{ st *store }

func (m fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return fakeAccounts{m.st} }
func (m fakeRepoManager) Roles(dbx.DBTX) roles.Repository              { return fakeRoles{m.st} }
func (m fakeRepoManager) ResetTokens(dbx.DBTX) resettokens.Repository  { return fakeTokens{m.st} }

// --- hasher: reversible so tests can assert on stored hashes ---

type fakeHasher struct {
	verifyErr error
}

func (fakeHasher) Hash(p []byte) (string, error) { return "hash:" + string(p), nil }

func (h fakeHasher) Verify(hash string, candidate []byte) (bool, error) {
	if h.verifyErr != nil {
		return false, h.verifyErr
	}
	return hash == "hash:"+string(candidate), nil
}

// --- publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// --- harness ---

type harness struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	st    *store
	clock *timex.FixedClock
	pub   *recordingPublisher
	deps  Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		db:    db,
		mock:  mock,
		st:    newStore(),
		clock: timex.NewFixedClock(t0),
		pub:   &recordingPublisher{},
	}
	h.deps = Deps{
		DB:          db,
		RepoManager: fakeRepoManager{h.st},
		Hasher:      fakeHasher{},
		Clock:       h.clock,
		Publisher:   h.pub,
	}
	return h
}

func (h *harness) expectCommit() {
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()
}

func (h *harness) expectRollback() {
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
}

func (h *harness) addAccount(name, email string, roleID int64, active bool) models.Account {
	return h.st.put(models.Account{
		Name:           name,
		Email:          email,
		CredentialHash: "hash:correct-horse",
		RoleID:         roleID,
		Active:         active,
		CreatedAt:      t0.Add(-24 * time.Hour),
	})
}

func actorCtx(acc models.Account) context.Context {
	return WithActor(context.Background(), Actor{AccountID: acc.ID, Role: acc.Role})
}
