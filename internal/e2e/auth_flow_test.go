package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/examdesk/examdesk/internal/accounts"
	"github.com/examdesk/examdesk/internal/app"
	"github.com/examdesk/examdesk/internal/authn"
	"github.com/examdesk/examdesk/internal/authz"
	"github.com/examdesk/examdesk/internal/observability"
	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/roles"
	"github.com/examdesk/examdesk/internal/shared"
	_ "github.com/examdesk/examdesk/internal/testing/guard"
)

type memAccounts struct {
	byID   map[int64]*accounts.Account
	nextID int64
}

func (m *memAccounts) FindByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	for _, acct := range m.byID {
		if acct.Email == email {
			clone := *acct
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memAccounts) FindByID(ctx context.Context, id int64) (*accounts.Account, error) {
	acct, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *acct
	return &clone, nil
}

func (m *memAccounts) List(ctx context.Context, limit, offset int) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, acct := range m.byID {
		out = append(out, *acct)
	}
	return out, nil
}

func (m *memAccounts) Count(ctx context.Context) (int, error) { return len(m.byID), nil }

func (m *memAccounts) Create(ctx context.Context, acct *accounts.Account) error {
	m.nextID++
	acct.ID = m.nextID
	clone := *acct
	m.byID[acct.ID] = &clone
	return nil
}

func (m *memAccounts) Update(ctx context.Context, acct *accounts.Account) error {
	if _, ok := m.byID[acct.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *acct
	m.byID[acct.ID] = &clone
	return nil
}

func (m *memAccounts) SetStatus(ctx context.Context, id int64, status accounts.Status) error {
	acct, ok := m.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	acct.Status = status
	return nil
}

func (m *memAccounts) TouchLastLogin(ctx context.Context, id int64) error { return nil }

type memRoles struct {
	byID   map[int64]*roles.Role
	nextID int64
}

func (m *memRoles) List(ctx context.Context) ([]roles.Role, error) {
	var out []roles.Role
	for _, role := range m.byID {
		out = append(out, *role)
	}
	return out, nil
}

func (m *memRoles) Get(ctx context.Context, id int64) (*roles.Role, error) {
	role, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *role
	return &clone, nil
}

func (m *memRoles) Create(ctx context.Context, role *roles.Role) error {
	m.nextID++
	role.ID = m.nextID
	clone := *role
	m.byID[role.ID] = &clone
	return nil
}

func (m *memRoles) Update(ctx context.Context, role *roles.Role) error {
	if _, ok := m.byID[role.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *role
	m.byID[role.ID] = &clone
	return nil
}

func (m *memRoles) Delete(ctx context.Context, id int64) (int, error) {
	if _, ok := m.byID[id]; !ok {
		return 0, shared.ErrNotFound
	}
	delete(m.byID, id)
	return 0, nil
}

type actorSource struct {
	accounts *accounts.Service
}

func (s actorSource) LoadActor(ctx context.Context, id int64) (authz.Actor, error) {
	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return authz.Actor{}, err
	}
	matrix, err := s.accounts.EffectivePermissions(ctx, acct)
	if err != nil {
		return authz.Actor{}, err
	}
	return authz.Actor{
		ID:             acct.ID,
		Classification: acct.Classification,
		Suspended:      acct.Suspended(),
		Permissions:    matrix,
	}, nil
}

type console struct {
	server      *httptest.Server
	accountRepo *memAccounts
}

func newConsole(t *testing.T) *console {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	accountRepo := &memAccounts{byID: make(map[int64]*accounts.Account)}
	roleRepo := &memRoles{byID: make(map[int64]*roles.Role)}

	rolesService := roles.NewService(roleRepo, nil, logger)
	accountsService := accounts.NewService(accountRepo, rolesService, nil, logger)

	tokens := authn.NewTokenManager("e2e-secret", time.Hour)
	denylist := authn.NewDenylist(redisClient, time.Hour)
	authService := authn.NewService(accountsService, tokens, denylist, nil, nil, nil, logger)

	guard := authz.NewGuard(authz.GuardConfig{
		Tokens:             tokens,
		Actors:             actorSource{accounts: accountsService},
		Revoked:            denylist,
		Logger:             logger,
		SuperadminFallback: true,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		AuthHandler:     authn.NewHandler(logger, authService, guard),
		AccountsHandler: accounts.NewHandler(logger, accountsService, guard, authService),
		RolesHandler:    roles.NewHandler(logger, rolesService, guard),
		Metrics:         observability.NewMetrics(),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &console{server: server, accountRepo: accountRepo}
}

func (c *console) seedAccount(t *testing.T, email, password string, classification perms.Classification, custom perms.Matrix) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	acct := &accounts.Account{
		Email:          email,
		Name:           "Seeded",
		PasswordHash:   string(hash),
		Classification: classification,
		Custom:         custom,
		Status:         accounts.StatusActive,
	}
	if err := c.accountRepo.Create(context.Background(), acct); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acct.ID
}

func (c *console) login(t *testing.T, email, password string) (string, int) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	res, err := http.Post(c.server.URL+"/admin-accounts/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", res.StatusCode
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return payload.Token, res.StatusCode
}

func (c *console) request(t *testing.T, method, path, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, c.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestLoginAndPermissionEnforcement(t *testing.T) {
	c := newConsole(t)
	c.seedAccount(t, "root@examdesk.local", "root-password", perms.ClassificationSuperadmin, nil)
	c.seedAccount(t, "editor@examdesk.local", "editor-password", perms.ClassificationSubadmin, perms.Matrix{
		perms.ModuleBlogs: {View: true},
	})

	rootToken, status := c.login(t, "root@examdesk.local", "root-password")
	if status != http.StatusOK {
		t.Fatalf("superadmin login failed: %d", status)
	}
	editorToken, status := c.login(t, "editor@examdesk.local", "editor-password")
	if status != http.StatusOK {
		t.Fatalf("editor login failed: %d", status)
	}

	// The superadmin can list accounts; the editor lacks role_management.
	if res := c.request(t, http.MethodGet, "/admin-accounts", rootToken, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("superadmin list: %d", res.StatusCode)
	}
	if res := c.request(t, http.MethodGet, "/admin-accounts", editorToken, nil); res.StatusCode != http.StatusForbidden {
		t.Fatalf("editor list should be forbidden, got %d", res.StatusCode)
	}

	// Both can read their own profile.
	if res := c.request(t, http.MethodGet, "/admin-accounts/me", editorToken, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("editor /me: %d", res.StatusCode)
	}

	// No token at all is a 401.
	if res := c.request(t, http.MethodGet, "/admin-accounts", "", nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous list should be 401, got %d", res.StatusCode)
	}
}

func TestSuspensionRevokesOutstandingTokens(t *testing.T) {
	c := newConsole(t)
	c.seedAccount(t, "root@examdesk.local", "root-password", perms.ClassificationSuperadmin, nil)
	editorID := c.seedAccount(t, "editor@examdesk.local", "editor-password", perms.ClassificationSubadmin, perms.Matrix{
		perms.ModuleBlogs: {View: true},
	})

	rootToken, _ := c.login(t, "root@examdesk.local", "root-password")
	editorToken, _ := c.login(t, "editor@examdesk.local", "editor-password")

	if res := c.request(t, http.MethodGet, "/admin-accounts/me", editorToken, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("editor /me before suspension: %d", res.StatusCode)
	}

	body := []byte(`{"status":"suspended"}`)
	path := "/admin-accounts/" + strconv.FormatInt(editorID, 10) + "/status"
	if res := c.request(t, http.MethodPut, path, rootToken, body); res.StatusCode != http.StatusOK {
		t.Fatalf("suspend: %d", res.StatusCode)
	}

	// The outstanding token dies immediately, before its natural expiry.
	if res := c.request(t, http.MethodGet, "/admin-accounts/me", editorToken, nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("suspended editor token should be 401, got %d", res.StatusCode)
	}

	// A fresh login is refused outright.
	if _, status := c.login(t, "editor@examdesk.local", "editor-password"); status != http.StatusForbidden {
		t.Fatalf("suspended login should be 403, got %d", status)
	}
}
