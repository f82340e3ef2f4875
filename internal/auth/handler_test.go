package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/vantage-kit/vantage/internal/auth"
	"github.com/vantage-kit/vantage/internal/gate"
	"github.com/vantage-kit/vantage/internal/identity"
	"github.com/vantage-kit/vantage/internal/rbac"
	"github.com/vantage-kit/vantage/internal/shared"
	_ "github.com/vantage-kit/vantage/internal/testing/guard"
)

type memIdentityRepo struct {
	mu     sync.Mutex
	users  map[int64]*identity.User
	tokens map[string]*identity.AccessToken
	nextID int64
}

func newMemIdentityRepo() *memIdentityRepo {
	return &memIdentityRepo{
		users:  make(map[int64]*identity.User),
		tokens: make(map[string]*identity.AccessToken),
		nextID: 1,
	}
}

func (m *memIdentityRepo) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == strings.ToLower(username) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memIdentityRepo) GetByID(ctx context.Context, id int64) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memIdentityRepo) ListUsers(ctx context.Context) ([]identity.User, error) {
	return nil, nil
}

func (m *memIdentityRepo) CreateUser(ctx context.Context, u identity.User) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.nextID
	m.nextID++
	u.Username = strings.ToLower(u.Username)
	m.users[u.ID] = &u
	copied := u
	return &copied, nil
}

func (m *memIdentityRepo) UpdateUser(ctx context.Context, id int64, name, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u.Name = name
	u.Email = email
	copied := *u
	return &copied, nil
}

func (m *memIdentityRepo) SetActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsActive = active
	}
	return nil
}

func (m *memIdentityRepo) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memIdentityRepo) InsertToken(ctx context.Context, t identity.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = &t
	return nil
}

func (m *memIdentityRepo) FindToken(ctx context.Context, id string) (*identity.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *memIdentityRepo) TouchToken(ctx context.Context, id string, usedAt time.Time) error {
	return nil
}

func (m *memIdentityRepo) DeleteToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *memIdentityRepo) DeleteTokensForUser(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.UserID == userID {
			delete(m.tokens, id)
		}
	}
	return nil
}

func (m *memIdentityRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// fakeGraphRepo serves fixed role and permission sets per user. The embedded
// interface panics on anything these tests never touch.
type fakeGraphRepo struct {
	rbac.Repository
	roles map[int64][]rbac.Role
	perms map[int64][]rbac.Permission
}

func (f *fakeGraphRepo) RolesForUser(ctx context.Context, userID int64) ([]rbac.Role, error) {
	return f.roles[userID], nil
}

func (f *fakeGraphRepo) PermissionsForUser(ctx context.Context, userID int64) ([]rbac.Permission, error) {
	return f.perms[userID], nil
}

func (f *fakeGraphRepo) UserHasOwnerRole(ctx context.Context, userID int64) (bool, error) {
	return false, nil
}

func (f *fakeGraphRepo) PublicPermissions(ctx context.Context) ([]rbac.Permission, error) {
	return nil, nil
}

func (f *fakeGraphRepo) AlwaysAllowPermissions(ctx context.Context) ([]rbac.Permission, error) {
	return nil, nil
}

type fixture struct {
	router    chi.Router
	identity  *identity.Service
	idRepo    *memIdentityRepo
	graphRepo *fakeGraphRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idRepo := newMemIdentityRepo()
	identitySvc := identity.NewService(idRepo, time.Hour)
	graphRepo := &fakeGraphRepo{
		roles: make(map[int64][]rbac.Role),
		perms: make(map[int64][]rbac.Permission),
	}
	resolver := rbac.NewResolver(graphRepo, nil, nil)
	graph := rbac.NewService(graphRepo, nil)
	g := gate.Gate{Identity: identitySvc, Resolver: resolver}

	// A high login limit keeps the per-IP throttle out of the way; httptest
	// requests all share one remote address.
	handler := auth.NewHandler(nil, identitySvc, resolver, graph, g, nil, 1000)
	r := chi.NewRouter()
	r.Use(g.Authenticate)
	handler.MountRoutes(r)

	return &fixture{router: r, identity: identitySvc, idRepo: idRepo, graphRepo: graphRepo}
}

func (f *fixture) registerUser(t *testing.T, username, password string, active bool) *identity.User {
	t.Helper()
	user, err := f.identity.Register(context.Background(), "Test User", username, username+"@example.com", password, active)
	require.NoError(t, err)
	f.graphRepo.roles[user.ID] = []rbac.Role{{ID: 1, Name: "viewer", DisplayName: "Viewer"}}
	f.graphRepo.perms[user.ID] = []rbac.Permission{
		{ID: 1, Key: "view:dashboard", Action: "view", Subject: "dashboard"},
	}
	return user
}

func (f *fixture) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  map[string]struct {
		Key     string `json:"key"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decode(t *testing.T, res *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &env))
	return env
}

func TestLoginReturnsTokenAndProfile(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "alice", "password1", true)

	res := f.do(http.MethodPost, "/login", `{"username":"alice","password":"password1"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)

	env := decode(t, res)
	require.True(t, env.Success)

	var data auth.LoginData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Contains(t, data.AccessToken, "|")
	require.Equal(t, "alice", data.User.Username)
	require.Equal(t, []string{"viewer"}, data.User.RoleNames)
	require.Len(t, data.Roles, 1)
	require.Len(t, data.Permissions, 1)
	require.Equal(t, "view:dashboard", data.Permissions[0].Key)
}

func TestLoginValidationFailure(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodPost, "/login", `{"username":"a"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	env := decode(t, res)
	require.False(t, env.Success)
	require.Equal(t, "min", env.Errors["username"].Key)
	require.Equal(t, "required", env.Errors["password"].Key)
}

func TestLoginMalformedBody(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodPost, "/login", `{"username":`, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLoginBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "alice", "password1", true)

	res := f.do(http.MethodPost, "/login", `{"username":"alice","password":"wrongpass"}`, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginSuspendedAccountGetsLocked(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "bob", "password1", false)

	res := f.do(http.MethodPost, "/login", `{"username":"bob","password":"password1"}`, nil)
	require.Equal(t, http.StatusLocked, res.Code)

	env := decode(t, res)
	require.False(t, env.Success)
	require.Equal(t, "account suspended", env.Message)
}

func TestMeRequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodGet, "/user", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestMeReturnsAbilities(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "alice", "password1", true)

	login := decode(t, f.do(http.MethodPost, "/login", `{"username":"alice","password":"password1"}`, nil))
	var data auth.LoginData
	require.NoError(t, json.Unmarshal(login.Data, &data))

	header := http.Header{"Authorization": []string{"Bearer " + data.AccessToken}}
	res := f.do(http.MethodGet, "/user", "", header)
	require.Equal(t, http.StatusOK, res.Code)

	var me auth.MeData
	require.NoError(t, json.Unmarshal(decode(t, res).Data, &me))
	require.Equal(t, "alice", me.User.Username)
	require.Equal(t, []string{"view:dashboard"}, me.Abilities)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	f.registerUser(t, "alice", "password1", true)

	login := decode(t, f.do(http.MethodPost, "/login", `{"username":"alice","password":"password1"}`, nil))
	var data auth.LoginData
	require.NoError(t, json.Unmarshal(login.Data, &data))

	header := http.Header{"Authorization": []string{"Bearer " + data.AccessToken}}
	res := f.do(http.MethodGet, "/logout", "", header)
	require.Equal(t, http.StatusOK, res.Code)

	// The revoked token no longer authenticates.
	res = f.do(http.MethodGet, "/user", "", header)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLogoutWithoutTokenIsNoop(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodGet, "/logout", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestLoginRateLimitIsConfigurable(t *testing.T) {
	idRepo := newMemIdentityRepo()
	identitySvc := identity.NewService(idRepo, time.Hour)
	graphRepo := &fakeGraphRepo{
		roles: make(map[int64][]rbac.Role),
		perms: make(map[int64][]rbac.Permission),
	}
	resolver := rbac.NewResolver(graphRepo, nil, nil)
	graph := rbac.NewService(graphRepo, nil)
	g := gate.Gate{Identity: identitySvc, Resolver: resolver}

	handler := auth.NewHandler(nil, identitySvc, resolver, graph, g, nil, 2)
	r := chi.NewRouter()
	handler.MountRoutes(r)

	body := `{"username":"alice","password":"password1"}`
	attempt := func() int {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		res := httptest.NewRecorder()
		r.ServeHTTP(res, req)
		return res.Code
	}

	require.Equal(t, http.StatusUnauthorized, attempt())
	require.Equal(t, http.StatusUnauthorized, attempt())
	require.Equal(t, http.StatusTooManyRequests, attempt())
}
