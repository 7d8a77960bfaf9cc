package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/models"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/ikuai"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/lifecycle"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/secret"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/vpnconfig"
)

// fakeGateway is a minimal in-memory gateway for handler tests.
type fakeGateway struct {
	remote map[string]*ikuai.Account
	nextID int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{remote: make(map[string]*ikuai.Account), nextID: 1}
}

func (g *fakeGateway) CreateAccount(_ context.Context, req ikuai.AddRequest) (int64, error) {
	id := g.nextID
	g.nextID++
	g.remote[req.Username] = &ikuai.Account{
		ID: id, Username: req.Username, Enabled: req.Enabled, Expires: req.Expires, IPAddr: "10.8.0.2",
	}

	return id, nil
}

func (g *fakeGateway) GetAccount(_ context.Context, username string) (*ikuai.Account, error) {
	return g.remote[username], nil
}

func (g *fakeGateway) GetAccountFresh(_ context.Context, username string) (*ikuai.Account, error) {
	return g.remote[username], nil
}

func (g *fakeGateway) UpdateAccount(context.Context, int64, ikuai.EditRequest) error {
	return nil
}

func (g *fakeGateway) DeleteAccount(_ context.Context, remoteID int64) error {
	for username, account := range g.remote {
		if account.ID == remoteID {
			delete(g.remote, username)
			break
		}
	}

	return nil
}

// inlineDispatcher runs jobs synchronously so handler responses reflect the
// final state in tests.
type inlineDispatcher struct {
	n int
}

func (d *inlineDispatcher) Enqueue(_ string, run func()) (string, error) {
	d.n++
	run()

	return fmt.Sprintf("job-%d", d.n), nil
}

func setupTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(&models.Department{}, &models.Identity{}, &models.Account{})
	require.NoError(t, err, "failed to migrate test database")

	enc, err := secret.NewEncryptor("test-passphrase")
	require.NoError(t, err)

	engine := lifecycle.New(db, newFakeGateway(), &inlineDispatcher{}, enc, lifecycle.Config{})

	renderer, err := vpnconfig.NewRenderer(vpnconfig.Config{ServerHost: "vpn.example.com"})
	require.NoError(t, err)

	app := fiber.New()
	require.NoError(t, Handler.Init(app, db, engine, renderer))

	return app, db
}

func seedIdentity(t *testing.T, db *gorm.DB, username string, active bool) {
	t.Helper()
	require.NoError(t, db.Create(&models.Identity{Username: username, Active: active}).Error)
}

func request(t *testing.T, app *fiber.App, method, target, user, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if user != "" {
		req.Header.Set("X-Auth-User", user)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	payload := map[string]any{}
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(raw, &payload))
	} else {
		payload["_body"] = string(raw)
	}

	return resp, payload
}

func TestMissingAuthHeader(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := request(t, app, http.MethodGet, Path, "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnknownUser(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := request(t, app, http.MethodPost, Path, "ghost", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndStatus(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	resp, payload := request(t, app, http.MethodPost, Path, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["success"])
	assert.NotEmpty(t, payload["task_id"])

	resp, payload = request(t, app, http.MethodGet, Path, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", payload["status"])
	assert.Equal(t, "alice", payload["username"])
	assert.Equal(t, true, payload["is_usable"])
	assert.NotEmpty(t, payload["password"], "active accounts expose the credential")
	assert.Equal(t, "10.8.0.2", payload["ip_addr"])
}

func TestCreateExpiresDaysValidation(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	resp, _ := request(t, app, http.MethodPost, Path, "alice", `{"expires_days": 9999}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateConflictIsRejectionNotError(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	resp, _ := request(t, app, http.MethodPost, Path, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload := request(t, app, http.MethodPost, Path, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["message"], "already have")
}

func TestCreateInactiveIdentity(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "bob", false)

	resp, payload := request(t, app, http.MethodPost, Path, "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["message"], "inactive")
}

func TestStatusNoAccount(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	resp, payload := request(t, app, http.MethodGet, Path, "alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, payload["success"])
}

func TestStatusExposesFailureMessage(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	var identity models.Identity
	require.NoError(t, db.First(&identity, "username = ?", "alice").Error)

	require.NoError(t, db.Create(&models.Account{
		IdentityID:   identity.ID,
		Username:     "alice",
		Status:       models.StatusFailed,
		ErrorMessage: "gateway rejected add request (code 30001): username exists",
	}).Error)

	resp, payload := request(t, app, http.MethodGet, Path, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", payload["status"])
	assert.Contains(t, payload["error_message"], "username exists")
	assert.NotContains(t, payload, "password")
}

func TestRenew(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	_, _ = request(t, app, http.MethodPost, Path, "alice", "")

	resp, payload := request(t, app, http.MethodPost, Path+"/renew", "alice", `{"extends_days": 60}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["success"])
	assert.NotEmpty(t, payload["expires_at"])
}

func TestRenewWithoutAccount(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	resp, payload := request(t, app, http.MethodPost, Path+"/renew", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, payload["success"])
}

func TestDelete(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	// Nothing to delete yet: idempotent success.
	resp, payload := request(t, app, http.MethodDelete, Path, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["success"])
	assert.Contains(t, payload["message"], "nothing to delete")

	_, _ = request(t, app, http.MethodPost, Path, "alice", "")

	resp, payload = request(t, app, http.MethodDelete, Path, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["success"])

	resp, _ = request(t, app, http.MethodGet, Path, "alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadConfig(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	_, _ = request(t, app, http.MethodPost, Path, "alice", "")

	resp, payload := request(t, app, http.MethodGet, Path+"/config", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `alice.ovpn`)

	profile, _ := payload["_body"].(string)
	assert.Contains(t, profile, "remote vpn.example.com 1194")
	assert.Contains(t, profile, "alice")
}

func TestDownloadConfigUnusableAccount(t *testing.T) {
	app, db := setupTestApp(t)
	seedIdentity(t, db, "alice", true)

	var identity models.Identity
	require.NoError(t, db.First(&identity, "username = ?", "alice").Error)

	require.NoError(t, db.Create(&models.Account{
		IdentityID: identity.ID,
		Username:   "alice",
		Status:     models.StatusCreating,
	}).Error)

	resp, _ := request(t, app, http.MethodGet, Path+"/config", "alice", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
