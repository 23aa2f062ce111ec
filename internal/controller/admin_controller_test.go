package controller

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRuleCache struct {
	invalidated []string
}

func (r *recordingRuleCache) Invalidate(accountId string) {
	r.invalidated = append(r.invalidated, accountId)
}

type recordingAccountCache struct {
	invalidated []uuid.UUID
}

func (r *recordingAccountCache) InvalidateAccount(accountId uuid.UUID) {
	r.invalidated = append(r.invalidated, accountId)
}

func newAdminApp() (*fiber.App, *recordingRuleCache, *recordingAccountCache) {
	rules := &recordingRuleCache{}
	accounts := &recordingAccountCache{}
	app := fiber.New()
	NewAdminController(rules, accounts).RegisterRoutes(app.Group("/api"))
	return app, rules, accounts
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestRefreshAccountCachesRequiresToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	app, rules, _ := newAdminApp()

	req := httptest.NewRequest("POST", "/api/admin/v1/accounts/"+uuid.NewString()+"/cache/refresh", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, rules.invalidated)
}

func TestRefreshAccountCachesForOwner(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	app, rules, accounts := newAdminApp()
	accountId := uuid.New()

	token := signToken(t, "test-secret", jwt.MapClaims{
		"user_id":    uuid.NewString(),
		"account_id": accountId.String(),
		"role":       "owner",
	})

	req := httptest.NewRequest("POST", "/api/admin/v1/accounts/"+accountId.String()+"/cache/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{accountId.String()}, rules.invalidated)
	assert.Equal(t, []uuid.UUID{accountId}, accounts.invalidated)
}

func TestRefreshAccountCachesRejectsForeignAccount(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	app, rules, _ := newAdminApp()

	token := signToken(t, "test-secret", jwt.MapClaims{
		"user_id":    uuid.NewString(),
		"account_id": uuid.NewString(),
		"role":       "owner",
	})

	req := httptest.NewRequest("POST", "/api/admin/v1/accounts/"+uuid.NewString()+"/cache/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Empty(t, rules.invalidated)
}

func TestRefreshAccountCachesRejectsBadId(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	app, _, _ := newAdminApp()

	token := signToken(t, "test-secret", jwt.MapClaims{
		"user_id":    uuid.NewString(),
		"account_id": "acct",
		"role":       "admin",
	})

	req := httptest.NewRequest("POST", "/api/admin/v1/accounts/not-a-uuid/cache/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
