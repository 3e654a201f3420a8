package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func guardedApp() *fiber.App {
	app := fiber.New()
	app.Get("/store/:key", AdminKeyGuard(testSecret, "judging_admin"), func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		return c.SendString(role)
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAdminKeyGuardPassesOrdinaryKeys(t *testing.T) {
	resp := doRequest(t, guardedApp(), "/store/judging_spring", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAdminKeyGuardRequiresAdminToken(t *testing.T) {
	app := guardedApp()
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{name: "missing", token: "", status: fiber.StatusForbidden},
		{name: "garbage", token: "not-a-jwt", status: fiber.StatusForbidden},
		{name: "wrong secret", token: signToken(t, "other", jwt.MapClaims{"sub": "u1", "role": "admin", "exp": exp}), status: fiber.StatusForbidden},
		{name: "judge role", token: signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "judge", "exp": exp}), status: fiber.StatusForbidden},
		{name: "expired", token: signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}), status: fiber.StatusForbidden},
		{name: "admin", token: signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "roles": []string{"Admin"}, "exp": exp}), status: fiber.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, app, "/store/judging_admin", tc.token)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestAdminKeyGuardAcceptsQueryToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": "admin"})
	resp := doRequest(t, guardedApp(), "/store/judging_admin?access_token="+token, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedStoresStringSubject(t *testing.T) {
	app := fiber.New()
	app.Get("/me", JWTProtected(testSecret), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})

	resp := doRequest(t, app, "/me", "")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, app, "/me", signToken(t, testSecret, jwt.MapClaims{"sub": "user-42"}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := make([]byte, 16)
	n, _ := resp.Body.Read(body)
	require.Equal(t, "user-42", string(body[:n]))
}

func TestRateLimitRejectsBurst(t *testing.T) {
	app := fiber.New()
	app.Get("/", RateLimit("test", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		resp := doRequest(t, app, "/", "")
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}
	resp := doRequest(t, app, "/", "")
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestRoleFromClaim(t *testing.T) {
	cases := []struct {
		name  string
		claim interface{}
		want  string
	}{
		{name: "string", claim: " Admin ", want: "admin"},
		{name: "list", claim: []interface{}{"", 7, "Judge"}, want: "judge"},
		{name: "empty list", claim: []interface{}{}, want: ""},
		{name: "number", claim: 3.0, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, roleFromClaim(tc.claim))
		})
	}
}
