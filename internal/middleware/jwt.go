package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/judging-portal/internal/utils"
)

var (
	errMissingToken = errors.New("authorization token missing")
	errInvalidToken = errors.New("invalid token")
)

// JWTProtected returns a middleware that validates JWT bearer tokens.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := authenticate(c, secret); err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}
		return c.Next()
	}
}

// AdminKeyGuard restricts the reserved admin key to bearers of an admin
// token. Other keys pass through untouched. Rejections are 403 so store
// clients treat them as permanent for the session.
func AdminKeyGuard(secret, adminKey string) fiber.Handler {
	requireAdmin := RequireRole("admin")

	return func(c *fiber.Ctx) error {
		if c.Params("key") != adminKey {
			return c.Next()
		}
		if err := authenticate(c, secret); err != nil {
			return utils.SendError(c, fiber.StatusForbidden, "admin key requires an administrator token")
		}
		return requireAdmin(c)
	}
}

// authenticate parses the bearer token (header, or access_token query for
// websocket clients) and stores subject and role in locals.
func authenticate(c *fiber.Ctx, secret string) error {
	tokenString := bearerToken(c)
	if tokenString == "" {
		return errMissingToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errInvalidToken
	}

	if userID := extractUserIDFromClaims(claims); userID != "" {
		c.Locals("user_id", userID)
	}
	if role := extractUserRoleFromClaims(claims); role != "" {
		c.Locals("user_role", role)
	}

	return nil
}

func bearerToken(c *fiber.Ctx) string {
	const bearer = "bearer "
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authorization != "" {
		if !strings.HasPrefix(strings.ToLower(authorization), bearer) {
			return ""
		}
		return strings.TrimSpace(authorization[len(bearer):])
	}
	return strings.TrimSpace(c.Query("access_token"))
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "user_id", "id"} {
		if value, ok := claims[key]; ok {
			switch v := value.(type) {
			case string:
				if trimmed := strings.TrimSpace(v); trimmed != "" {
					return trimmed
				}
			case float64:
				return fmt.Sprintf("%.0f", v)
			}
		}
	}
	return ""
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"role", "roles"} {
		if value, ok := claims[key]; ok {
			if role := roleFromClaim(value); role != "" {
				return role
			}
		}
	}
	return ""
}

// roleFromClaim reads a role claim that is either a string or a list whose
// first non-empty string wins.
func roleFromClaim(value interface{}) string {
	switch v := value.(type) {
	case string:
		return normalizeRole(v)
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				if role := normalizeRole(str); role != "" {
					return role
				}
			}
		}
	}
	return ""
}
