package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/adreel/api/internal/auth"
	"github.com/adreel/api/pkg/response"
)

const (
	localUserID = "userId"
	localClaims = "claims"
)

// AuthMiddleware requires a valid bearer token
type AuthMiddleware struct {
	verifier auth.TokenVerifier
}

func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate validates the JWT from the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, msg := bearerToken(c)
		if token == "" {
			return response.Unauthorized(c, msg)
		}
		return m.verify(c, token)
	}
}

// AuthenticateStream is Authenticate for websocket upgrades. Browsers cannot
// set headers on a websocket handshake, so the token may come from ?token=.
func (m *AuthMiddleware) AuthenticateStream() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, msg := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return response.Unauthorized(c, msg)
		}
		return m.verify(c, token)
	}
}

func (m *AuthMiddleware) verify(c *fiber.Ctx, token string) error {
	claims, err := m.verifier.Validate(token)
	if err != nil {
		return response.Unauthorized(c, "Invalid or expired token")
	}

	c.Locals(localUserID, claims.UserID)
	c.Locals(localClaims, claims)
	return c.Next()
}

func bearerToken(c *fiber.Ctx) (string, string) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", "Missing authorization header"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", "Invalid authorization header format"
	}
	return parts[1], ""
}

// GetUserID returns the authenticated user, or "" when auth is disabled
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals(localUserID).(string); ok {
		return userID
	}
	return ""
}
