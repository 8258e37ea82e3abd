package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/adreel/api/pkg/response"
)

// HeaderAPIKey carries the caller's vendor credential
const HeaderAPIKey = "X-Freepik-API-Key"

const (
	localAPIKey     = "apiKey"
	localKeyFromReq = "apiKeyFromRequest"
)

// Credential resolves the vendor API key for the request: the header wins,
// the configured key is the fallback, and neither means 401.
func Credential(fallback string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(HeaderAPIKey))
		fromRequest := key != ""
		if !fromRequest {
			key = fallback
		}
		if key == "" {
			return response.Unauthorized(c, "API key required")
		}

		c.Locals(localAPIKey, key)
		c.Locals(localKeyFromReq, fromRequest)
		return c.Next()
	}
}

// GetAPIKey returns the resolved vendor key
func GetAPIKey(c *fiber.Ctx) string {
	key, _ := c.Locals(localAPIKey).(string)
	return key
}

// APIKeyFromRequest reports whether the key was supplied by the caller
func APIKeyFromRequest(c *fiber.Ctx) bool {
	fromRequest, _ := c.Locals(localKeyFromReq).(bool)
	return fromRequest
}

// keyFingerprint identifies a caller by key without keeping the key itself
func keyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
