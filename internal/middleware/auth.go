// Package middleware provides HTTP middleware for the scan API.
package middleware

import (
	"strings"

	"qrpay/internal/utils"
	"qrpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// AuthMiddleware validates bearer tokens and stores the payer in the request context.
type AuthMiddleware struct {
	secret string
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: secret}
}

func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return response.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ParseToken(m.secret, strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		log.Debugf("token validation error: %v", err)
		return response.Error(c, fiber.StatusUnauthorized, "invalid token")
	}

	c.Locals("claims", claims)
	c.Locals("userID", claims.PayerID())
	return c.Next()
}

// PayerID returns the authenticated payer, or "" outside the auth middleware.
func PayerID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}
