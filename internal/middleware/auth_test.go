package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"qrpay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/me", NewAuthMiddleware("secret").Handler, func(c *fiber.Ctx) error {
		return c.SendString(PayerID(c))
	})

	valid, err := utils.GenerateToken("secret", "payer-1", time.Minute)
	require.NoError(t, err)
	forged, err := utils.GenerateToken("wrong", "payer-1", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"not bearer", "Basic abc", fiber.StatusUnauthorized},
		{"bad signature", "Bearer " + forged, fiber.StatusUnauthorized},
		{"valid", "Bearer " + valid, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
