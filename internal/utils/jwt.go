package utils

import (
	"errors"
	"time"

	"qrpay/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "qrpay-api"

var ErrMissingSecret = errors.New("JWT secret not configured")

// GenerateToken signs an access token for the payer.
func GenerateToken(secret, payerID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := models.PayerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   payerID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken parses and validates a JWT token string.
func ParseToken(secret, tokenStr string) (*models.PayerClaims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	token, err := jwt.ParseWithClaims(tokenStr, &models.PayerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.PayerClaims)
	if !ok || !token.Valid || claims.PayerID() == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
