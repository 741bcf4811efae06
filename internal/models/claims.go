package models

import "github.com/golang-jwt/jwt/v5"

// PayerClaims identifies the payer behind a dashboard request. The subject is the payer id.
type PayerClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

func (c *PayerClaims) PayerID() string {
	return c.Subject
}
