package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims is the access token issued by the marketplace auth service.
type TokenClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
