package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims of a LiftLog access token
type AccessClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
