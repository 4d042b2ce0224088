package jwtutil

import (
	"shell-service/pkg/config"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	secret     []byte
	expiration = 24 * time.Hour
)

// Initialize sets the signing key and token lifetime from configuration
func Initialize(cfg *config.JWTConfig) {
	secret = []byte(cfg.SigningKey)
	if cfg.ExpirationTime > 0 {
		expiration = cfg.ExpirationTime
	}
}

// SessionClaims represents the JWT claims for an authenticated session
type SessionClaims struct {
	Email        string `json:"email"`
	UserID       uint   `json:"user_id"`
	SessionToken string `json:"session_token"`
	jwt.RegisteredClaims
}

// GenerateToken creates a JWT token carrying the user's session
func GenerateToken(email string, userID uint, sessionToken string) (string, error) {
	claims := SessionClaims{
		Email:        email,
		UserID:       userID,
		SessionToken: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken validates and parses the JWT token
func ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}
