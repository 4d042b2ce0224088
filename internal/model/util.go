package model

import (
	"crypto/rand"
	"encoding/base64"
)

// NewSessionToken creates a fresh opaque session token
func NewSessionToken() string {
	return generateSecureToken()
}

// generateSecureToken creates a secure random token string
func generateSecureToken() string {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		// In a real application, we would handle this error better
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
