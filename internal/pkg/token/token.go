package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewSessionToken generates a cryptographically random 64-character hex
// token. Sessions are keyed by these so the id itself is unguessable.
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
