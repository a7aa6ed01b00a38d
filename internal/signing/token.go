package signing

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewSigningToken mints an opaque single-use signing token: 256 bits from the
// CSPRNG, base64url so it can sit in a URL path segment. The token carries no
// structure and leaks nothing about the agreement it belongs to.
func NewSigningToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate signing token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
