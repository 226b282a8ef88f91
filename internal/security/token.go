package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"liftlog/internal/domain"
)

// tokenSize is the number of random bytes behind a session token (160 bits).
const tokenSize = 20

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// randReader is swapped in tests to simulate an unavailable entropy source.
var randReader io.Reader = rand.Reader

// GenerateToken returns a new session token: 20 bytes from crypto/rand,
// encoded as lowercase unpadded base32 (32 characters).
func GenerateToken() (string, error) {
	b := make([]byte, tokenSize)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRandomnessUnavailable, err)
	}
	return strings.ToLower(tokenEncoding.EncodeToString(b)), nil
}

// MustGenerateToken is GenerateToken for callers that cannot continue
// without randomness.
func MustGenerateToken() string {
	token, err := GenerateToken()
	if err != nil {
		panic(err)
	}
	return token
}

// DeriveSessionID returns the lowercase hex SHA-256 digest of the token's
// UTF-8 bytes. This is the only form in which a token reaches storage.
func DeriveSessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
