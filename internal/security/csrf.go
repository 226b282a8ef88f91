package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// CSRFSigner derives per-session CSRF tokens from a server secret.
// Tokens are HMAC-SHA256(secret, sessionID), so nothing extra is stored
// and a token dies with its session.
type CSRFSigner struct {
	secret []byte
}

// NewCSRFSigner creates a signer keyed by secret.
func NewCSRFSigner(secret string) *CSRFSigner {
	return &CSRFSigner{secret: []byte(secret)}
}

// Token returns the CSRF token for the session as a 64-character hex string.
func (s *CSRFSigner) Token(sessionID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a submitted token against the session using constant-time comparison.
func (s *CSRFSigner) Verify(sessionID, submitted string) bool {
	if submitted == "" {
		return false
	}
	return hmac.Equal([]byte(s.Token(sessionID)), []byte(submitted))
}
