// Package signature implements the step-up authorization tokens that gate
// sensitive follow-up operations (PIN/password changes) without server-side
// session state.
//
// A token is HMAC-SHA256(key=secret, message=data||salt) with a random
// 16-byte salt, returned as base64(hash||salt). The caller passes the
// account's durable identifier as secret and the account's CURRENT
// credential hash as data, so the token self-invalidates the moment the
// guarded credential changes. There is deliberately no wall-clock expiry:
// the proof is bound to a point-in-time credential value, not to time.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const saltLength = 16

// Sign produces a step-up token for the given secret and data.
func Sign(secret, data string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := compute(secret, data, salt)

	token := make([]byte, 0, len(hash)+saltLength)
	token = append(token, hash...)
	token = append(token, salt...)
	return base64.StdEncoding.EncodeToString(token), nil
}

// Verify reports whether token was produced by Sign for the same secret and
// data. Malformed or truncated tokens yield false, never an error.
func Verify(secret, data, token string) bool {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return false
	}
	if len(decoded) != sha256.Size+saltLength {
		return false
	}

	hash := decoded[:sha256.Size]
	salt := decoded[sha256.Size:]

	expected := compute(secret, data, salt)
	return subtle.ConstantTimeCompare(hash, expected) == 1
}

func compute(secret, data string, salt []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	h.Write(salt)
	return h.Sum(nil)
}
