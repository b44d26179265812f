package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// HashCredential hashes a PIN or password using Argon2id. The 16-byte salt
// is prepended to the hash inside the base64 output.
func HashCredential(credential string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(credential), salt, 1, 64*1024, 4, 32)

	result := make([]byte, len(salt)+len(hash))
	copy(result, salt)
	copy(result[len(salt):], hash)

	return base64.StdEncoding.EncodeToString(result), nil
}

// VerifyCredential verifies a PIN or password against its stored hash.
func VerifyCredential(credential, hashed string) (bool, error) {
	decoded, err := base64.StdEncoding.DecodeString(hashed)
	if err != nil {
		return false, fmt.Errorf("invalid credential hash format: %w", err)
	}

	if len(decoded) < 16 {
		return false, errors.New("credential hash too short")
	}

	salt := decoded[:16]
	storedHash := decoded[16:]

	inputHash := argon2.IDKey([]byte(credential), salt, 1, 64*1024, 4, 32)

	return subtle.ConstantTimeCompare(inputHash, storedHash) == 1, nil
}
