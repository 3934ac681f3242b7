// Package cryptox holds the one-way primitives of the account service:
// password hashing with verification, and digests for reset tokens at rest.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns a plaintext secret into a stored hash and checks
// candidates against it. Implementations never expose the plaintext.
type PasswordHasher interface {
	Hash(password []byte) (string, error)
	Verify(hash string, candidate []byte) (bool, error)
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when
// cost is outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether candidate matches hash. A mismatch is (false, nil);
// only a malformed hash yields an error.
func (h *BcryptHasher) Verify(hash string, candidate []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), candidate)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}

// TokenDigest is the SHA-256 hex digest under which a reset token value is
// stored and looked up.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
