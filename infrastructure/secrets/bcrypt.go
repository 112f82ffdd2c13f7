// Package secrets hashes competition and admin secrets with bcrypt.
package secrets

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/ahrav/gavel-arena/internal/ports"
)

var _ ports.SecretHasher = (*BcryptHasher)(nil)

// BcryptHasher produces salted bcrypt hashes.
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

// Hash returns the bcrypt hash of secret. Secrets longer than 72 bytes are
// rejected by bcrypt.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(b), nil
}

// Verify compares secret against hash in constant time.
func (h *BcryptHasher) Verify(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
