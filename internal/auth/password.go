package auth

import (
	"fmt"

	examsso "github.com/pilab-dev/exam-sso"
	"golang.org/x/crypto/bcrypt"
)

// BcryptPasswordHasher implements examsso.PasswordHasher using bcrypt, whose
// comparison is constant time.
type BcryptPasswordHasher struct {
	Cost int
}

// NewBcryptPasswordHasher creates a new BcryptPasswordHasher.
// Default cost is bcrypt.DefaultCost if cost <= 0.
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}

	return &BcryptPasswordHasher{Cost: cost}
}

// Hash generates a bcrypt hash for the given password.
func (h *BcryptPasswordHasher) Hash(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}

	return string(hashedBytes), nil
}

// Verify returns bcrypt.ErrMismatchedHashAndPassword on mismatch.
func (h *BcryptPasswordHasher) Verify(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

var _ examsso.PasswordHasher = (*BcryptPasswordHasher)(nil)
