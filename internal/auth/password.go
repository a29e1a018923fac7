package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// minPasswordLength rejects trivially short passwords at user creation and
// password change.
const minPasswordLength = 7

// ValidPassword reports whether a plaintext password meets the policy.
func ValidPassword(password string) bool {
	return len(password) >= minPasswordLength
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
