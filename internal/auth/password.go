package auth

import (
	"errors"
	"fmt"

	"govtender/internal/models"

	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyPassword = fmt.Errorf("%w: password is required", models.ErrValidation)

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth.HashPassword: %w", err)
	}
	return string(hash), nil
}

// ComparePassword returns models.ErrInvalidCredentials on mismatch.
func ComparePassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return models.ErrInvalidCredentials
	default:
		return fmt.Errorf("auth.ComparePassword: %w", err)
	}
}
