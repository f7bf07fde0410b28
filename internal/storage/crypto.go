// Package storage provides persistence and credential hashing for lotpass.
package storage

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPIN creates a bcrypt hash of a PIN for storage.
// PINs are never stored or transmitted in clear.
func HashPIN(pin string) (string, error) {
	// Use bcrypt cost 12
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), 12)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPIN checks if a PIN matches a bcrypt hash.
func VerifyPIN(pin, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
}
