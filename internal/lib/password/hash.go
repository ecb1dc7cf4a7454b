// Package password хеширует и проверяет секретный ключ администратора bcrypt-хешем.
// В конфиге хранится только хеш ключа.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMismatch ключ не соответствует хешу.
	ErrMismatch = errors.New("secret does not match")
	// ErrNoHash хеш не задан, проверка невозможна.
	ErrNoHash = errors.New("hash is not configured")
)

// GetHash возвращает bcrypt-хеш секрета.
func GetHash(secret string) (string, error) {
	const op = "password.GetHash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// CompareHash сравнивает bcrypt-хеш с предъявленным секретом.
// Пустой секрет никогда не совпадает.
func CompareHash(originalHash, external string) error {
	const op = "password.CompareHash"
	if originalHash == "" {
		return fmt.Errorf("%s: %w", op, ErrNoHash)
	}
	if external == "" {
		return fmt.Errorf("%s: %w", op, ErrMismatch)
	}
	err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(external))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("%s: %w", op, ErrMismatch)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
