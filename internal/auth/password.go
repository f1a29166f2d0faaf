// Пакет auth — локальные криптографические примитивы Auth Module:
// хеширование паролей (bcrypt) и session-токены (JWT HS256).
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword возвращает bcrypt-хеш пароля со случайной солью.
// Два вызова с одинаковым паролем дают разные хеши.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("ошибка хеширования пароля: %w", err)
	}
	return string(hash), nil
}

// CheckPassword проверяет пароль против bcrypt-хеша (constant-time сравнение
// внутри bcrypt). Пустой хеш означает, что локальный вход отключён:
// проверка всегда неуспешна, в том числе для пустого пароля.
func CheckPassword(hash, plaintext string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
