// Пакет model — доменные модели Auth Module.
package model

import "time"

// Провайдеры аутентификации.
const (
	// AuthProviderLocal — аккаунт создан через локальную регистрацию.
	AuthProviderLocal = "local"
	// AuthProviderGoogle — аккаунт создан через Google OIDC.
	AuthProviderGoogle = "google"
)

// User — аккаунт пользователя. Хранится в таблице users.
// Локальный вход и federated-связка могут сосуществовать на одной записи:
// каждая проверяется независимо.
type User struct {
	// ID — суррогатный числовой ключ, присваивается при создании
	ID int64
	// UserID — стабильный внешний идентификатор (уникальный).
	// При локальной регистрации его выбирает клиент; при федеративной
	// выводится из нормализованного email.
	UserID string
	// Name — отображаемое имя
	Name string
	// Email — адрес электронной почты (уникальный)
	Email string
	// PasswordHash — bcrypt-хеш пароля.
	// Пустая строка означает, что локальный вход отключён.
	PasswordHash string
	// GoogleID — subject (sub) из Google ID token.
	// Пустая строка — аккаунт не связан с Google.
	GoogleID string
	// Picture — URL аватара из Google (опционально)
	Picture string
	// AuthProvider — способ создания аккаунта (local, google).
	// Информационное поле, не ограничивает способы входа.
	AuthProvider string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// PublicUser — JSON-представление пользователя для API-ответов.
// Не содержит password_hash.
type PublicUser struct {
	ID           int64  `json:"id"`
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Picture      string `json:"picture,omitempty"`
	AuthProvider string `json:"authProvider"`
	CreatedAt    string `json:"created_at"`
}

// Public возвращает представление пользователя для API-ответов.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID,
		UserID:       u.UserID,
		Name:         u.Name,
		Email:        u.Email,
		Picture:      u.Picture,
		AuthProvider: u.AuthProvider,
		CreatedAt:    u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
