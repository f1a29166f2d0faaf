package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Ошибки проверки session-токена. Наружу транслируются одинаково (401),
// различие нужно для логирования и тестов.
var (
	// ErrTokenExpired — токен корректно подписан, но срок действия истёк.
	ErrTokenExpired = errors.New("срок действия токена истёк")
	// ErrTokenInvalid — токен повреждён, подделан или подписан не тем ключом.
	ErrTokenInvalid = errors.New("недействительный токен")
)

// SessionClaims — полезная нагрузка session-токена. Субъект (sub) —
// внутренний идентификатор пользователя, а не Google subject.
type SessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// UserID возвращает внутренний идентификатор пользователя из токена.
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// TokenCodec выпускает и проверяет session-токены HS256.
// Секрет подписи — отдельный от AppSecret (AU_JWT_SECRET).
type TokenCodec struct {
	secret   []byte
	lifetime time.Duration
}

// NewTokenCodec создаёт кодек с заданным секретом и временем жизни токена.
func NewTokenCodec(secret string, lifetime time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:   []byte(secret),
		lifetime: lifetime,
	}
}

// Issue выпускает подписанный токен для пользователя. Время выпуска и
// истечения берётся в UTC, срок жизни фиксирован настройкой кодека.
func (c *TokenCodec) Issue(userID, email, name string) (string, error) {
	now := time.Now().UTC()
	claims := &SessionClaims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

// Verify проверяет подпись и срок действия токена и возвращает claims.
// Принимается только HS256: токены с другим алгоритмом (включая none)
// отклоняются до проверки подписи.
func (c *TokenCodec) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
