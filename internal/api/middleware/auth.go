// auth.go — middleware аутентификации по session-токену Auth Module.
// Защищённые маршруты требуют заголовок Authorization: Bearer <token>
// с токеном, выпущенным этим же модулем (HS256).
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/avkuzmin/reportstore/auth-module/internal/api/errors"
	"github.com/avkuzmin/reportstore/auth-module/internal/auth"
)

// contextKey — приватный тип ключей контекста, чтобы не конфликтовать
// с другими пакетами.
type contextKey string

// contextKeyClaims — ключ контекста с claims session-токена.
const contextKeyClaims contextKey = "session_claims"

// SessionAuth — middleware аутентификации по session-токену.
type SessionAuth struct {
	codec  *auth.TokenCodec
	logger *slog.Logger
}

// NewSessionAuth создаёт middleware с указанным кодеком токенов.
func NewSessionAuth(codec *auth.TokenCodec, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		codec:  codec,
		logger: logger.With(slog.String("component", "session_auth")),
	}
}

// Middleware возвращает HTTP middleware аутентификации.
// Извлекает Bearer token из заголовка Authorization, проверяет подпись
// и срок действия, помещает claims в контекст запроса.
// Любой отказ — 401 с единым форматом ошибки, тело запроса не читается.
func (s *SessionAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			claims, err := s.codec.Verify(tokenString)
			if err != nil {
				s.logger.Debug("Session-токен не прошёл проверку",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				if errors.Is(err, auth.ErrTokenExpired) {
					apierrors.Unauthorized(w, "Срок действия токена истёк")
					return
				}
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext возвращает claims session-токена из контекста запроса.
// ok == false, если запрос не проходил через SessionAuth.
func ClaimsFromContext(ctx context.Context) (*auth.SessionClaims, bool) {
	claims, ok := ctx.Value(contextKeyClaims).(*auth.SessionClaims)
	return claims, ok
}
