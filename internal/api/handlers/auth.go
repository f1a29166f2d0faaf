// auth.go — обработчики аутентификации: регистрация, локальный вход,
// проверка session-токена и федеративный вход через Google.
package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	apierrors "github.com/avkuzmin/reportstore/auth-module/internal/api/errors"
	"github.com/avkuzmin/reportstore/auth-module/internal/api/middleware"
	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
	"github.com/avkuzmin/reportstore/auth-module/internal/idp"
	"github.com/avkuzmin/reportstore/auth-module/internal/repository"
	"github.com/avkuzmin/reportstore/auth-module/internal/service"
)

// stateCookieName — cookie со state-параметром OAuth2 flow (CSRF-защита).
const stateCookieName = "au_oauth_state"

// AuthHandler — обработчики /api/auth/*.
type AuthHandler struct {
	authSvc  *service.AuthService
	users    repository.UserRepository
	idp      *idp.Client
	verifier *idp.Verifier
	// redirectURI — callback Auth Module, регистрируется у провайдера.
	redirectURI string
	// frontendURL — базовый URL SPA для redirect после callback.
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler создаёт обработчики аутентификации.
func NewAuthHandler(
	authSvc *service.AuthService,
	users repository.UserRepository,
	idpClient *idp.Client,
	verifier *idp.Verifier,
	redirectURI string,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authSvc:     authSvc,
		users:       users,
		idp:         idpClient,
		verifier:    verifier,
		redirectURI: redirectURI,
		frontendURL: frontendURL,
		logger:      logger.With(slog.String("component", "auth_handler")),
	}
}

// authResponse — ответ успешной аутентификации.
type authResponse struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

// writeAuthError транслирует ошибку бизнес-логики в HTTP-ответ.
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrDuplicateUser):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrEmailUnverified):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, idp.ErrInvalidExternalToken):
		apierrors.Unauthorized(w, "Недействительный токен провайдера")
	case errors.Is(err, idp.ErrUpstream):
		apierrors.IDPUnavailable(w, "Провайдер удостоверений недоступен")
	default:
		h.logger.Error("Внутренняя ошибка аутентификации",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// Register — POST /api/auth/register. Создаёт локальный аккаунт
// и сразу выпускает session-токен.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"userId"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	res, err := h.authSvc.Register(r.Context(), req.UserID, req.Name, req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token: res.Token,
		User:  res.User.Public(),
	})
}

// Login — POST /api/auth/login. Локальный вход по userId/паролю.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"userId"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	res, err := h.authSvc.Login(r.Context(), req.UserID, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token: res.Token,
		User:  res.User.Public(),
	})
}

// Verify — GET /api/auth/verify. Защищённый endpoint: подтверждает
// действительность session-токена и возвращает актуальный профиль из БД.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	user, err := h.users.GetByUserID(r.Context(), claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Токен пережил удаление аккаунта.
			apierrors.Unauthorized(w, "Пользователь не найден")
			return
		}
		h.logger.Error("Ошибка поиска пользователя",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  user.Public(),
	})
}

// generateState генерирует случайный state-параметр для CSRF-защиты
// OAuth2 flow.
func generateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GoogleLogin — GET /api/auth/google/login. Возвращает URL страницы
// входа Google; SPA сам выполняет переход. State сохраняется в cookie
// и сверяется в callback.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	authURL, err := h.idp.AuthorizationURL(r.Context(), h.redirectURI, state)
	if err != nil {
		h.logger.Error("Провайдер недоступен при старте входа",
			slog.String("error", err.Error()),
		)
		apierrors.IDPUnavailable(w, "Провайдер удостоверений недоступен")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"authorizationUrl": authURL,
	})
}

// redirectWithError — деградация callback: браузер пользователя уже
// в середине flow, JSON ему показывать некому. Возвращаем на страницу
// входа SPA с маркером ошибки в query.
func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, marker string) {
	http.Redirect(w, r, h.frontendURL+"/login?error="+url.QueryEscape(marker), http.StatusFound)
}

// GoogleCallback — GET /api/auth/google/callback. Завершение code flow:
// сверка state, обмен code на tokens, получение профиля, выпуск
// session-токена и redirect на SPA с токеном в query.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// Отказ пользователя или ошибка на стороне провайдера.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Warn("Провайдер вернул ошибку в callback",
			slog.String("error", errParam),
		)
		h.redirectWithError(w, r, "auth_failed")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, "auth_failed")
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		h.logger.Warn("State-параметр не совпал",
			slog.String("remote_addr", r.RemoteAddr),
		)
		h.redirectWithError(w, r, "auth_failed")
		return
	}
	// Одноразовый state: гасим cookie сразу после сверки.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/api/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	tokens, err := h.idp.ExchangeCode(r.Context(), code, h.redirectURI)
	if err != nil {
		h.logger.Error("Обмен code не удался",
			slog.String("error", err.Error()),
		)
		h.redirectWithError(w, r, "auth_failed")
		return
	}

	identity, err := h.idp.Userinfo(r.Context(), tokens.AccessToken)
	if err != nil {
		h.logger.Error("Запрос userinfo не удался",
			slog.String("error", err.Error()),
		)
		h.redirectWithError(w, r, "auth_failed")
		return
	}

	res, err := h.authSvc.ResolveFederated(r.Context(), identity)
	if err != nil {
		h.logger.Error("Разрешение федеративного аккаунта не удалось",
			slog.String("error", err.Error()),
		)
		h.redirectWithError(w, r, "auth_failed")
		return
	}

	// SPA получает токен и профиль из query страницы входа.
	userJSON, err := json.Marshal(res.User.Public())
	if err != nil {
		h.redirectWithError(w, r, "auth_failed")
		return
	}
	q := url.Values{
		"token": {res.Token},
		"user":  {base64.RawURLEncoding.EncodeToString(userJSON)},
	}
	http.Redirect(w, r, h.frontendURL+"/login?"+q.Encode(), http.StatusFound)
}

// GoogleVerify — POST /api/auth/google/verify. Прямой путь для SPA:
// принимает id_token от Google Sign-In, проверяет его по JWKS
// провайдера и выпускает session-токен.
func (h *AuthHandler) GoogleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"id_token"`
		// idToken — camelCase-вариант, как в остальных полях API.
		IDTokenCamel string `json:"idToken"`
		// credential — имя поля в ответе Google Identity Services.
		Credential string `json:"credential"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}
	idToken := req.IDToken
	if idToken == "" {
		idToken = req.IDTokenCamel
	}
	if idToken == "" {
		idToken = req.Credential
	}
	if idToken == "" {
		apierrors.ValidationError(w, "id_token обязателен")
		return
	}

	identity, err := h.verifier.VerifyIDToken(r.Context(), idToken)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	res, err := h.authSvc.ResolveFederated(r.Context(), identity)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token: res.Token,
		User:  res.User.Public(),
	})
}
