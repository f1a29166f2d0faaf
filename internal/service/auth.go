// Пакет service — бизнес-логика Auth Module: регистрация, локальный вход,
// федеративный вход через внешнего провайдера и выпуск session-токенов.
package service

import (
	"context"
	"crypto/md5" //nolint:gosec // G501: не криптография, derive стабильного идентификатора
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avkuzmin/reportstore/auth-module/internal/auth"
	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
	"github.com/avkuzmin/reportstore/auth-module/internal/idp"
	"github.com/avkuzmin/reportstore/auth-module/internal/repository"
)

// Ошибки бизнес-логики. Транслируются в HTTP-коды на уровне handlers.
var (
	// ErrValidation — входные данные не прошли проверку.
	ErrValidation = errors.New("некорректные входные данные")
	// ErrInvalidCredentials — пара идентификатор/пароль не подошла.
	// Единая ошибка для «пользователь не найден» и «пароль неверен»:
	// ответ не должен раскрывать, существует ли аккаунт.
	ErrInvalidCredentials = errors.New("неверный идентификатор или пароль")
	// ErrDuplicateUser — идентификатор или email уже заняты другим аккаунтом.
	ErrDuplicateUser = errors.New("идентификатор или email уже зарегистрированы")
	// ErrEmailUnverified — провайдер не подтвердил email; связывать
	// аккаунты по неподтверждённому адресу нельзя.
	ErrEmailUnverified = errors.New("email не подтверждён провайдером")
)

// AuthResult — результат успешной аутентификации: пользователь
// и выпущенный session-токен.
type AuthResult struct {
	User  *model.User
	Token string
}

// AuthService — регистрация, вход и федеративное разрешение аккаунтов.
type AuthService struct {
	users  repository.UserRepository
	codec  *auth.TokenCodec
	logger *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(users repository.UserRepository, codec *auth.TokenCodec, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		codec:  codec,
		logger: logger.With(slog.String("component", "auth_service")),
	}
}

// deriveUserID возвращает стабильный внешний идентификатор для
// федеративного аккаунта, полученный из нормализованного email:
// провайдер своего userId не присылает, а повторные входы должны
// попадать в тот же аккаунт. Локальные аккаунты приносят userId сами.
func deriveUserID(email string) string {
	sum := md5.Sum([]byte(email)) //nolint:gosec // G401: см. выше
	return hex.EncodeToString(sum[:])[:12]
}

// normalizeEmail приводит email к каноничному виду для поиска и derive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создаёт локальный аккаунт и выпускает session-токен.
// Идентификатор userID выбирает клиент; уникальность userID и email
// обеспечивают ограничения БД, а не предварительная проверка, поэтому
// гонка одновременных регистраций даёт ровно один успех.
func (s *AuthService) Register(ctx context.Context, userID, name, email, password string) (*AuthResult, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	switch {
	case userID == "":
		return nil, fmt.Errorf("%w: userId обязателен", ErrValidation)
	case name == "":
		return nil, fmt.Errorf("%w: name обязателен", ErrValidation)
	case email == "" || !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: некорректный email", ErrValidation)
	case password == "":
		return nil, fmt.Errorf("%w: password обязателен", ErrValidation)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	user := &model.User{
		UserID:       userID,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		AuthProvider: model.AuthProviderLocal,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	token, err := s.codec.Issue(user.UserID, user.Email, user.Name)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", user.UserID),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// Login проверяет пару userID/пароль и выпускает session-токен.
// Аккаунт без локального пароля (федеративный) через Login не входит.
func (s *AuthService) Login(ctx context.Context, userID, password string) (*AuthResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return nil, fmt.Errorf("%w: userId и password обязательны", ErrValidation)
	}

	user, err := s.users.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.codec.Issue(user.UserID, user.Email, user.Name)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Пользователь вошёл",
		slog.String("user_id", user.UserID),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// ResolveFederated находит или создаёт аккаунт по профилю внешнего
// провайдера и выпускает session-токен. Ключ связывания — email,
// поэтому непроверенный адрес отклоняется до любых изменений в БД.
//
// Существующий локальный аккаунт дополняется google_id и аватаром,
// локальный пароль при этом сохраняется.
func (s *AuthService) ResolveFederated(ctx context.Context, identity *idp.Identity) (*AuthResult, error) {
	if !identity.EmailVerified {
		return nil, ErrEmailUnverified
	}
	email := normalizeEmail(identity.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: провайдер не вернул email", ErrValidation)
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if patched := s.patchFederated(user, identity); patched {
			if err := s.users.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("обновление пользователя: %w", err)
			}
		}
	case errors.Is(err, repository.ErrNotFound):
		user = &model.User{
			UserID:       deriveUserID(email),
			Name:         identity.Name,
			Email:        email,
			GoogleID:     identity.Subject,
			Picture:      identity.Picture,
			AuthProvider: model.AuthProviderGoogle,
		}
		if user.Name == "" {
			user.Name = email
		}
		if err := s.users.Create(ctx, user); err != nil {
			// Гонка с параллельным входом того же аккаунта: пользователь
			// уже создан, перечитываем его.
			if errors.Is(err, repository.ErrConflict) {
				user, err = s.users.GetByEmail(ctx, email)
				if err != nil {
					return nil, fmt.Errorf("повторный поиск пользователя: %w", err)
				}
			} else {
				return nil, fmt.Errorf("создание пользователя: %w", err)
			}
		} else {
			s.logger.Info("Создан федеративный аккаунт",
				slog.String("user_id", user.UserID),
			)
		}
	default:
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}

	token, err := s.codec.Issue(user.UserID, user.Email, user.Name)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

// patchFederated дополняет существующий аккаунт данными провайдера.
// Заполняются только пустые поля: локальные данные не перетираются.
func (s *AuthService) patchFederated(user *model.User, identity *idp.Identity) bool {
	patched := false
	if user.GoogleID == "" && identity.Subject != "" {
		user.GoogleID = identity.Subject
		patched = true
	}
	if user.Picture == "" && identity.Picture != "" {
		user.Picture = identity.Picture
		patched = true
	}
	return patched
}
