package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/avkuzmin/reportstore/auth-module/internal/auth"
	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
	"github.com/avkuzmin/reportstore/auth-module/internal/idp"
	"github.com/avkuzmin/reportstore/auth-module/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeUserRepo — in-memory реализация UserRepository для unit-тестов.
type fakeUserRepo struct {
	users  map[string]*model.User // ключ — email
	nextID int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	if _, ok := f.users[user.Email]; ok {
		return repository.ErrConflict
	}
	for _, u := range f.users {
		if u.UserID == user.UserID {
			return repository.ErrConflict
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now().UTC()
	cp := *user
	f.users[user.Email] = &cp
	return nil
}

func (f *fakeUserRepo) GetByUserID(_ context.Context, userID string) (*model.User, error) {
	for _, u := range f.users {
		if u.UserID == userID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	for email, u := range f.users {
		if u.ID == user.ID {
			cp := *user
			f.users[email] = &cp
			return nil
		}
	}
	return repository.ErrNotFound
}

func newTestAuthService(repo repository.UserRepository) *AuthService {
	codec := auth.NewTokenCodec("unit-test-jwt-secret", 24*time.Hour)
	return NewAuthService(repo, codec, testLogger())
}

func TestRegister(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)
	ctx := context.Background()

	res, err := svc.Register(ctx, "ivan-p", "Иван Петров", "Ivan@Example.com", "secret123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Email != "ivan@example.com" {
		t.Errorf("email не нормализован: %q", res.User.Email)
	}
	if res.User.UserID != "ivan-p" {
		t.Errorf("user_id = %q, ожидался выбранный клиентом", res.User.UserID)
	}
	if res.User.AuthProvider != model.AuthProviderLocal {
		t.Errorf("AuthProvider = %q", res.User.AuthProvider)
	}
	if res.User.PasswordHash == "secret123" || res.User.PasswordHash == "" {
		t.Error("пароль должен храниться в виде хеша")
	}
	if res.Token == "" {
		t.Error("session-токен не выпущен")
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())
	ctx := context.Background()

	tests := []struct {
		name, userID, userName, email, password string
	}{
		{"пустой userId", "", "User", "user@example.com", "secret"},
		{"пустое имя", "user1", "", "user@example.com", "secret"},
		{"пустой email", "user1", "User", "", "secret"},
		{"email без @", "user1", "User", "not-an-email", "secret"},
		{"пустой пароль", "user1", "User", "user@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.userID, tt.userName, tt.email, tt.password)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ожидалась ErrValidation, получено: %v", err)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "user1", "User", "user@example.com", "secret123"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Повтор и по email, и по userId — ровно один успех.
	_, err := svc.Register(ctx, "user2", "Other", "user@example.com", "another")
	if !errors.Is(err, ErrDuplicateUser) {
		t.Errorf("повтор email: ожидалась ErrDuplicateUser, получено: %v", err)
	}
	_, err = svc.Register(ctx, "user1", "Other", "other@example.com", "another")
	if !errors.Is(err, ErrDuplicateUser) {
		t.Errorf("повтор userId: ожидалась ErrDuplicateUser, получено: %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "user1", "User", "user@example.com", "secret123"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := svc.Login(ctx, "user1", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token == "" {
		t.Error("session-токен не выпущен")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "user1", "User", "user@example.com", "secret123"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Несуществующий аккаунт и неверный пароль дают одну и ту же ошибку,
	// чтобы ответ не раскрывал существование аккаунта.
	_, errUnknown := svc.Login(ctx, "nobody", "secret123")
	_, errWrongPass := svc.Login(ctx, "user1", "wrong")
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Errorf("неизвестный userId: ожидалась ErrInvalidCredentials, получено: %v", errUnknown)
	}
	if !errors.Is(errWrongPass, ErrInvalidCredentials) {
		t.Errorf("неверный пароль: ожидалась ErrInvalidCredentials, получено: %v", errWrongPass)
	}
}

func TestLogin_FederatedAccountWithoutPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)
	ctx := context.Background()

	res, err := svc.ResolveFederated(ctx, &idp.Identity{
		Subject:       "108976543210123456789",
		Email:         "google@example.com",
		EmailVerified: true,
		Name:          "Google User",
	})
	if err != nil {
		t.Fatalf("ResolveFederated: %v", err)
	}

	// У федеративного аккаунта нет локального пароля, Login не проходит
	// даже с пустым паролем.
	if _, err := svc.Login(ctx, res.User.UserID, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("пустой пароль: ожидалась ErrValidation, получено: %v", err)
	}
	if _, err := svc.Login(ctx, res.User.UserID, "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ожидалась ErrInvalidCredentials, получено: %v", err)
	}
}

func TestResolveFederated_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	res, err := svc.ResolveFederated(context.Background(), &idp.Identity{
		Subject:       "108976543210123456789",
		Email:         "New.User@Example.com",
		EmailVerified: true,
		Name:          "New User",
		Picture:       "https://lh3.example.com/photo.jpg",
	})
	if err != nil {
		t.Fatalf("ResolveFederated: %v", err)
	}
	u := res.User
	if u.Email != "new.user@example.com" {
		t.Errorf("email не нормализован: %q", u.Email)
	}
	if u.UserID != deriveUserID("new.user@example.com") {
		t.Errorf("user_id = %q, ожидался производный от email", u.UserID)
	}
	if u.AuthProvider != model.AuthProviderGoogle {
		t.Errorf("AuthProvider = %q", u.AuthProvider)
	}
	if u.GoogleID != "108976543210123456789" {
		t.Errorf("GoogleID = %q", u.GoogleID)
	}
	if u.PasswordHash != "" {
		t.Error("у федеративного аккаунта не должно быть пароля")
	}
	if res.Token == "" {
		t.Error("session-токен не выпущен")
	}
}

func TestResolveFederated_LinksExistingLocalAccount(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "local-user", "Local User", "user@example.com", "secret123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := svc.ResolveFederated(ctx, &idp.Identity{
		Subject:       "108976543210123456789",
		Email:         "user@example.com",
		EmailVerified: true,
		Name:          "Google Name",
		Picture:       "https://lh3.example.com/photo.jpg",
	})
	if err != nil {
		t.Fatalf("ResolveFederated: %v", err)
	}
	u := res.User
	if u.UserID != reg.User.UserID {
		t.Errorf("федеративный вход создал новый аккаунт вместо связывания: %q != %q", u.UserID, reg.User.UserID)
	}
	if u.GoogleID != "108976543210123456789" {
		t.Errorf("GoogleID не привязан: %q", u.GoogleID)
	}
	if u.PasswordHash == "" {
		t.Error("локальный пароль потерян при связывании")
	}
	if u.Name != "Local User" {
		t.Errorf("локальное имя перетёрто: %q", u.Name)
	}

	// Локальный вход после связывания продолжает работать.
	if _, err := svc.Login(ctx, "local-user", "secret123"); err != nil {
		t.Errorf("Login после связывания: %v", err)
	}
}

func TestResolveFederated_UnverifiedEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(repo)

	_, err := svc.ResolveFederated(context.Background(), &idp.Identity{
		Subject: "108976543210123456789",
		Email:   "user@example.com",
		Name:    "User",
	})
	if !errors.Is(err, ErrEmailUnverified) {
		t.Errorf("ожидалась ErrEmailUnverified, получено: %v", err)
	}
	if len(repo.users) != 0 {
		t.Error("непроверенный email не должен приводить к созданию аккаунта")
	}
}

func TestResolveFederated_Idempotent(t *testing.T) {
	svc := newTestAuthService(newFakeUserRepo())
	ctx := context.Background()

	identity := &idp.Identity{
		Subject:       "108976543210123456789",
		Email:         "user@example.com",
		EmailVerified: true,
		Name:          "User",
	}
	first, err := svc.ResolveFederated(ctx, identity)
	if err != nil {
		t.Fatalf("первый вход: %v", err)
	}
	second, err := svc.ResolveFederated(ctx, identity)
	if err != nil {
		t.Fatalf("повторный вход: %v", err)
	}
	if first.User.UserID != second.User.UserID {
		t.Errorf("повторный вход вернул другой аккаунт: %q != %q", first.User.UserID, second.User.UserID)
	}
}

func TestDeriveUserID_Stable(t *testing.T) {
	a := deriveUserID("user@example.com")
	b := deriveUserID("user@example.com")
	if a != b {
		t.Errorf("derive нестабилен: %q != %q", a, b)
	}
	if len(a) != 12 {
		t.Errorf("длина user_id = %d, ожидалось 12", len(a))
	}
	if a == deriveUserID("other@example.com") {
		t.Error("разные email дали одинаковый user_id")
	}
}
