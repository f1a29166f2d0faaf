package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
)

// UserRepository — интерфейс доступа к таблице users.
// Записи не удаляются; user_id, email и id после создания не меняются.
type UserRepository interface {
	// Create создаёт пользователя. При дублировании user_id или email
	// возвращает обёрнутый ErrConflict.
	Create(ctx context.Context, u *model.User) error
	// GetByUserID возвращает пользователя по внешнему идентификатору.
	GetByUserID(ctx context.Context, userID string) (*model.User, error)
	// GetByEmail возвращает пользователя по email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Update обновляет изменяемые поля (name, password_hash, google_id,
	// picture, auth_provider). user_id, email и id не затрагиваются.
	Update(ctx context.Context, u *model.User) error
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, user_id, name, email, password_hash, google_id, picture, auth_provider, created_at`

// scanUser сканирует строку результата в модель User.
func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.UserID, &u.Name, &u.Email, &u.PasswordHash,
		&u.GoogleID, &u.Picture, &u.AuthProvider, &u.CreatedAt,
	)
	return u, err
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (user_id, name, email, password_hash, google_id, picture, auth_provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		u.UserID, u.Name, u.Email, u.PasswordHash, u.GoogleID, u.Picture, u.AuthProvider,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь с таким user_id или email уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByUserID(ctx context.Context, userID string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE user_id = $1`, userColumns)
	u, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	u, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по email: %w", err)
	}
	return u, nil
}

func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET name = $2, password_hash = $3, google_id = $4, picture = $5, auth_provider = $6
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		u.ID, u.Name, u.PasswordHash, u.GoogleID, u.Picture, u.AuthProvider,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
