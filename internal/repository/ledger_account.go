package repository

import (
	"context"
	"fmt"

	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
)

// LedgerAccountRepository — интерфейс доступа к таблице ledger_accounts.
type LedgerAccountRepository interface {
	// Create создаёт счёт. При дублировании имени возвращает обёрнутый ErrConflict.
	Create(ctx context.Context, a *model.LedgerAccount) error
	// List возвращает все счета в порядке создания.
	List(ctx context.Context) ([]*model.LedgerAccount, error)
	// Count возвращает количество счетов.
	Count(ctx context.Context) (int, error)
}

// ledgerAccountRepo — реализация LedgerAccountRepository.
type ledgerAccountRepo struct {
	db DBTX
}

// NewLedgerAccountRepository создаёт репозиторий плана счетов.
func NewLedgerAccountRepository(db DBTX) LedgerAccountRepository {
	return &ledgerAccountRepo{db: db}
}

func (r *ledgerAccountRepo) Create(ctx context.Context, a *model.LedgerAccount) error {
	query := `
		INSERT INTO ledger_accounts (account, classification, description)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, a.Account, a.Classification, a.Description).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: счёт с таким именем уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания счёта: %w", err)
	}
	return nil
}

func (r *ledgerAccountRepo) List(ctx context.Context) ([]*model.LedgerAccount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, account, classification, description FROM ledger_accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения плана счетов: %w", err)
	}
	defer rows.Close()

	var result []*model.LedgerAccount
	for rows.Next() {
		a := &model.LedgerAccount{}
		if err := rows.Scan(&a.ID, &a.Account, &a.Classification, &a.Description); err != nil {
			return nil, fmt.Errorf("ошибка сканирования счёта: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *ledgerAccountRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта счетов: %w", err)
	}
	return count, nil
}
