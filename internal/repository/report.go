package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
)

// ReportRepository — интерфейс доступа к таблице reports.
type ReportRepository interface {
	// Create создаёт отчёт.
	Create(ctx context.Context, rep *model.Report) error
	// GetByID возвращает отчёт по ID.
	GetByID(ctx context.Context, id int64) (*model.Report, error)
	// ListByUser возвращает отчёты пользователя, новые первыми.
	ListByUser(ctx context.Context, userID int64) ([]*model.Report, error)
}

// reportRepo — реализация ReportRepository.
type reportRepo struct {
	db DBTX
}

// NewReportRepository создаёт репозиторий отчётов.
func NewReportRepository(db DBTX) ReportRepository {
	return &reportRepo{db: db}
}

const reportColumns = `id, user_id, name, report_type, program_id, report_date, data, totals, created_at, updated_at`

func (r *reportRepo) Create(ctx context.Context, rep *model.Report) error {
	// Пустые data/totals сохраняются как пустые JSON-значения, не NULL.
	if len(rep.Data) == 0 {
		rep.Data = []byte("[]")
	}
	if len(rep.Totals) == 0 {
		rep.Totals = []byte("{}")
	}

	query := `
		INSERT INTO reports (user_id, name, report_type, program_id, report_date, data, totals)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rep.UserID, rep.Name, rep.ReportType, rep.ProgramID, rep.Date, rep.Data, rep.Totals,
	).Scan(&rep.ID, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания отчёта: %w", err)
	}
	return nil
}

func (r *reportRepo) GetByID(ctx context.Context, id int64) (*model.Report, error) {
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE id = $1`, reportColumns)

	rep := &model.Report{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rep.ID, &rep.UserID, &rep.Name, &rep.ReportType, &rep.ProgramID,
		&rep.Date, &rep.Data, &rep.Totals, &rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения отчёта: %w", err)
	}
	return rep, nil
}

func (r *reportRepo) ListByUser(ctx context.Context, userID int64) ([]*model.Report, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM reports
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, reportColumns)

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка отчётов: %w", err)
	}
	defer rows.Close()

	var result []*model.Report
	for rows.Next() {
		rep := &model.Report{}
		if err := rows.Scan(
			&rep.ID, &rep.UserID, &rep.Name, &rep.ReportType, &rep.ProgramID,
			&rep.Date, &rep.Data, &rep.Totals, &rep.CreatedAt, &rep.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования отчёта: %w", err)
		}
		result = append(result, rep)
	}
	return result, rows.Err()
}
