package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
	"github.com/avkuzmin/reportstore/auth-module/internal/repository"
)

// ErrNotFound — запрошенный объект не существует или принадлежит
// другому пользователю. Для чужих отчётов ответ тот же, что для
// несуществующих: 404 не раскрывает чужие идентификаторы.
var ErrNotFound = errors.New("объект не найден")

// Допустимые типы отчётов.
var reportTypes = map[string]bool{
	"balance":   true,
	"inventory": true,
	"registros": true,
	"mayores":   true,
}

// ReportService — сохранение и выдача отчётов пользователя.
// Все операции работают в контексте владельца: отчёты одного
// пользователя невидимы для другого.
type ReportService struct {
	reports repository.ReportRepository
	users   repository.UserRepository
	logger  *slog.Logger
}

// NewReportService создаёт сервис отчётов.
func NewReportService(reports repository.ReportRepository, users repository.UserRepository, logger *slog.Logger) *ReportService {
	return &ReportService{
		reports: reports,
		users:   users,
		logger:  logger.With(slog.String("component", "report_service")),
	}
}

// owner возвращает запись пользователя по внешнему идентификатору
// из session-токена.
func (s *ReportService) owner(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Токен валиден, но пользователь удалён из БД.
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}
	return user, nil
}

// CreateReportInput — вход операции сохранения отчёта.
type CreateReportInput struct {
	Name       string          `json:"name"`
	ReportType string          `json:"reportType"`
	ProgramID  *int64          `json:"programId"`
	Date       string          `json:"date"`
	Data       json.RawMessage `json:"data"`
	Totals     json.RawMessage `json:"totals"`
}

// Create сохраняет отчёт от имени пользователя userID.
func (s *ReportService) Create(ctx context.Context, userID string, in CreateReportInput) (*model.Report, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name обязателен", ErrValidation)
	}
	if !reportTypes[in.ReportType] {
		return nil, fmt.Errorf("%w: недопустимый reportType %q", ErrValidation, in.ReportType)
	}
	date, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date должна быть в формате YYYY-MM-DD", ErrValidation)
	}

	user, err := s.owner(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &model.Report{
		UserID:     user.ID,
		Name:       in.Name,
		ReportType: in.ReportType,
		ProgramID:  in.ProgramID,
		Date:       date,
		Data:       in.Data,
		Totals:     in.Totals,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("сохранение отчёта: %w", err)
	}

	s.logger.Info("Отчёт сохранён",
		slog.Int64("report_id", report.ID),
		slog.String("user_id", userID),
		slog.String("report_type", report.ReportType),
	)
	return report, nil
}

// List возвращает отчёты пользователя, новые первыми.
func (s *ReportService) List(ctx context.Context, userID string) ([]*model.Report, error) {
	user, err := s.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	reports, err := s.reports.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("выборка отчётов: %w", err)
	}
	return reports, nil
}

// Get возвращает отчёт пользователя по id. Чужой отчёт неотличим
// от несуществующего.
func (s *ReportService) Get(ctx context.Context, userID string, reportID int64) (*model.Report, error) {
	user, err := s.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("выборка отчёта: %w", err)
	}
	if report.UserID != user.ID {
		return nil, ErrNotFound
	}
	return report, nil
}
