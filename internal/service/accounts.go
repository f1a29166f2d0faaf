package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
	"github.com/avkuzmin/reportstore/auth-module/internal/repository"
)

// ErrAccountTaken — счёт с таким именем уже существует.
var ErrAccountTaken = errors.New("счёт с таким именем уже существует")

// Допустимые классификации счетов.
var classifications = map[string]bool{
	"Activo":  true,
	"Pasivo":  true,
	"Capital": true,
}

// initialAccounts — стартовый план счетов для пустой базы.
var initialAccounts = []model.LedgerAccount{
	{Account: "Caja", Classification: "Activo", Description: "Efectivo disponible"},
	{Account: "Bancos", Classification: "Activo", Description: "Depósitos bancarios"},
	{Account: "Clientes", Classification: "Activo", Description: "Cuentas por cobrar"},
	{Account: "Inventarios", Classification: "Activo", Description: "Mercancías en almacén"},
	{Account: "Equipo de Transporte", Classification: "Activo", Description: "Vehículos"},
	{Account: "Mobiliario y Equipo", Classification: "Activo", Description: "Muebles y equipos"},
	{Account: "Edificio", Classification: "Activo", Description: "Inmuebles"},
	{Account: "Terrenos", Classification: "Activo", Description: "Propiedades"},
	{Account: "Proveedores", Classification: "Pasivo", Description: "Cuentas por pagar"},
	{Account: "Documentos por Pagar", Classification: "Pasivo", Description: "Obligaciones"},
	{Account: "Acreedores Diversos", Classification: "Pasivo", Description: "Otras cuentas"},
	{Account: "Hipotecas por Pagar", Classification: "Pasivo", Description: "Préstamos"},
	{Account: "Capital Social", Classification: "Capital", Description: "Aportaciones"},
	{Account: "Utilidad del Ejercicio", Classification: "Capital", Description: "Ganancias"},
	{Account: "Reserva Legal", Classification: "Capital", Description: "Reservas"},
}

// LedgerService — справочник плана счетов. План счетов общий для всех
// пользователей, аутентификация нужна только для доступа.
type LedgerService struct {
	accounts repository.LedgerAccountRepository
	logger   *slog.Logger
}

// NewLedgerService создаёт сервис плана счетов.
func NewLedgerService(accounts repository.LedgerAccountRepository, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		accounts: accounts,
		logger:   logger.With(slog.String("component", "ledger_service")),
	}
}

// CreateAccountInput — вход операции добавления счёта.
type CreateAccountInput struct {
	Account        string `json:"account"`
	Classification string `json:"classification"`
	Description    string `json:"description"`
}

// Create добавляет счёт в план счетов.
func (s *LedgerService) Create(ctx context.Context, in CreateAccountInput) (*model.LedgerAccount, error) {
	in.Account = strings.TrimSpace(in.Account)
	if in.Account == "" {
		return nil, fmt.Errorf("%w: account обязателен", ErrValidation)
	}
	if !classifications[in.Classification] {
		return nil, fmt.Errorf("%w: недопустимая classification %q", ErrValidation, in.Classification)
	}

	account := &model.LedgerAccount{
		Account:        in.Account,
		Classification: in.Classification,
		Description:    strings.TrimSpace(in.Description),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAccountTaken
		}
		return nil, fmt.Errorf("создание счёта: %w", err)
	}

	s.logger.Info("Счёт добавлен",
		slog.Int64("account_id", account.ID),
		slog.String("account", account.Account),
	)
	return account, nil
}

// Seed загружает стартовый план счетов, если таблица пуста.
// Уже наполненная таблица не трогается; гонка двух экземпляров
// разрешается уникальным ограничением — дубль при вставке пропускается.
func (s *LedgerService) Seed(ctx context.Context) error {
	count, err := s.accounts.Count(ctx)
	if err != nil {
		return fmt.Errorf("подсчёт счетов: %w", err)
	}
	if count > 0 {
		return nil
	}

	for i := range initialAccounts {
		account := initialAccounts[i]
		if err := s.accounts.Create(ctx, &account); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return fmt.Errorf("загрузка счёта %q: %w", account.Account, err)
		}
	}

	s.logger.Info("Стартовый план счетов загружен",
		slog.Int("count", len(initialAccounts)),
	)
	return nil
}

// List возвращает все счета плана счетов.
func (s *LedgerService) List(ctx context.Context) ([]*model.LedgerAccount, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("выборка счетов: %w", err)
	}
	return accounts, nil
}
