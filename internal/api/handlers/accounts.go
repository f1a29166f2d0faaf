// accounts.go — обработчики плана счетов. Маршруты защищены SessionAuth.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/avkuzmin/reportstore/auth-module/internal/api/errors"
	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
	"github.com/avkuzmin/reportstore/auth-module/internal/service"
)

// LedgerHandler — обработчики /api/accounts.
type LedgerHandler struct {
	ledger *service.LedgerService
	logger *slog.Logger
}

// NewLedgerHandler создаёт обработчики плана счетов.
func NewLedgerHandler(ledger *service.LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		logger: logger.With(slog.String("component", "ledger_handler")),
	}
}

// Create — POST /api/accounts. Добавляет счёт в план счетов.
func (h *LedgerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateAccountInput
	if err := decodeJSON(w, r, &in); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	account, err := h.ledger.Create(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrAccountTaken):
			apierrors.Conflict(w, err.Error())
		default:
			h.logger.Error("Внутренняя ошибка при создании счёта",
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Внутренняя ошибка сервера")
		}
		return
	}

	writeJSON(w, http.StatusCreated, account.Public())
}

// List — GET /api/accounts. Полный план счетов.
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.List(r.Context())
	if err != nil {
		h.logger.Error("Внутренняя ошибка при выборке счетов",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	out := make([]model.PublicLedgerAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Public())
	}
	writeJSON(w, http.StatusOK, out)
}
