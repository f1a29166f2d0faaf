// reports.go — обработчики отчётов. Все маршруты защищены SessionAuth.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/avkuzmin/reportstore/auth-module/internal/api/errors"
	"github.com/avkuzmin/reportstore/auth-module/internal/api/middleware"
	"github.com/avkuzmin/reportstore/auth-module/internal/domain/model"
	"github.com/avkuzmin/reportstore/auth-module/internal/service"
)

// ReportHandler — обработчики /api/reports.
type ReportHandler struct {
	reports *service.ReportService
	logger  *slog.Logger
}

// NewReportHandler создаёт обработчики отчётов.
func NewReportHandler(reports *service.ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  logger.With(slog.String("component", "report_handler")),
	}
}

// writeReportError транслирует ошибку сервиса отчётов в HTTP-ответ.
func (h *ReportHandler) writeReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Отчёт не найден")
	default:
		h.logger.Error("Внутренняя ошибка при работе с отчётами",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// userID возвращает внешний идентификатор пользователя из контекста.
func userID(r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return "", false
	}
	return claims.UserID(), true
}

// Create — POST /api/reports. Сохраняет отчёт текущего пользователя.
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var in service.CreateReportInput
	if err := decodeJSON(w, r, &in); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	report, err := h.reports.Create(r.Context(), uid, in)
	if err != nil {
		h.writeReportError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, report.Public())
}

// List — GET /api/reports. Отчёты текущего пользователя, новые первыми.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	reports, err := h.reports.List(r.Context(), uid)
	if err != nil {
		h.writeReportError(w, err)
		return
	}

	out := make([]model.PublicReport, 0, len(reports))
	for _, rep := range reports {
		out = append(out, rep.Public())
	}
	writeJSON(w, http.StatusOK, out)
}

// Get — GET /api/reports/{id}. Отчёт по id; чужой отчёт — 404.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный id отчёта")
		return
	}

	report, err := h.reports.Get(r.Context(), uid, id)
	if err != nil {
		h.writeReportError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report.Public())
}
