package model

import (
	"encoding/json"
	"time"
)

// Report — сохранённый финансовый отчёт пользователя.
// Хранится в таблице reports. Содержимое data/totals принадлежит
// фронтенду и хранится как JSONB без интерпретации.
type Report struct {
	// ID — суррогатный числовой ключ
	ID int64
	// UserID — внутренний ID владельца (users.id)
	UserID int64
	// Name — название отчёта
	Name string
	// ReportType — тип отчёта (balance, inventory, registros, mayores)
	ReportType string
	// ProgramID — необязательная ссылка на программу
	ProgramID *int64
	// Date — отчётная дата
	Date time.Time
	// Data — строки отчёта (raw JSON)
	Data json.RawMessage
	// Totals — итоговые значения (raw JSON)
	Totals json.RawMessage
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// PublicReport — JSON-представление отчёта для API-ответов.
type PublicReport struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	ReportType string          `json:"reportType"`
	ProgramID  *int64          `json:"programId"`
	Date       string          `json:"date"`
	Data       json.RawMessage `json:"data"`
	Totals     json.RawMessage `json:"totals"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

// Public возвращает представление отчёта для API-ответов.
func (r *Report) Public() PublicReport {
	data := r.Data
	if len(data) == 0 {
		data = json.RawMessage("[]")
	}
	totals := r.Totals
	if len(totals) == 0 {
		totals = json.RawMessage("{}")
	}
	return PublicReport{
		ID:         r.ID,
		Name:       r.Name,
		ReportType: r.ReportType,
		ProgramID:  r.ProgramID,
		Date:       r.Date.Format("2006-01-02"),
		Data:       data,
		Totals:     totals,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// LedgerAccount — запись плана счетов.
// Хранится в таблице ledger_accounts.
type LedgerAccount struct {
	// ID — суррогатный числовой ключ
	ID int64
	// Account — имя счёта (уникальное)
	Account string
	// Classification — классификация (Activo, Pasivo, Capital)
	Classification string
	// Description — описание счёта
	Description string
}

// PublicLedgerAccount — JSON-представление счёта для API-ответов.
type PublicLedgerAccount struct {
	ID             int64  `json:"id"`
	Account        string `json:"account"`
	Classification string `json:"classification"`
	Description    string `json:"description"`
}

// Public возвращает представление счёта для API-ответов.
func (a *LedgerAccount) Public() PublicLedgerAccount {
	return PublicLedgerAccount{
		ID:             a.ID,
		Account:        a.Account,
		Classification: a.Classification,
		Description:    a.Description,
	}
}
