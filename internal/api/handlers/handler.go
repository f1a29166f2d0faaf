// handler.go — общие вспомогательные функции обработчиков API Auth Module.
package handlers

import (
	"encoding/json"
	"net/http"
)

// maxBodySize — предел размера тела запроса (1 MiB).
// Отчёты с JSONB-данными укладываются с запасом.
const maxBodySize = 1 << 20

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса в v с ограничением размера.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}
