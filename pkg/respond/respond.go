// Package respond — единый формат JSON-ответов API
package respond

import (
	"encoding/json"
	"net/http"
)

func JSON(w http.ResponseWriter, r *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, r *http.Request, code int, message string) {
	JSON(w, r, code, map[string]string{"error": message})
}

// NoContent — успешное завершение без тела (delete, reorder)
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
