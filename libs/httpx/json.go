package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON encodes v with status. Encoding failures become a plain 500.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorBody{Error: msg})
}

func WriteFieldError(w http.ResponseWriter, status int, field, msg string) {
	WriteJSON(w, status, errorBody{Error: msg, Field: field})
}
