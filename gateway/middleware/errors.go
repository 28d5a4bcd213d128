package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON envelope returned for every rejected request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError renders the error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, kind, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{Kind: kind, Code: code, Message: message}})
}

// WriteJSON renders v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
