package clinical

import (
	"encoding/json"
	"net/http"
)

// apiError is the JSON error envelope shared with the other two services'
// `{error, message}` shape (spec.md §6 Error responses).
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSONBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, category, message string) {
	writeJSONBody(w, status, apiError{Error: category, Message: message})
}
