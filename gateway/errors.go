package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/yanniks/health-companion-prototype/gateway/auth"
)

// apiError is the JSON error envelope of spec.md §6 IG HTTP surface:
// `{error: <category>, message: <string>}`.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSONBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, category auth.ErrorCategory, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Error: string(category), Message: message})
}

func writeRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(struct {
		Error             string `json:"error"`
		Message           string `json:"message"`
		RetryAfterSeconds int    `json:"retryAfterSeconds"`
	}{
		Error:             string(auth.CategoryRateLimit),
		Message:           "rate limit exceeded",
		RetryAfterSeconds: retryAfterSeconds,
	})
}
