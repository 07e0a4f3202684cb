package utils

import (
	"encoding/json"
	"net/http"
)

// JSONWrite encodes v as the JSON response body. A non-zero status is
// written first; a zero status leaves the header to net/http's default.
func JSONWrite(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	if status > 0 {
		w.WriteHeader(status)
	}
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}

// JSONError writes {"error": message} with the given status code.
func JSONError(w http.ResponseWriter, status int, message string) {
	_ = JSONWrite(w, status, map[string]string{"error": message})
}
