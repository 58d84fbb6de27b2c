package httpjson

import (
	"encoding/json"
	"net/http"
)

// Write sérialise v en JSON avec le status donné.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renvoie une erreur au format {"error": "..."}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	Write(w, status, map[string]string{"error": msg})
}
