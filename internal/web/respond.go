package web

import (
	"encoding/json"
	"net/http"
)

const (
	msgPropertyNotFound = "property not found"
	msgCleanupFailed    = "image cleanup failed"
)

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes {"error": msg} merged with meta.
func writeJSONError(w http.ResponseWriter, status int, msg string, meta map[string]any) {
	body := map[string]any{}
	for k, v := range meta {
		body[k] = v
	}
	body["error"] = msg
	writeJSON(w, status, body)
}

// writeJSONSuccess writes {"success": true} merged with meta.
func writeJSONSuccess(w http.ResponseWriter, status int, meta map[string]any) {
	body := map[string]any{}
	for k, v := range meta {
		body[k] = v
	}
	body["success"] = true
	writeJSON(w, status, body)
}
