package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the generic JSON error payload.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON encodes v and writes it with status code. An encoding failure is
// logged and replaced by InternalError before anything is written.
func JSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("respond: encode json body", "err", err)
		InternalError(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data) //nolint:errcheck
}

// Error writes {"error": msg} with status code.
func Error(w http.ResponseWriter, code int, msg string) {
	JSON(w, code, ErrorBody{Error: msg})
}

// Text writes a plain-text body with status code.
func Text(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(body)) //nolint:errcheck
}

// InternalError writes a generic 500. Headers staged by the failed handler are
// discarded so nothing half-built reaches the client.
func InternalError(w http.ResponseWriter) {
	h := w.Header()
	for k := range h {
		delete(h, k)
	}
	Text(w, http.StatusInternalServerError, "Internal Server Error")
}
