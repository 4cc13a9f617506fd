package webui

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fpang/image-inspect/internal/fetch"
	"github.com/fpang/image-inspect/internal/forensics"
	"github.com/rs/zerolog"
)

// respondJSON encodes data before writing the header. An encoding failure
// becomes a JSON 500.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Failed to encode response")
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeBody(w, r, append(body, '\n'))
}

func httpError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, map[string]string{"error": message})
}

// writeBody writes b and logs a failed write.
func writeBody(w http.ResponseWriter, r *http.Request, b []byte) {
	if _, err := w.Write(b); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to write response body")
	}
}

// errorStatus maps an analysis failure to the response status.
func errorStatus(err error) int {
	var fetchErr *fetch.Error
	var decodeErr *forensics.DecodeError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
