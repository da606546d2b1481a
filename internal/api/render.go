package api

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/hpungsan/stream/internal/errors"
)

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes the error envelope. Non-Stream errors become INTERNAL.
func renderError(w http.ResponseWriter, err error) {
	sErr, ok := errors.As(err)
	if !ok {
		sErr = errors.NewInternal(err)
	}
	renderJSON(w, sErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(sErr.Code),
			"message": sErr.Message,
			"status":  sErr.Status,
		},
	})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if sErr, ok := errors.As(err); ok {
			return sErr
		}
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			return errors.NewInvalidRequest("request body too large")
		}
		if stderrors.Is(err, io.EOF) {
			return errors.NewInvalidRequest("request body is required")
		}
		return errors.NewInvalidRequest("invalid JSON: " + err.Error())
	}
	return nil
}
