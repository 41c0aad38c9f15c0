package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isUnavailable(err error) bool {
	return errors.Is(err, shared.ErrStoreUnavailable) || errors.Is(err, shared.ErrServiceUnavailable)
}

// StatusOf maps an error from the layers below onto an HTTP status and client message.
func StatusOf(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidToken):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, shared.ErrDuplicateEntry):
		return http.StatusBadRequest, shared.ErrDuplicateEntry.Error()
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, shared.ErrRecordNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, shared.ErrOrphanedRecordRisk):
		return http.StatusInternalServerError, err.Error()
	case isUnavailable(err):
		return http.StatusServiceUnavailable, "service unavailable"
	case errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError answers with the status [StatusOf] picks. Server-side failures are logged.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	status, msg := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", shared.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON: %v", shared.ErrInvalidInput, err)
	}
	return nil
}
