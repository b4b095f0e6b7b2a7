// Package api provides HTTP handlers and routing for the cube service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/cubestore"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	RequestID   string `json:"request_id,omitempty"`
}

// Error codes used by the HTTP surface in addition to those of cubeerr.
const (
	ErrCodeBadRequest = "BadRequest"
	ErrCodeNotFound   = "NotFound"
)

// WriteJSON writes a JSON response with the given status code and value.
// If encoding fails, it logs the error.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response",
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeError(w, status, APIError{Code: code, Description: message})
}

// WriteErrorWithRequestID writes an error response carrying the request id.
func WriteErrorWithRequestID(w http.ResponseWriter, status int, code, message, requestID string) {
	writeError(w, status, APIError{Code: code, Description: message, RequestID: requestID})
}

func writeError(w http.ResponseWriter, status int, body APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteBadRequest writes a 400 Bad Request error response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInvalidParameter writes a 400 Bad Request error for invalid parameters.
func WriteInvalidParameter(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, cubeerr.CodeInvalidRequest, message)
}

// WriteInternalErrorWithRequestID writes a 500 Internal Server Error response.
func WriteInternalErrorWithRequestID(w http.ResponseWriter, message, requestID string) {
	WriteErrorWithRequestID(w, http.StatusInternalServerError, cubeerr.CodeInternal, message, requestID)
}

// StatusFor maps a build or chunk error onto an HTTP status and error code.
func StatusFor(err error) (int, string) {
	if errors.Is(err, cubestore.ErrNotFound) || errors.Is(err, cubestore.ErrExpired) {
		return http.StatusNotFound, ErrCodeNotFound
	}
	code := cubeerr.Code(err)
	switch {
	case code == cubeerr.CodeNoData:
		return http.StatusNotFound, code
	case cubeerr.IsConfiguration(err):
		return http.StatusBadRequest, code
	case code == cubeerr.CodeInternal:
		return http.StatusInternalServerError, code
	default:
		return http.StatusBadGateway, code
	}
}
