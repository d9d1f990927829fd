// Package handler adapts HTTP requests to the service layer.
//
// Every handler answers through writeJSON or writeError so the API has one
// error shape:
//
//	{"error": "Chat not found", "code": "not_found"}
//
// "error" is the human-readable message the frontend shows as-is, "code" is
// stable and safe to switch on.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
)

// maxBodyBytes caps request bodies. The largest legitimate body is a chat
// turn carrying a few long messages.
const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageResponse{Message: msg})
}

// writeError maps a domain error to its HTTP status. Duplicates are reported
// as 400 like every other invalid submission. Anything that is not an
// *apperror.AppError becomes a generic 500 and is logged with its cause.
//
// ERROR MAPPING IN ONE PLACE:
// Services return sentinel-wrapped errors and never pick status codes. Only
// AppError.Message reaches the client; the wrapped cause (a driver error, a
// provider response) stays in the logs, so internals never leak into the
// JSON.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, code := http.StatusInternalServerError, "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status, code = http.StatusBadRequest, "validation_error"
		case errors.Is(err, apperror.ErrConflict):
			status, code = http.StatusBadRequest, "conflict"
		case errors.Is(err, apperror.ErrUnauthorized):
			status, code = http.StatusUnauthorized, "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status, code = http.StatusForbidden, "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status, code = http.StatusNotFound, "not_found"
		case errors.Is(err, apperror.ErrUpstream):
			status, code = http.StatusBadGateway, "upstream_error"
		}

		writeJSON(w, status, ErrorResponse{Error: appErr.Message, Code: code})
		return
	}

	logger.Error("unhandled error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "Internal server error",
		Code:  "internal_error",
	})
}

// decodeJSON reads a JSON body into dst. Malformed or oversized bodies are
// reported as validation errors.
//
// MaxBytesReader stops reading at maxBodyBytes instead of buffering whatever
// the client sends, and tells the server to close the connection after the
// response.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("", fmt.Sprintf("Request body must not exceed %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "Request body is required")
		}
		return apperror.ValidationFailed("", "Invalid JSON in request body")
	}
	return nil
}
