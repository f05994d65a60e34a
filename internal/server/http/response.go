package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/lostfound/internal/common"
)

const (
	msgInvalidCredentials = "Invalid Credentials"
	msgNoLocalCredential  = "Please log in using the method you originally signed up with (e.g., Google)."
	msgServerError        = "Server Error"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Detail is the internal error text; omitted in production.
	Detail string `json:"detail,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// mapError turns an error chain into a status code and client message.
func mapError(err error) (int, string) {
	var validation *common.ValidationError
	var taken *common.IdentifierTakenError
	var duplicate *common.DuplicateIdentifierError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.As(err, &taken):
		return http.StatusBadRequest, taken.Error()
	case errors.As(err, &duplicate):
		return http.StatusBadRequest, duplicate.Error()
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, common.ErrIdentifierTaken):
		return http.StatusBadRequest, "User already exists"
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusBadRequest, msgInvalidCredentials
	case errors.Is(err, common.ErrNoLocalCredential):
		return http.StatusBadRequest, msgNoLocalCredential
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "Token has expired"
	case errors.Is(err, common.ErrUnauthenticated), errors.Is(err, common.ErrTokenMalformed):
		return http.StatusUnauthorized, "Token is not valid"
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, "User not authorized"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, common.ErrTokenSigningFailure):
		return http.StatusInternalServerError, "Token signing failed"
	default:
		return http.StatusInternalServerError, msgServerError
	}
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, msg := mapError(err)
	h.writeError(w, r, operation, status, msg, err)
}

// writeError is the single terminal responder. It logs every failure and
// writes nothing when the response has already started.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, operation string, status int, message string, err error) {
	ctx := r.Context()
	fields := []any{
		"operation", operation,
		"status_code", status,
		"message", message,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(ctx, "http operation failed", fields...)
	} else {
		h.logger.Warn(ctx, "http operation failed", fields...)
	}

	if committed(w) {
		h.logger.Warn(ctx, "response already started, error not written", "request_id", requestIDFromContext(ctx))
		return
	}

	resp := errorResponse{Success: false, Message: message}
	if !h.opts.Production && err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}
