package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"brokeradmin/core"
	"brokeradmin/service"
)

const (
	permissionDeniedMessage = "You don't have permission to perform this operation!"
	internalErrorMessage    = "Internal server error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	ErrorCode string    `json:"errorCode"`
	Timestamp time.Time `json:"timestamp"`
}

// respondJSON writes a JSON response with proper error handling
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// statusOf maps an error to its HTTP status and wire code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "AUTHENTICATION"
	case errors.Is(err, service.ErrAccountDisabled):
		return http.StatusUnauthorized, "AUTHENTICATION"
	}

	var be *core.BrokerError
	if !errors.As(err, &be) {
		return http.StatusInternalServerError, core.General.String()
	}
	switch be.Code {
	case core.InvalidArguments:
		return http.StatusBadRequest, be.Code.String()
	case core.PermissionDenied:
		return http.StatusForbidden, be.Code.String()
	case core.ItemNotFound:
		return http.StatusNotFound, be.Code.String()
	default:
		return http.StatusInternalServerError, be.Code.String()
	}
}

// writeError renders err. Broker errors carry a client-safe message; anything else is
// logged in full and reported as an internal error.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)

	message := internalErrorMessage
	var be *core.BrokerError
	switch {
	case errors.As(err, &be):
		message = be.Message
	case status == http.StatusUnauthorized:
		message = err.Error()
	}

	logger := a.requestLogger(r)
	if status >= http.StatusInternalServerError {
		logger.Errorw("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Debugw("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	a.writeStatus(w, status, code, message)
}

func (a *API) writeStatus(w http.ResponseWriter, status int, code, message string) {
	a.respondJSON(w, ErrorResponse{
		Status:    status,
		Message:   message,
		ErrorCode: code,
		Timestamp: time.Now().UTC(),
	}, status)
}

// decodeJSONBody decodes a size-limited JSON body and rejects unknown fields.
// Decode failures are reported as invalid parameters.
func (a *API) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.MaxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	err := decoder.Decode(dst)
	if err == nil {
		return nil
	}

	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesError):
		return core.NewInvalidParameterError("Request body too large")
	case errors.As(err, &syntaxError):
		return core.NewInvalidParameterError("Invalid JSON syntax at byte offset %d", syntaxError.Offset)
	case errors.As(err, &unmarshalTypeError):
		return core.NewInvalidParameterError("Invalid type for field '%s': expected %s", unmarshalTypeError.Field, unmarshalTypeError.Type)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return core.NewInvalidParameterError("JSON contains %s", strings.TrimPrefix(err.Error(), "json: "))
	default:
		return core.NewInvalidParameterError("Invalid JSON body")
	}
}

// audit writes one AUDIT line for an administrative action.
func (a *API) audit(r *http.Request, action, outcome string, kv ...interface{}) {
	userID, _ := GetUserID(r.Context())
	fields := []interface{}{
		"action", action,
		"outcome", outcome,
		"user_id", userID.String(),
		"source_ip", getRealIP(r, a.config.API.TrustProxy),
		"timestamp", time.Now().UTC(),
	}
	a.requestLogger(r).Infow("AUDIT: "+action, append(fields, kv...)...)
}
