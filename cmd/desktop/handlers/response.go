// Package handlers provides the REST API handlers of the local bridge.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/logging"
)

// errorBody is the JSON body of every error response.
type errorBody struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", err)
	}
}

// statusFor maps an application error code to an HTTP status.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrInvalid:
		return http.StatusBadRequest
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrImageDecode, apperrors.ErrImageEncode:
		return http.StatusUnprocessableEntity
	case apperrors.ErrDetectionFailed, apperrors.ErrDetectionInvalid, apperrors.ErrSyncFailed:
		return http.StatusBadGateway
	case apperrors.ErrStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, statusFor(code), errorBody{Code: code, Message: err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err)
	}
	return nil
}
