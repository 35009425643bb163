// Package httpapi is the thin HTTP transport over the identity services:
// routing, request decoding, token extraction, per-IP request rate limiting,
// and the mapping from the error taxonomy to status codes. No business rule
// lives here.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/quizforge/identity/internal/common"
)

// errorResponse is the caller-visible error envelope. Details are populated
// only for validation errors; everything else stays generic.
type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a service error to its HTTP status and generic message.
// Internal detail never reaches the response body.
func writeError(w http.ResponseWriter, err error) {
	status, code, message := http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred"
	var details string

	switch {
	case errors.Is(err, common.ErrorInvalidCredentials):
		status, code, message = http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials"
	case errors.Is(err, common.ErrorAccountLocked):
		status, code, message = http.StatusForbidden, "ACCOUNT_LOCKED", "Account is locked. Please contact support."
	case errors.Is(err, common.ErrorCaptchaRequired):
		status, code, message = http.StatusForbidden, "CAPTCHA_REQUIRED", "CAPTCHA verification required"
	case errors.Is(err, common.ErrorInvalidCaptcha):
		status, code, message = http.StatusBadRequest, "INVALID_CAPTCHA", "Invalid CAPTCHA response"
	case errors.Is(err, common.ErrorTokenExpired):
		status, code, message = http.StatusUnauthorized, "TOKEN_EXPIRED", "Authentication token has expired"
	case errors.Is(err, common.ErrorTokenRevoked):
		status, code, message = http.StatusUnauthorized, "TOKEN_REVOKED", "Authentication token has been revoked"
	case errors.Is(err, common.ErrorInvalidToken):
		status, code, message = http.StatusUnauthorized, "INVALID_TOKEN", "Invalid authentication token"
	case errors.Is(err, common.ErrorPermissionDenied):
		status, code, message = http.StatusForbidden, "PERMISSION_DENIED", "You don't have permission to perform this action"
	case errors.Is(err, common.ErrorOwnershipRequired):
		status, code, message = http.StatusForbidden, "OWNERSHIP_REQUIRED", "You can only modify your own resources"
	case errors.Is(err, common.ErrorQuotaExceeded):
		status, code, message = http.StatusForbidden, "QUOTA_EXCEEDED", "Quota limit exceeded"
	case errors.Is(err, common.ErrorRenewNotAllowed):
		status, code, message = http.StatusForbidden, "RENEW_NOT_ALLOWED", "Quota renewal is not available"
	case errors.Is(err, common.ErrorInvalidRenewProof):
		status, code, message = http.StatusBadRequest, "INVALID_RENEW_PROOF", "Invalid renewal proof provided"
	case errors.Is(err, common.ErrorIdempotencyConflict):
		status, code, message = http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Request already processed"
	case errors.Is(err, common.ErrorEmailAlreadyExists):
		status, code, message = http.StatusConflict, "EMAIL_EXISTS", "Email already registered"
	case errors.Is(err, common.ErrorValidation):
		status, code, message = http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed"
		details = validationDetail(err)
	case errors.Is(err, common.ErrorTooManyRequests):
		status, code, message = http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many requests. Please try again later."
	case errors.Is(err, common.ErrorDeviceLimitExceeded):
		status, code, message = http.StatusForbidden, "DEVICE_LIMIT_EXCEEDED", "Device limit exceeded for guest accounts"
	case errors.Is(err, common.ErrorNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", "Resource not found"
	}

	writeJSON(w, status, errorResponse{Error: message, Code: code, Details: details})
}

// validationDetail extracts the reason a validation error carries beyond the
// sentinel, e.g. "password must contain a digit".
func validationDetail(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, common.ErrorValidation.Error()+": "); ok {
		return rest
	}
	return ""
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return common.ErrorValidation
	}
	return nil
}
