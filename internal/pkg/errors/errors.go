package errors

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput            = "INVALID_INPUT"
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeForbidden               = "FORBIDDEN"
	ErrCodeNotFound                = "NOT_FOUND"
	ErrCodeConflict                = "CONFLICT"
	ErrCodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal                = "INTERNAL_ERROR"
	ErrCodeOrganizationDeactivated = "ORGANIZATION_DEACTIVATED"
	ErrCodeSubscriptionExpired     = "SUBSCRIPTION_EXPIRED"
	ErrCodeLimitExceeded           = "LIMIT_EXCEEDED"
	ErrCodeFeatureUnavailable      = "FEATURE_UNAVAILABLE"
	ErrCodeGateway                 = "GATEWAY_ERROR"
	ErrCodePaymentMethodRequired   = "PAYMENT_METHOD_REQUIRED"
	ErrCodeInvalidSignature        = "INVALID_SIGNATURE"
)

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}
