package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"denied", &AuthorizationDeniedError{Reason: "wrong role"}, http.StatusForbidden, ErrCodeForbidden},
		{"deactivated", &SubscriptionInactiveError{Kind: KindOrganizationDeactivated, Reason: "organization deactivated"}, http.StatusPaymentRequired, ErrCodeOrganizationDeactivated},
		{"expired", &SubscriptionInactiveError{Kind: KindBilling, Reason: "subscription expired"}, http.StatusPaymentRequired, ErrCodeSubscriptionExpired},
		{"limit", &LimitExceededError{Resource: "patient", Current: 100, Limit: 100}, http.StatusForbidden, ErrCodeLimitExceeded},
		{"feature", &FeatureUnavailableError{Feature: "api_access", Plan: "basic"}, http.StatusForbidden, ErrCodeFeatureUnavailable},
		{"gateway wrapped", fmt.Errorf("change plan: %w", &GatewayCallFailedError{Op: "swap_price", Err: fmt.Errorf("timeout")}), http.StatusBadGateway, ErrCodeGateway},
		{"payment method", ErrPaymentMethodRequired, http.StatusPaymentRequired, ErrCodePaymentMethodRequired},
		{"not found", ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteDomainError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestInactiveRedirects(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteDomainError(rr, &SubscriptionInactiveError{Kind: KindBilling, Reason: "trial period expired"})

	var body struct {
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, RedirectSubscriptionExpired, body.Details["redirect"])
	assert.Equal(t, RedirectOrganizationDeactivated, KindOrganizationDeactivated.Redirect())
}
