package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	apiContext "praxis/internal/api/context"
	"praxis/internal/engine/subscriptions"
	apperrors "praxis/internal/pkg/errors"
	"praxis/internal/platform/auth"
)

type stubStatus struct {
	out   subscriptions.Outcome
	calls int
}

func (s *stubStatus) Require(ctx context.Context, orgID string) (subscriptions.Outcome, error) {
	s.calls++
	return s.out, s.out.Err()
}

func TestSubscriptionGuard(t *testing.T) {
	expired := subscriptions.Outcome{Reason: "subscription expired", Kind: apperrors.KindBilling}
	deactivated := subscriptions.Outcome{Reason: "organization deactivated", Kind: apperrors.KindOrganizationDeactivated}

	tests := []struct {
		name         string
		role         string
		accept       string
		out          subscriptions.Outcome
		wantStatus   int
		wantLocation string
		wantCalled   bool
	}{
		{name: "active passes", role: "staff", out: subscriptions.Outcome{Active: true, PlanID: "basic"}, wantStatus: http.StatusOK, wantCalled: true},
		{name: "expired api client", role: "owner", out: expired, wantStatus: http.StatusPaymentRequired},
		{name: "expired browser", role: "owner", accept: "text/html,application/xhtml+xml", out: expired, wantStatus: http.StatusSeeOther, wantLocation: apperrors.RedirectSubscriptionExpired},
		{name: "deactivated browser", role: "staff", accept: "text/html", out: deactivated, wantStatus: http.StatusSeeOther, wantLocation: apperrors.RedirectOrganizationDeactivated},
		{name: "platform admin bypasses", role: "super_admin", out: expired, wantStatus: http.StatusOK, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := &stubStatus{out: tt.out}
			guard := NewSubscriptionGuard(status)

			called := false
			handler := guard.Handle(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if tt.role != "super_admin" {
					out, ok := r.Context().Value(apiContext.Entitlement).(subscriptions.Outcome)
					assert.True(t, ok)
					assert.Equal(t, tt.out.PlanID, out.PlanID)
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			req = req.WithContext(context.WithValue(req.Context(), apiContext.Claims, &auth.Claims{OrganizationID: "org_1", Role: tt.role}))

			rr := httptest.NewRecorder()
			handler(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rr.Header().Get("Location"))
			}
			if tt.role == "super_admin" {
				assert.Zero(t, status.calls)
			}
		})
	}
}

func TestSubscriptionGuardRequiresClaims(t *testing.T) {
	guard := NewSubscriptionGuard(&stubStatus{})
	rr := httptest.NewRecorder()
	guard.Handle(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	})(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
