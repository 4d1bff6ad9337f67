package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound                = stderrors.New("not found")
	ErrConflict                = stderrors.New("conflict")
	ErrPaymentMethodRequired   = stderrors.New("payment method required")
	ErrWebhookSignatureInvalid = stderrors.New("webhook signature invalid")
	ErrWebhookUnmatched        = stderrors.New("webhook event has no matching subscription")
)

// InactiveKind selects the remediation path for an inactive organization.
type InactiveKind string

const (
	KindOrganizationDeactivated InactiveKind = "organization_deactivated"
	KindBilling                 InactiveKind = "billing"
)

// Remediation pages.
const (
	RedirectOrganizationDeactivated = "/organization-deactivated"
	RedirectSubscriptionExpired     = "/subscription-expired"
)

// Redirect returns the page a tenant of this kind is sent to.
func (k InactiveKind) Redirect() string {
	if k == KindOrganizationDeactivated {
		return RedirectOrganizationDeactivated
	}
	return RedirectSubscriptionExpired
}

func (k InactiveKind) Code() string {
	if k == KindOrganizationDeactivated {
		return ErrCodeOrganizationDeactivated
	}
	return ErrCodeSubscriptionExpired
}

type AuthorizationDeniedError struct {
	Reason string
}

func (e *AuthorizationDeniedError) Error() string {
	return "authorization denied: " + e.Reason
}

type SubscriptionInactiveError struct {
	Kind   InactiveKind
	Reason string
}

func (e *SubscriptionInactiveError) Error() string {
	return "subscription inactive: " + e.Reason
}

type LimitExceededError struct {
	Resource string
	Current  int64
	Limit    int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit reached (%d of %d)", e.Resource, e.Current, e.Limit)
}

type FeatureUnavailableError struct {
	Feature string
	Plan    string
}

func (e *FeatureUnavailableError) Error() string {
	return fmt.Sprintf("feature %s is not available on plan %s", e.Feature, e.Plan)
}

type GatewayCallFailedError struct {
	Op  string
	Err error
}

func (e *GatewayCallFailedError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayCallFailedError) Unwrap() error {
	return e.Err
}

// WriteDomainError maps err onto the HTTP error envelope. Unknown errors
// become 500s without leaking their text.
func WriteDomainError(w http.ResponseWriter, err error) {
	var (
		denied   *AuthorizationDeniedError
		inactive *SubscriptionInactiveError
		limit    *LimitExceededError
		feature  *FeatureUnavailableError
		gateway  *GatewayCallFailedError
	)

	switch {
	case stderrors.As(err, &denied):
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, denied.Error(), nil)
	case stderrors.As(err, &inactive):
		WriteError(w, http.StatusPaymentRequired, inactive.Kind.Code(), inactive.Reason, map[string]string{
			"reason":   inactive.Reason,
			"redirect": inactive.Kind.Redirect(),
		})
	case stderrors.As(err, &limit):
		WriteError(w, http.StatusForbidden, ErrCodeLimitExceeded, limit.Error(), map[string]interface{}{
			"resource": limit.Resource,
			"current":  limit.Current,
			"limit":    limit.Limit,
		})
	case stderrors.As(err, &feature):
		WriteError(w, http.StatusForbidden, ErrCodeFeatureUnavailable, feature.Error(), map[string]string{
			"feature": feature.Feature,
			"plan":    feature.Plan,
		})
	case stderrors.As(err, &gateway):
		WriteError(w, http.StatusBadGateway, ErrCodeGateway, "Payment gateway request failed", map[string]string{"operation": gateway.Op})
	case stderrors.Is(err, ErrPaymentMethodRequired):
		WriteError(w, http.StatusPaymentRequired, ErrCodePaymentMethodRequired, "A payment method is required for this plan", nil)
	case stderrors.Is(err, ErrWebhookSignatureInvalid):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidSignature, "Invalid webhook signature", nil)
	case stderrors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Resource not found", nil)
	case stderrors.Is(err, ErrConflict):
		WriteError(w, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error", nil)
	}
}
