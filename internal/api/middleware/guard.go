package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	apiContext "praxis/internal/api/context"
	"praxis/internal/engine/subscriptions"
	"praxis/internal/pkg/errors"
	"praxis/internal/platform/auth"
)

// StatusChecker evaluates an organization's entitlement.
type StatusChecker interface {
	Require(ctx context.Context, orgID string) (subscriptions.Outcome, error)
}

// SubscriptionGuard refuses requests from organizations without an active
// entitlement. Browsers are redirected to the remediation page; API
// clients get a 402 naming it.
type SubscriptionGuard struct {
	status StatusChecker
}

func NewSubscriptionGuard(status StatusChecker) *SubscriptionGuard {
	return &SubscriptionGuard{status: status}
}

func (g *SubscriptionGuard) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}
		if claims.IsPlatformAdmin() {
			next(w, r)
			return
		}

		out, err := g.status.Require(r.Context(), claims.OrganizationID)
		if err != nil {
			var inactive *errors.SubscriptionInactiveError
			if stderrors.As(err, &inactive) {
				log.Debug().Str("org_id", claims.OrganizationID).Str("reason", inactive.Reason).Msg("request blocked by subscription guard")
				if wantsHTML(r) {
					http.Redirect(w, r, inactive.Kind.Redirect(), http.StatusSeeOther)
					return
				}
			} else {
				log.Error().Err(err).Str("org_id", claims.OrganizationID).Msg("subscription status evaluation failed")
			}
			errors.WriteDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Entitlement, out)
		next(w, r.WithContext(ctx))
	}
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
