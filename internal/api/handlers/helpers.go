package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	apiContext "praxis/internal/api/context"
	"praxis/internal/api/middleware"
	"praxis/internal/engine/orchestrator"
	"praxis/internal/engine/plans"
	"praxis/internal/engine/records"
	"praxis/internal/pkg/errors"
	"praxis/internal/platform/auth"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return false
	}
	return true
}

func param(r *http.Request, name string) string {
	ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return ps.ByName(name)
}

func claimsFrom(r *http.Request) *auth.Claims {
	return r.Context().Value(apiContext.Claims).(*auth.Claims)
}

func tenantFrom(r *http.Request) *middleware.TenantContext {
	return r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
}

// writeServiceError maps validation errors to 400 and defers the rest to
// the domain mapping.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case stderrors.Is(err, plans.ErrInvalidPlan),
		stderrors.Is(err, records.ErrInvalid),
		stderrors.Is(err, orchestrator.ErrInvalidRequest):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	case stderrors.Is(err, errors.ErrConflict),
		stderrors.Is(err, errors.ErrNotFound),
		stderrors.Is(err, errors.ErrPaymentMethodRequired):
	default:
		var (
			limit   *errors.LimitExceededError
			feature *errors.FeatureUnavailableError
			gateway *errors.GatewayCallFailedError
		)
		if !stderrors.As(err, &limit) && !stderrors.As(err, &feature) && !stderrors.As(err, &gateway) {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		}
	}
	errors.WriteDomainError(w, err)
}
