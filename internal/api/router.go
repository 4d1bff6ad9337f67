package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "praxis/internal/api/context"
	"praxis/internal/api/handlers"
	"praxis/internal/api/middleware"
	"praxis/internal/pkg/errors"
	"praxis/internal/platform/auth"
	"praxis/internal/platform/models"
)

type Dependencies struct {
	AuthHandler       *handlers.AuthHandler
	OrgHandler        *handlers.OrgHandler
	UserHandler       *handlers.UserHandler
	RecordsHandler    *handlers.RecordsHandler
	BillingHandler    *handlers.BillingHandler
	AuditHandler      *handlers.AuditHandler
	AdminHandler      *handlers.AdminHandler
	WebhookHandler    *handlers.WebhookHandler
	HealthHandler     *handlers.HealthHandler
	MetricsHandler    *handlers.MetricsHandler
	PagesHandler      *handlers.PagesHandler
	AuthMiddleware    *middleware.AuthMiddleware
	TenantMiddleware  *middleware.TenantMiddleware
	SubscriptionGuard *middleware.SubscriptionGuard
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))
	router.GET(errors.RedirectOrganizationDeactivated, wrap(deps.PagesHandler.OrganizationDeactivated))
	router.GET(errors.RedirectSubscriptionExpired, wrap(deps.PagesHandler.SubscriptionExpired))

	// Authentication routes
	router.POST("/api/v1/auth/login", chain(deps.AuthHandler.Login, middleware.RateLimit("auth")))
	router.POST("/api/v1/auth/refresh", chain(deps.AuthHandler.Refresh, middleware.RateLimit("auth")))

	// Gateway callbacks authenticate by signature
	router.POST("/api/v1/webhooks/stripe", chain(deps.WebhookHandler.Stripe, middleware.RateLimit("webhook")))

	authMid := deps.AuthMiddleware.Handle
	tenantMid := deps.TenantMiddleware.Handle
	guard := deps.SubscriptionGuard.Handle

	// Organization management
	router.POST("/api/v1/organizations", chain(deps.OrgHandler.Create, middleware.RateLimit("signup")))
	router.GET("/api/v1/organizations/current",
		chain(deps.OrgHandler.GetCurrent, authMid, tenantMid))

	// Billing. Reachable while inactive so the tenant can see why and pay.
	billingRead := middleware.RateLimit("billing_read")
	billingWrite := middleware.RateLimit("billing_write")
	router.GET("/api/v1/billing/status",
		chain(deps.BillingHandler.Status, authMid, tenantMid, billingRead))
	router.GET("/api/v1/billing/features/:feature",
		chain(deps.BillingHandler.Feature, authMid, tenantMid, billingRead))
	router.GET("/api/v1/billing/limits/:resource",
		chain(deps.BillingHandler.Limit, authMid, tenantMid, billingRead))
	router.GET("/api/v1/billing/usage",
		chain(deps.BillingHandler.Usage, authMid, tenantMid, billingRead))
	router.GET("/api/v1/billing/plans",
		chain(deps.BillingHandler.Plans, authMid, tenantMid, billingRead))
	router.POST("/api/v1/billing/subscription/change",
		chain(deps.BillingHandler.Change, authMid, tenantMid, requireRole(models.RoleOwner, models.RoleAdmin), billingWrite))
	router.POST("/api/v1/billing/subscription/cancel",
		chain(deps.BillingHandler.Cancel, authMid, tenantMid, requireRole(models.RoleOwner), billingWrite))
	router.GET("/api/v1/billing/audit",
		chain(deps.AuditHandler.List, authMid, tenantMid, requireRole(models.RoleOwner, models.RoleAdmin, models.RoleSuperAdmin), billingRead))

	// Records behind the subscription guard
	records := middleware.RateLimit("records")
	router.POST("/api/v1/patients",
		chain(deps.RecordsHandler.CreatePatient, authMid, tenantMid, guard, records))
	router.DELETE("/api/v1/patients/:patient_id",
		chain(deps.RecordsHandler.DeletePatient, authMid, tenantMid, guard, records))
	router.POST("/api/v1/appointments",
		chain(deps.RecordsHandler.CreateAppointment, authMid, tenantMid, guard, records))
	router.DELETE("/api/v1/appointments/:appointment_id",
		chain(deps.RecordsHandler.DeleteAppointment, authMid, tenantMid, guard, records))
	router.POST("/api/v1/users",
		chain(deps.UserHandler.Create, authMid, tenantMid, guard, requireRole(models.RoleOwner, models.RoleAdmin), records))
	router.DELETE("/api/v1/users/:user_id",
		chain(deps.UserHandler.Delete, authMid, tenantMid, guard, requireRole(models.RoleOwner, models.RoleAdmin), records))

	// Platform administration
	admin := []func(http.HandlerFunc) http.HandlerFunc{authMid, requireRole(models.RoleSuperAdmin), middleware.RateLimit("admin")}
	router.GET("/api/v1/admin/plans", chain(deps.AdminHandler.ListPlans, admin...))
	router.POST("/api/v1/admin/plans", chain(deps.AdminHandler.CreatePlan, admin...))
	router.PATCH("/api/v1/admin/plans/:plan_id", chain(deps.AdminHandler.UpdatePlan, admin...))
	router.DELETE("/api/v1/admin/plans/:plan_id", chain(deps.AdminHandler.DeletePlan, admin...))
	router.GET("/api/v1/admin/organizations/:org_id/status", chain(deps.AdminHandler.Status, admin...))
	router.POST("/api/v1/admin/organizations/:org_id/subscription", chain(deps.AdminHandler.CreateSubscription, admin...))
	router.POST("/api/v1/admin/organizations/:org_id/subscription/cancel", chain(deps.AdminHandler.CancelSubscription, admin...))
	router.POST("/api/v1/admin/organizations/:org_id/payments", chain(deps.AdminHandler.RecordPayment, admin...))
	router.PATCH("/api/v1/admin/organizations/:org_id/active", chain(deps.AdminHandler.SetActive, admin...))
	router.PATCH("/api/v1/admin/organizations/:org_id/unlimited", chain(deps.AdminHandler.SetUnlimited, admin...))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
			if !ok {
				errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
				return
			}

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteDomainError(w, &errors.AuthorizationDeniedError{Reason: "insufficient permissions"})
				return
			}

			next(w, r)
		}
	}
}
