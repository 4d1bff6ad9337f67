package handlers

import (
	stderrors "errors"
	"net/http"

	"praxis/internal/engine/entitlements"
	"praxis/internal/engine/metering"
	"praxis/internal/engine/orchestrator"
	"praxis/internal/engine/plans"
	"praxis/internal/engine/subscriptions"
	"praxis/internal/pkg/errors"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

// BillingHandler serves the tenant-facing billing queries and requests.
// None of its routes sit behind the subscription guard: an inactive
// organization must still be able to see why and pay.
type BillingHandler struct {
	status   *subscriptions.Service
	subs     *repositories.SubscriptionRepository
	plans    *plans.Service
	metering *metering.Service
	orch     *orchestrator.Service
}

func NewBillingHandler(status *subscriptions.Service, subs *repositories.SubscriptionRepository, planSvc *plans.Service,
	meter *metering.Service, orch *orchestrator.Service) *BillingHandler {
	return &BillingHandler{
		status:   status,
		subs:     subs,
		plans:    planSvc,
		metering: meter,
		orch:     orch,
	}
}

type StatusResponse struct {
	subscriptions.Outcome
	PlanName     string               `json:"plan_name,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	Capabilities []plans.Feature      `json:"capabilities"`
	Redirect     string               `json:"redirect,omitempty"`
}

func (h *BillingHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	tenant := tenantFrom(r)
	ctx := r.Context()

	out, err := h.status.Status(ctx, tenant.OrgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sub, err := h.subs.GetByOrg(ctx, tenant.OrgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := StatusResponse{Outcome: out, Subscription: sub, Capabilities: []plans.Feature{}}
	if !out.Active {
		resp.Redirect = out.Kind.Redirect()
	}
	var plan *plans.Plan
	if out.PlanID != "" {
		plan, err = h.plans.Get(ctx, out.PlanID)
		if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
			writeServiceError(w, r, err)
			return
		}
		if plan != nil {
			resp.PlanName = plan.Name
		}
	}
	if out.Active {
		if caps := entitlements.Capabilities(plan, claims.Role, out.Unlimited); caps != nil {
			resp.Capabilities = caps
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type FeatureResponse struct {
	Feature  plans.Feature `json:"feature"`
	Allowed  bool          `json:"allowed"`
	PlanID   string        `json:"plan_id,omitempty"`
	PlanName string        `json:"plan_name,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

func (h *BillingHandler) Feature(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	feature := plans.Feature(param(r, "feature"))
	if !feature.Valid() {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown feature", nil)
		return
	}

	ctx := r.Context()
	out, err := h.status.Status(ctx, tenantFrom(r).OrgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := FeatureResponse{Feature: feature, PlanID: out.PlanID}
	var plan *plans.Plan
	if out.PlanID != "" {
		plan, err = h.plans.Get(ctx, out.PlanID)
		if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
			writeServiceError(w, r, err)
			return
		}
		if plan != nil {
			resp.PlanName = plan.Name
		}
	}

	switch {
	case !out.Active && !claims.IsPlatformAdmin():
		resp.Reason = out.Reason
	default:
		if err := entitlements.Require(plan, claims.Role, out.Unlimited, feature); err != nil {
			resp.Reason = err.Error()
		} else {
			resp.Allowed = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type LimitResponse struct {
	*metering.LimitDecision
	Reason string `json:"reason,omitempty"`
}

func (h *BillingHandler) Limit(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	resource := models.Resource(param(r, "resource"))
	if !resource.Valid() {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown resource", nil)
		return
	}

	decision, err := h.metering.Decide(r.Context(), tenantFrom(r).OrgID, claims.Role, resource)
	if err != nil {
		var inactive *errors.SubscriptionInactiveError
		if stderrors.As(err, &inactive) {
			writeJSON(w, http.StatusOK, LimitResponse{
				LimitDecision: &metering.LimitDecision{Resource: resource},
				Reason:        inactive.Reason,
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LimitResponse{LimitDecision: decision})
}

func (h *BillingHandler) Usage(w http.ResponseWriter, r *http.Request) {
	report, err := h.metering.Usage(r.Context(), tenantFrom(r).OrgID, claimsFrom(r).Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *BillingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	list, err := h.plans.List(r.Context(), false)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*plans.Plan{}
	}
	writeJSON(w, http.StatusOK, list)
}

type ChangePlanRequest struct {
	PlanID        string `json:"plan_id"`
	BillingCycle  string `json:"billing_cycle"`
	PaymentMethod string `json:"payment_method"`
}

func (h *BillingHandler) Change(w http.ResponseWriter, r *http.Request) {
	var req ChangePlanRequest
	if !decode(w, r, &req) {
		return
	}
	claims := claimsFrom(r)

	sub, err := h.orch.ChangePlan(r.Context(), orchestrator.ChangeRequest{
		OrganizationID: tenantFrom(r).OrgID,
		PlanID:         req.PlanID,
		Cycle:          models.BillingCycle(req.BillingCycle),
		PaymentMethod:  req.PaymentMethod,
		Email:          claims.Email,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type CancelRequest struct {
	Reason      string `json:"reason"`
	AtPeriodEnd *bool  `json:"at_period_end"`
}

// Cancel defaults to cancelling at the end of the paid period.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decode(w, r, &req) {
		return
	}
	atPeriodEnd := true
	if req.AtPeriodEnd != nil {
		atPeriodEnd = *req.AtPeriodEnd
	}

	sub, err := h.orch.Cancel(r.Context(), tenantFrom(r).OrgID, req.Reason, atPeriodEnd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
