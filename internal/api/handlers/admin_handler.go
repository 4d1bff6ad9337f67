package handlers

import (
	"net/http"
	"time"

	"praxis/internal/engine/orchestrator"
	"praxis/internal/engine/plans"
	"praxis/internal/engine/subscriptions"
	"praxis/internal/pkg/errors"
	"praxis/internal/platform/audit"
	"praxis/internal/platform/models"
)

// AdminHandler serves the platform administrator's catalog and
// per-organization billing controls.
type AdminHandler struct {
	plans  *plans.Service
	orch   *orchestrator.Service
	status *subscriptions.Service
	audit  *audit.Logger
}

func NewAdminHandler(planSvc *plans.Service, orch *orchestrator.Service, status *subscriptions.Service, auditLogger *audit.Logger) *AdminHandler {
	return &AdminHandler{plans: planSvc, orch: orch, status: status, audit: auditLogger}
}

func (h *AdminHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	list, err := h.plans.List(r.Context(), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*plans.Plan{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var p plans.Plan
	if !decode(w, r, &p) {
		return
	}
	if err := h.plans.Create(r.Context(), &p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.PlatformScope, audit.ActionPlanCreated, "plan", p.ID, nil)
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePlan replaces the plan's editable fields. Omitted fields keep their
// current value.
func (h *AdminHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, err := h.plans.Get(ctx, param(r, "plan_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	p := *current
	if !decode(w, r, &p) {
		return
	}
	p.ID = current.ID
	p.CreatedAt = current.CreatedAt

	if err := h.plans.Update(ctx, &p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.audit.Record(ctx, audit.PlatformScope, audit.ActionPlanUpdated, "plan", p.ID, nil)
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	id := param(r, "plan_id")
	if err := h.plans.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.audit.Record(r.Context(), audit.PlatformScope, audit.ActionPlanDeleted, "plan", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

type AdminSubscriptionRequest struct {
	PlanID        string     `json:"plan_id"`
	BillingCycle  string     `json:"billing_cycle"`
	Status        string     `json:"status"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
	PaymentMethod string     `json:"payment_method"`
}

func (h *AdminHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req AdminSubscriptionRequest
	if !decode(w, r, &req) {
		return
	}
	a := orchestrator.AdminSubscription{
		OrganizationID: param(r, "org_id"),
		PlanID:         req.PlanID,
		Cycle:          models.BillingCycle(req.BillingCycle),
		Status:         models.SubscriptionStatus(req.Status),
		PaymentMethod:  req.PaymentMethod,
	}
	if req.StartDate != nil {
		a.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		a.EndDate = *req.EndDate
	}

	sub, err := h.orch.CreateSubscription(r.Context(), a)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *AdminHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decode(w, r, &req) {
		return
	}
	atPeriodEnd := false
	if req.AtPeriodEnd != nil {
		atPeriodEnd = *req.AtPeriodEnd
	}
	sub, err := h.orch.Cancel(r.Context(), param(r, "org_id"), req.Reason, atPeriodEnd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type ManualPaymentRequest struct {
	Amount    int64      `json:"amount"`
	Method    string     `json:"method"`
	Reference string     `json:"reference"`
	PaidAt    *time.Time `json:"paid_at"`
}

func (h *AdminHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req ManualPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	p := orchestrator.ManualPayment{
		OrganizationID: param(r, "org_id"),
		Amount:         req.Amount,
		Method:         req.Method,
		Reference:      req.Reference,
	}
	if req.PaidAt != nil {
		p.PaidAt = *req.PaidAt
	}

	sub, err := h.orch.RecordManualPayment(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type ToggleRequest struct {
	Active    *bool `json:"active"`
	Unlimited *bool `json:"unlimited"`
}

func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Active == nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "active is required", nil)
		return
	}
	if err := h.orch.SetOrganizationActive(r.Context(), param(r, "org_id"), *req.Active); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.Status(w, r)
}

func (h *AdminHandler) SetUnlimited(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Unlimited == nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "unlimited is required", nil)
		return
	}
	if err := h.orch.SetUnlimited(r.Context(), param(r, "org_id"), *req.Unlimited); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.Status(w, r)
}

// Status evaluates any organization's entitlement.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	out, err := h.status.Status(r.Context(), param(r, "org_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
