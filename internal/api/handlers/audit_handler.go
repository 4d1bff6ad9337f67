package handlers

import (
	"net/http"
	"strconv"

	"praxis/internal/platform/audit"
)

type AuditHandler struct {
	audit *audit.Logger
}

func NewAuditHandler(auditLogger *audit.Logger) *AuditHandler {
	return &AuditHandler{audit: auditLogger}
}

// List returns the organization's billing trail, newest first. Platform
// administrators may read another organization with ?organization_id=.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := tenantFrom(r).OrgID
	if claimsFrom(r).IsPlatformAdmin() {
		if other := r.URL.Query().Get("organization_id"); other != "" {
			orgID = other
		}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.audit.List(r.Context(), orgID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*audit.AuditLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
