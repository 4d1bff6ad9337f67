package handlers

import (
	"net/http"

	"praxis/internal/engine/records"
)

// UserHandler manages organization members. Each member holds one seat.
type UserHandler struct {
	records *records.Service
}

func NewUserHandler(recordSvc *records.Service) *UserHandler {
	return &UserHandler{records: recordSvc}
}

type AddMemberRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.records.AddMember(r.Context(), actorFrom(r), records.NewMember{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     req.Role,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.records.RemoveMember(r.Context(), tenantFrom(r).OrgID, param(r, "user_id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actorFrom(r *http.Request) records.Actor {
	return records.Actor{OrganizationID: tenantFrom(r).OrgID, Role: claimsFrom(r).Role}
}
