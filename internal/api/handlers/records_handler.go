package handlers

import (
	"net/http"
	"time"

	"praxis/internal/engine/records"
)

// RecordsHandler creates and deletes patients and appointments. Creation
// is metered against the plan limits.
type RecordsHandler struct {
	records *records.Service
}

func NewRecordsHandler(recordSvc *records.Service) *RecordsHandler {
	return &RecordsHandler{records: recordSvc}
}

type CreatePatientRequest struct {
	FullName string `json:"full_name"`
}

func (h *RecordsHandler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.records.CreatePatient(r.Context(), actorFrom(r), req.FullName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *RecordsHandler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	if err := h.records.DeletePatient(r.Context(), tenantFrom(r).OrgID, param(r, "patient_id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type CreateAppointmentRequest struct {
	PatientID   string    `json:"patient_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (h *RecordsHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := h.records.CreateAppointment(r.Context(), actorFrom(r), req.PatientID, req.ScheduledAt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *RecordsHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.records.DeleteAppointment(r.Context(), tenantFrom(r).OrgID, param(r, "appointment_id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
