package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinora/clinic-scheduling/internal/scheduling"
)

// AppointmentHandler exposes the booking lifecycle and slot generation.
type AppointmentHandler struct {
	booking *scheduling.BookingService
	slots   *scheduling.SlotGenerator
	loc     *time.Location
}

func NewAppointmentHandler(booking *scheduling.BookingService, slots *scheduling.SlotGenerator, loc *time.Location) *AppointmentHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AppointmentHandler{booking: booking, slots: slots, loc: loc}
}

func (h *AppointmentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/upcoming", h.ListUpcoming)
	r.Get("/available-slots", h.AvailableSlots)
	r.Get("/by-date/{date}", h.ListByDate)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/history", h.History)
	r.Patch("/{id}", h.Update)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.booking.Create(r.Context(), DoctorID(r.Context()), scheduling.CreateAppointmentInput{
		PatientID:          req.PatientID,
		PatientIDs:         req.PatientIDs,
		ConsultationTypeID: req.ConsultationTypeID,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		Title:              req.Title,
		Description:        req.Description,
		Notes:              req.Notes,
		NotifyReminder:     req.NotifyReminder,
		ReminderMessage:    req.ReminderMessage,
		SkipConflictCheck:  req.SkipConflictCheck,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	details, err := h.booking.List(r.Context(), DoctorID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailListResponse(details))
}

func (h *AppointmentHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	details, err := h.booking.ListUpcoming(r.Context(), DoctorID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailListResponse(details))
}

func (h *AppointmentHandler) ListByDate(w http.ResponseWriter, r *http.Request) {
	day, err := time.ParseInLocation("2006-01-02", chi.URLParam(r, "date"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	details, err := h.booking.ListByDate(r.Context(), DoctorID(r.Context()), day)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailListResponse(details))
}

func (h *AppointmentHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	day, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
		return
	}

	var typeID *uuid.UUID
	if raw := r.URL.Query().Get("consultation_type_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_type_id", "consultation_type_id must be a valid UUID")
			return
		}
		typeID = &id
	}

	slots, err := h.slots.AvailableSlots(r.Context(), DoctorID(r.Context()), day, typeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	detail, err := h.booking.Get(r.Context(), id, DoctorID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentDetailResponse(detail))
}

func (h *AppointmentHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	entries, err := h.booking.History(r.Context(), id, DoctorID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(entries))
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.booking.Update(r.Context(), id, DoctorID(r.Context()), scheduling.UpdateAppointmentInput{
		PatientID:          req.PatientID,
		PatientIDs:         req.PatientIDs,
		ConsultationTypeID: req.ConsultationTypeID,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		Title:              req.Title,
		Description:        req.Description,
		Notes:              req.Notes,
		NotifyReminder:     req.NotifyReminder,
		ReminderMessage:    req.ReminderMessage,
		SkipConflictCheck:  req.SkipConflictCheck,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.booking.UpdateStatus(r.Context(), id, DoctorID(r.Context()), scheduling.AppointmentStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.booking.Remove(r.Context(), id, DoctorID(r.Context())); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func detailListResponse(details []scheduling.AppointmentDetail) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(details))
	for i := range details {
		out = append(out, toAppointmentDetailResponse(&details[i]))
	}
	return out
}
