package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinora/clinic-scheduling/internal/scheduling"
)

// ImprevuHandler exposes the disruption registry.
type ImprevuHandler struct {
	svc *scheduling.ImprevuService
}

func NewImprevuHandler(svc *scheduling.ImprevuService) *ImprevuHandler {
	return &ImprevuHandler{svc: svc}
}

func (h *ImprevuHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/affected-appointments", h.AffectedAppointments)
	r.Post("/{id}/cancel-appointments", h.CancelAffected)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *ImprevuHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateImprevuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	imp, err := h.svc.Create(r.Context(), DoctorID(r.Context()), scheduling.CreateImprevuInput{
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		BlockTimeSlots:      req.BlockTimeSlots,
		NotifyPatients:      req.NotifyPatients,
		Reason:              req.Reason,
		Message:             req.Message,
		ConsultationTypeIDs: req.ConsultationTypeIDs,
		AppointmentIDs:      req.AppointmentIDs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toImprevuResponse(imp))
}

func (h *ImprevuHandler) List(w http.ResponseWriter, r *http.Request) {
	imps, err := h.svc.List(r.Context(), DoctorID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]ImprevuResponse, 0, len(imps))
	for i := range imps {
		out = append(out, toImprevuResponse(&imps[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ImprevuHandler) AffectedAppointments(w http.ResponseWriter, r *http.Request) {
	start, err := parseInstant(r.URL.Query().Get("start_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be RFC 3339 or YYYY-MM-DD")
		return
	}
	end, err := parseInstant(r.URL.Query().Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_date", "end_date must be RFC 3339 or YYYY-MM-DD")
		return
	}

	affected, err := h.svc.AffectedAppointments(r.Context(), DoctorID(r.Context()), start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailListResponse(affected))
}

func (h *ImprevuHandler) CancelAffected(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	n, err := h.svc.CancelAffectedAppointments(r.Context(), id, DoctorID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelAffectedResponse{CancelledCount: n})
}

func (h *ImprevuHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	imp, err := h.svc.Get(r.Context(), id, DoctorID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toImprevuResponse(imp))
}

func (h *ImprevuHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateImprevuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	imp, err := h.svc.Update(r.Context(), id, DoctorID(r.Context()), scheduling.UpdateImprevuInput{
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		BlockTimeSlots: req.BlockTimeSlots,
		NotifyPatients: req.NotifyPatients,
		Reason:         req.Reason,
		Message:        req.Message,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toImprevuResponse(imp))
}

func (h *ImprevuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Remove(r.Context(), id, DoctorID(r.Context())); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func parseInstant(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", raw, time.Local)
}
