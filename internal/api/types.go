package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinora/clinic-scheduling/internal/scheduling"
)

type CreateAppointmentRequest struct {
	PatientID          *uuid.UUID  `json:"patient_id,omitempty"`
	PatientIDs         []uuid.UUID `json:"patient_ids,omitempty"`
	ConsultationTypeID *uuid.UUID  `json:"consultation_type_id,omitempty"`
	StartTime          time.Time   `json:"start_time"`
	EndTime            time.Time   `json:"end_time"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	Notes              string      `json:"notes"`
	NotifyReminder     bool        `json:"notify_reminder"`
	ReminderMessage    string      `json:"reminder_message"`
	SkipConflictCheck  bool        `json:"skip_conflict_check"`
}

type UpdateAppointmentRequest struct {
	PatientID          *uuid.UUID  `json:"patient_id,omitempty"`
	PatientIDs         []uuid.UUID `json:"patient_ids,omitempty"`
	ConsultationTypeID *uuid.UUID  `json:"consultation_type_id,omitempty"`
	StartTime          *time.Time  `json:"start_time,omitempty"`
	EndTime            *time.Time  `json:"end_time,omitempty"`
	Title              *string     `json:"title,omitempty"`
	Description        *string     `json:"description,omitempty"`
	Notes              *string     `json:"notes,omitempty"`
	NotifyReminder     *bool       `json:"notify_reminder,omitempty"`
	ReminderMessage    *string     `json:"reminder_message,omitempty"`
	SkipConflictCheck  bool        `json:"skip_conflict_check"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type PatientResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
}

type ConsultationTypeResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	DurationMinutes  int       `json:"duration_minutes"`
	RestAfterMinutes int       `json:"rest_after_minutes"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID                 `json:"id"`
	DoctorID           uuid.UUID                 `json:"doctor_id"`
	PatientID          uuid.UUID                 `json:"patient_id"`
	Patients           []PatientResponse         `json:"patients,omitempty"`
	ConsultationTypeID *uuid.UUID                `json:"consultation_type_id,omitempty"`
	ConsultationType   *ConsultationTypeResponse `json:"consultation_type,omitempty"`
	StartTime          time.Time                 `json:"start_time"`
	EndTime            time.Time                 `json:"end_time"`
	Status             string                    `json:"status"`
	Title              string                    `json:"title,omitempty"`
	Description        string                    `json:"description,omitempty"`
	Notes              string                    `json:"notes,omitempty"`
	NotifyReminder     bool                      `json:"notify_reminder"`
	ReminderMessage    string                    `json:"reminder_message,omitempty"`
	ReminderSentAt     *time.Time                `json:"reminder_sent_at,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

type HistoryEntryResponse struct {
	ID            uuid.UUID                          `json:"id"`
	Action        string                             `json:"action"`
	Description   string                             `json:"description"`
	AuthorName    string                             `json:"author_name,omitempty"`
	ChangedFields map[string]scheduling.FieldChange  `json:"changed_fields,omitempty"`
	Metadata      map[string]any                     `json:"metadata,omitempty"`
	CreatedAt     time.Time                          `json:"created_at"`
}

type CreateImprevuRequest struct {
	StartTime           time.Time    `json:"start_time"`
	EndTime             time.Time    `json:"end_time"`
	BlockTimeSlots      *bool        `json:"block_time_slots,omitempty"`
	NotifyPatients      bool         `json:"notify_patients"`
	Reason              string       `json:"reason"`
	Message             string       `json:"message"`
	ConsultationTypeIDs []uuid.UUID  `json:"consultation_type_ids,omitempty"`
	// Absent means "cancel every affected appointment"; an explicit empty
	// array means the user deselected them all.
	AppointmentIDs *[]uuid.UUID `json:"appointment_ids,omitempty"`
}

type UpdateImprevuRequest struct {
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	BlockTimeSlots *bool      `json:"block_time_slots,omitempty"`
	NotifyPatients *bool      `json:"notify_patients,omitempty"`
	Reason         *string    `json:"reason,omitempty"`
	Message        *string    `json:"message,omitempty"`
}

type ImprevuResponse struct {
	ID                         uuid.UUID `json:"id"`
	DoctorID                   uuid.UUID `json:"doctor_id"`
	StartTime                  time.Time `json:"start_time"`
	EndTime                    time.Time `json:"end_time"`
	BlockTimeSlots             bool      `json:"block_time_slots"`
	NotifyPatients             bool      `json:"notify_patients"`
	Reason                     string    `json:"reason,omitempty"`
	Message                    string    `json:"message,omitempty"`
	CancelledAppointmentsCount int       `json:"cancelled_appointments_count"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

type CancelAffectedResponse struct {
	CancelledCount int `json:"cancelled_count"`
}

// Mapping helpers

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		ConsultationTypeID: a.ConsultationTypeID,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Status:             string(a.Status),
		Title:              a.Title,
		Description:        a.Description,
		Notes:              a.Notes,
		NotifyReminder:     a.NotifyReminder,
		ReminderMessage:    a.ReminderMessage,
		ReminderSentAt:     a.ReminderSentAt,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentDetailResponse(d *scheduling.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(&d.Appointment)
	for _, p := range d.Patients {
		resp.Patients = append(resp.Patients, PatientResponse{ID: p.ID, Name: p.Name, Email: p.Email})
	}
	if ct := d.ConsultationType; ct != nil {
		resp.ConsultationType = &ConsultationTypeResponse{
			ID:               ct.ID,
			Name:             ct.Name,
			DurationMinutes:  ct.DurationMinutes,
			RestAfterMinutes: ct.RestAfterMinutes,
		}
	}
	return resp
}

func toImprevuResponse(imp *scheduling.Imprevu) ImprevuResponse {
	return ImprevuResponse{
		ID:                         imp.ID,
		DoctorID:                   imp.DoctorID,
		StartTime:                  imp.StartTime,
		EndTime:                    imp.EndTime,
		BlockTimeSlots:             imp.BlockTimeSlots,
		NotifyPatients:             imp.NotifyPatients,
		Reason:                     imp.Reason,
		Message:                    imp.Message,
		CancelledAppointmentsCount: imp.CancelledAppointmentsCount,
		CreatedAt:                  imp.CreatedAt,
		UpdatedAt:                  imp.UpdatedAt,
	}
}

func toHistoryResponse(entries []scheduling.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:            e.ID,
			Action:        string(e.Action),
			Description:   e.Description,
			AuthorName:    e.AuthorName,
			ChangedFields: e.ChangedFields,
			Metadata:      e.Metadata,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}
